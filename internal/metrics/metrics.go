package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Realtime metrics
	ActiveSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "live_session_subscribers_active",
		Help: "The current number of active push subscribers.",
	})
	TotalSubscribers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_session_subscribers_total",
		Help: "The total number of push subscriber connections accepted.",
	})
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_session_events_published_total",
		Help: "The total number of events published to the broadcast hub.",
	}, []string{"type"})
	SubscribersEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_session_subscribers_evicted_total",
		Help: "The total number of subscribers evicted for being dead or too slow.",
	})

	// Mutation metrics
	CartMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_session_cart_mutations_total",
		Help: "The total number of cart mutations, by operation and outcome.",
	}, []string{"operation", "outcome"})

	// Timeout metrics
	SessionsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_session_expired_total",
		Help: "The total number of sessions force-ended by the timeout manager.",
	})
	TimeoutWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "live_session_timeout_warnings_total",
		Help: "The total number of timeout warnings published.",
	})

	// Relay metrics
	RelayMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "live_session_relay_messages_total",
		Help: "The total number of events relayed across instances.",
	}, []string{"direction"})
)

// Handler returns the HTTP handler exposing the metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
