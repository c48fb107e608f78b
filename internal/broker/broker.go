package broker

import (
	"context"

	"live-shopping-platform/internal/models"
)

// Envelope wraps an event for cross-instance relay. Instance identifies the
// publisher so it can ignore its own messages when they come back around.
type Envelope struct {
	Instance string       `json:"instance"`
	Event    models.Event `json:"event"`
}

// Relay fans session events out to the hubs of other server instances, so
// subscribers can attach to any instance. It relays committed events only;
// the per-session mutation serialization stays process-local, so mutation
// traffic for a given session must be routed to a single instance (sticky
// routing on session id). It is optional; a single-instance deployment runs
// without one.
type Relay interface {
	// Publish sends an event to every other instance
	Publish(ctx context.Context, env Envelope) error

	// Subscribe delivers relayed envelopes to the handler until the context
	// is cancelled. Handlers receive envelopes in publish order.
	Subscribe(ctx context.Context, handler func(Envelope)) error

	Close() error
}
