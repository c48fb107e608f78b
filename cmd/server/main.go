package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"live-shopping-platform/internal/broker"
	"live-shopping-platform/internal/config"
	"live-shopping-platform/internal/database"
	"live-shopping-platform/internal/handlers"
	"live-shopping-platform/internal/metrics"
	"live-shopping-platform/internal/middleware"
	"live-shopping-platform/internal/realtime"
	"live-shopping-platform/internal/repositories"
	"live-shopping-platform/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database connection
	dbConfig := database.Config{
		URL:      cfg.Database.URL,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	}

	var store repositories.SessionStore
	var orderRepo repositories.OrderRepository

	db, err := database.NewConnection(dbConfig)
	if err != nil {
		log.Printf("Warning: Failed to connect to database: %v", err)
		log.Println("Continuing with in-memory session store...")
		memStore := repositories.NewMemorySessionStore()
		store = memStore
		orderRepo = repositories.NewMemoryOrderRepository(memStore)
	} else {
		defer db.Close()
		log.Println("Database connection established successfully")

		if err := db.RunMigrations(); err != nil {
			log.Fatal("Failed to run migrations:", err)
		}

		store = repositories.NewPostgresSessionStore(db.DB)
		orderRepo = repositories.NewPostgresOrderRepository(db.DB)
	}

	// Initialize broadcast hub, with a cross-instance relay when configured
	hub := realtime.NewHub()
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		relay, err := broker.NewRedisRelay(client)
		if err != nil {
			log.Printf("Warning: Failed to connect to redis relay: %v", err)
			log.Println("Continuing with single-instance broadcast...")
		} else {
			hub.SetRelay(relay, uuid.NewString())
			go func() {
				if err := hub.StartRelay(ctx); err != nil {
					log.Printf("Relay subscription stopped: %v", err)
				}
			}()
			defer relay.Close()
			log.Println("Redis relay initialized successfully")
		}
	}

	// Initialize services
	locks := services.NewSessionLocks()
	catalog := services.NewMockCatalogService()
	sessionService := services.NewSessionService(store, hub, locks, cfg.Timeout.SessionDuration)
	cartService := services.NewCartService(store, catalog, hub, locks)
	orderService := services.NewOrderService(store, orderRepo, sessionService, locks)

	timeoutManager := services.NewTimeoutManager(
		store, sessionService, hub, locks,
		cfg.Timeout.CheckInterval, cfg.Timeout.WarningThreshold,
	)
	go timeoutManager.Run(ctx)

	// Initialize handlers
	sessionHandler := handlers.NewSessionHandler(sessionService, cartService, timeoutManager, orderService)
	wsHandler := realtime.NewHandler(hub, sessionService, cfg.Realtime)

	// Initialize router
	r := chi.NewRouter()

	// The websocket route stays outside the logging group; the logging
	// response writer does not implement http.Hijacker, which the upgrade
	// needs.
	r.Get("/ws/sessions/{sessionID}", wsHandler.HandleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(middleware.LoggingMiddleware)
		r.Use(middleware.ErrorHandlingMiddleware)

		sessionHandler.RegisterRoutes(r)

		r.Handle("/metrics", metrics.Handler())
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok","service":"live-shopping-platform"}`))
		})
	})

	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    serverAddr,
		Handler: r,
	}

	go func() {
		log.Printf("Server starting on %s (Environment: %s)", serverAddr, cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed:", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
