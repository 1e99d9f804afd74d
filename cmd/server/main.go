package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"bustrack/internal/app"
	"bustrack/internal/auth"
	"bustrack/internal/broadcast"
	"bustrack/internal/config"
	"bustrack/internal/handler"
	internalRedis "bustrack/internal/redis"
	"bustrack/internal/repository/postgres"
	"bustrack/internal/service"
)

func main() {
	// Load configuration.
	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.Printf("failed to initialize New Relic: %v", err)
		} else {
			log.Printf("New Relic enabled: app=%s (with DB instrumentation)", cfg.NewRelic.AppName)
		}
	}

	// Initialize database with New Relic instrumentation.
	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to PostgreSQL")

	// Initialize Redis with New Relic instrumentation.
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Connected to Redis")

	// Wire dependencies.
	server, hub := wireServer(db, redisClient, nrApp, cfg)
	defer hub.Shutdown()

	// Start server in goroutine.
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}

// wireServer wires all dependencies and returns the HTTP server and the
// broadcast hub (whose lifecycle the caller owns).
func wireServer(db *sql.DB, redisClient *redis.Client, nrApp *newrelic.Application, cfg *config.Config) (*http.Server, *broadcast.Hub) {
	// Initialize Redis stores.
	locationStore := internalRedis.NewLocationStore(redisClient)
	lockStore := internalRedis.NewLockStore(redisClient)
	cacheStore := internalRedis.NewCacheStore(redisClient)

	// Initialize repositories.
	sessionRepo := postgres.NewSessionRepository(db)
	routeReader := postgres.NewRouteReader(db)
	rosterReader := postgres.NewRosterReader(db)

	// Initialize the broadcast layer.
	registry := broadcast.NewRegistry()
	hub := broadcast.NewHub(registry, redisClient)

	// Initialize services.
	trackingService := service.NewTrackingService(
		sessionRepo,
		routeReader,
		rosterReader,
		hub,
		locationStore,
		lockStore,
		cacheStore,
	)

	// Initialize handlers.
	trackingHandler := handler.NewTrackingHandler(trackingService)
	fleetHandler := handler.NewFleetHandler(locationStore, cacheStore)
	subscribeHandler := handler.NewSubscribeHandler(registry, rosterReader)

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		TrackingHandler:  trackingHandler,
		FleetHandler:     fleetHandler,
		SubscribeHandler: subscribeHandler,
		Verifier:         verifier,
		RedisClient:      redisClient,
		NewRelicApp:      nrApp,
	})

	// Create HTTP server.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, hub
}
