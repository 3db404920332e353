package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"parking-bridge-backend/config"
	"parking-bridge-backend/internal/api"
	"parking-bridge-backend/internal/backend"
	"parking-bridge-backend/internal/db"
	"parking-bridge-backend/internal/forward"
	"parking-bridge-backend/internal/ingest"
	"parking-bridge-backend/internal/mapping"
	"parking-bridge-backend/internal/notification"
	"parking-bridge-backend/internal/reservation"
	"parking-bridge-backend/internal/store"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "parking-bridge ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded, backend at %s, serial on %s", cfg.Backend.URL, cfg.Serial.Port)

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Data store client shared by every subsystem
	client := backend.New(&cfg.Backend)

	// Push subsystem is optional: it needs VAPID keys and a database.
	var appStore store.Store
	var pool *notification.WorkerPool
	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}

		gormDB, err := db.Init(&cfg.Database)
		if err != nil {
			logger.Fatalf("failed to initialize database: %v", err)
		}
		appStore = store.NewGormStore(gormDB)

		pool = notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions)
		pool.Start(ctx)
		logger.Println("push notification subsystem initialized")
	} else {
		logger.Println("VAPID keys not configured; push notifications disabled")
	}

	// Sensor mapping resolver: startup refresh plus periodic rebuilds.
	resolver := mapping.NewResolver(client, cfg.Mapping, cfg.Backend.RequestTimeout)
	go resolver.Run(ctx)

	// Serial ingestion pipeline: port -> state machine -> change filter -> PUT.
	forwarder := forward.New(cfg.Forwarder, client)
	forwarder.Start(ctx)

	processor := ingest.NewProcessor(cfg.Mapping, cfg.Ingest, resolver, forwarder)
	source := ingest.NewSource(cfg.Serial, processor.ProcessLine)
	go source.Run(ctx)

	// Reservation engine and the capacity-reopened watcher.
	engine := reservation.NewEngine(client, cfg.Reservation.HoldAmount)
	if pool != nil {
		watcher := reservation.NewWatcher(engine, cfg.Reservation.PollInterval, pool)
		go watcher.Run(ctx)
	}

	// Local HTTP API
	handler := api.NewHandler(appStore, webpushOptions, processor, resolver, engine)
	router := api.NewRouter(&cfg.Server, handler)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Println("Shutdown signal received, stopping services...")
	cancel()

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
