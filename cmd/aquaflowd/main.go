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

	"aquaflow-backend/config"
	"aquaflow-backend/internal/api"
	"aquaflow-backend/internal/db"
	"aquaflow-backend/internal/feed"
	"aquaflow-backend/internal/history"
	"aquaflow-backend/internal/notification"
	"aquaflow-backend/internal/prefs"
	"aquaflow-backend/internal/registry"
	"aquaflow-backend/internal/session"
	"aquaflow-backend/internal/settlement"
	"aquaflow-backend/internal/store"
	"aquaflow-backend/internal/syncer"
)

func main() {
	// Setup logger
	logger := log.New(os.Stdout, "aquaflow ", log.LstdFlags)

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	var webpushOptions *webpush.Options
	if cfg.Push.Enabled {
		if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
			logger.Fatalf("push is enabled but VAPID keys are missing. Please generate them and add them to your config file.")
		}
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
	}

	// Initialize databases
	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	localDB, err := db.OpenLocal(cfg.Local.Path)
	if err != nil {
		logger.Fatalf("failed to open local preferences at %s: %v", cfg.Local.Path, err)
	}
	logger.Println("databases initialized successfully")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	var alerts syncer.AlertDispatcher
	if webpushOptions != nil {
		workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, gormDB, webpushOptions, cfg.Push.ClickURL)
		workerPool.Start(ctx)
		alerts = workerPool
	} else {
		logger.Println("push notifications are disabled")
	}

	var pushFeed syncer.Feed
	if cfg.Sync.Mode != config.FeedModePoll {
		pushFeed = feed.NewClient(cfg.Realtime)
	}
	syncSvc := syncer.NewService(cfg.Sync, appStore, pushFeed, alerts)

	archive := history.NewArchive(appStore, syncSvc, cfg.History.Location())
	coordinator := settlement.NewCoordinator(appStore, archive, syncSvc, cfg.Sync)

	report, err := coordinator.Recover(ctx)
	if err != nil {
		logger.Printf("settlement recovery failed: %v", err)
	} else if len(report.Archived) > 0 || len(report.Pending) > 0 {
		logger.Printf("settlement recovery: %d archived, %d pending review", len(report.Archived), len(report.Pending))
	}

	reg := registry.New(appStore, prefs.NewGormStore(localDB), session.Static(cfg.Session.OperatorID), syncSvc)
	if err := reg.Load(ctx); err != nil {
		// The daemon still serves; the unit list is retried on the next /api/units call.
		logger.Printf("failed to load unit registry: %v", err)
	}

	go syncSvc.Run(ctx)

	// Initialize router
	router := api.NewRouter(cfg.Server, api.Deps{
		DB:         gormDB,
		Store:      appStore,
		Sync:       syncSvc,
		Registry:   reg,
		Archive:    archive,
		Settlement: coordinator,
		WebPush:    webpushOptions,
	})
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

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP server Shutdown: %v", err)
	}
	cancel()

	logger.Println("Server gracefully stopped")
}
