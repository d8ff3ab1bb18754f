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
	"github.com/prometheus/client_golang/prometheus"

	"classroom-occupancy-backend/config"
	"classroom-occupancy-backend/internal/api"
	"classroom-occupancy-backend/internal/availability"
	"classroom-occupancy-backend/internal/db"
	"classroom-occupancy-backend/internal/notification"
	"classroom-occupancy-backend/internal/occupancy"
	"classroom-occupancy-backend/internal/realtime"
	"classroom-occupancy-backend/internal/store"
	"classroom-occupancy-backend/internal/tsdb"
)

func main() {
	logger := log.New(os.Stdout, "occupancy-backend ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Fatalf("VAPID keys must be configured. Please generate them and add them to your config file.")
	}

	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := store.NewGormStore(gormDB)
	if err := registry.SeedClassrooms(ctx, cfg.Occupancy.Classrooms); err != nil {
		logger.Fatalf("failed to seed classrooms: %v", err)
	}

	promRegistry := prometheus.NewRegistry()

	hub := realtime.NewHub(cfg.Realtime, promRegistry)
	hub.Start()
	notifier := realtime.NewNotifier(hub)

	workerPool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, &webpushOptions)
	workerPool.Start(ctx)

	engine := occupancy.NewEngine(
		registry,
		tsdb.NewGormStore(gormDB),
		occupancy.NewCache(cfg.Occupancy.StaleAfter),
		notifier,
		workerPool,
	)

	broadcaster := availability.NewBroadcaster(cfg.Availability, registry, engine, notifier)
	go broadcaster.Run(ctx)

	handler := api.NewHandler(registry, engine, notifier, hub, &webpushOptions)
	router := api.NewRouter(cfg, handler, promRegistry)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}
	hub.Stop()

	logger.Println("Server gracefully stopped")
}
