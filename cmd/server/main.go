package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/paperdesk/paperdesk-api/internal/config"
	"github.com/paperdesk/paperdesk-api/internal/events"
	"github.com/paperdesk/paperdesk-api/internal/platform/datalab"
	"github.com/paperdesk/paperdesk-api/internal/platform/gcs"
	"github.com/paperdesk/paperdesk-api/internal/platform/logger"
	"github.com/paperdesk/paperdesk-api/internal/platform/postgres"
	"github.com/paperdesk/paperdesk-api/internal/recognition"
	"github.com/paperdesk/paperdesk-api/internal/service"
	"github.com/paperdesk/paperdesk-api/internal/store"
)

// application bundles the wired dependencies handed to the router.
type application struct {
	config   *config.Config
	logger   *slog.Logger
	registry *recognition.Registry
	bus      *events.Bus
}

func main() {
	migrateCmd := flag.String("migrate", "", "run database migrations (up|down|status) and exit")
	flag.Parse()

	if err := run(*migrateCmd); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(migrateCmd string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	db, err := openDatabase(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close database", "error", err)
		}
	}()

	if migrateCmd != "" {
		log.Info("running migrations", "command", migrateCmd)
		return runMigrations(db, migrateCmd)
	}

	ctx := context.Background()

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create storage client: %w", err)
	}
	defer func() {
		if err := storageClient.Close(); err != nil {
			log.Error("failed to close storage client", "error", err)
		}
	}()

	blobs, err := gcs.NewBlobStore(storageClient, cfg.Storage.Bucket, log)
	if err != nil {
		return fmt.Errorf("failed to create blob store: %w", err)
	}

	engine, err := datalab.NewClient(
		cfg.Recognition.DatalabURL,
		cfg.Recognition.DatalabAPIKey,
		cfg.Recognition.PollTimeout,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create recognition engine client: %w", err)
	}

	pipeline, err := service.NewRecognitionPipeline(
		postgres.NewAttachmentStore(db),
		postgres.NewOwnerLinkStore(db),
		postgres.NewRecognitionLinkStore(db),
		postgres.NewAuditStore(db),
		blobs,
		store.NewDBTransactor(db),
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create recognition pipeline: %w", err)
	}

	bus := events.NewBus(log)

	registry, err := recognition.NewRegistry(engine, pipeline, bus, recognition.Config{
		PollInterval:      cfg.Recognition.PollInterval,
		PollTimeout:       cfg.Recognition.PollTimeout,
		EstimatedDuration: cfg.Recognition.EstimatedDuration,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create recognition registry: %w", err)
	}

	app := &application{
		config:   cfg,
		logger:   log,
		registry: registry,
		bus:      bus,
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           app.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	// Stop polling after the HTTP surface is down so in-flight requests
	// still see a live registry.
	registry.Close()

	log.Info("server stopped")
	return nil
}

// openDatabase opens the connection pool and verifies connectivity.
func openDatabase(cfg *config.Config, log *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("database connection established")
	return db, nil
}
