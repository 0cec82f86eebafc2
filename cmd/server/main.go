package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"bookingflow/internal/api"
	"bookingflow/internal/artifact"
	"bookingflow/internal/config"
	"bookingflow/internal/logging"
	"bookingflow/internal/notify"
	"bookingflow/internal/repository"
	"bookingflow/internal/tls"
	"bookingflow/internal/workflow"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logging
	logger := logging.NewLogger()

	// Parse command line flags
	configFile := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		log.Fatalf("Configuration loading failed: %v", err)
	}

	logger.Info("Starting Booking Workflow Service")

	// Initialize database connection
	dbPool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize database: %v", err)
		log.Fatalf("Database initialization failed: %v", err)
	}
	defer dbPool.Close()

	logger.Info("Database connected")

	// Initialize repository layer
	store := repository.NewPostgresStore(dbPool, logger)
	if !store.Available(ctx) {
		logger.Warn("booking ledger table not provisioned; workflows will run without idempotency guarantees until migrations are applied")
	}

	// Initialize artifact storage
	artifacts, err := initArtifactStore(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize artifact storage: %v", err)
		log.Fatalf("Artifact storage initialization failed: %v", err)
	}

	// Initialize notification transport
	transport, err := notify.NewSMTPTransport(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.Notify.FromAddress,
	})
	if err != nil {
		logger.Error("Failed to initialize SMTP transport: %v", err)
		log.Fatalf("SMTP initialization failed: %v", err)
	}
	notifier := notify.NewNotifier(transport, cfg.Notify.OperationsMailbox, logger)

	// Initialize service layer
	wfCfg := workflow.DefaultConfig()
	wfCfg.SweepGrace = time.Duration(cfg.Sweep.GraceSeconds) * time.Second
	wfCfg.SweepBatch = cfg.Sweep.BatchSize
	wfCfg.ReclaimAge = time.Duration(cfg.Sweep.ReclaimMinutes) * time.Minute
	wfCfg.LogoPath = cfg.Branding.LogoPath
	service := workflow.NewService(store, store, store, artifacts, notifier, wfCfg, logger)

	logger.Info("Service layer initialized")

	// In-process sweeper; the sweep endpoint stays available for external schedulers.
	go service.RunSweepLoop(ctx, time.Duration(cfg.Sweep.TickSeconds)*time.Second)

	// Create Echo server
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("bookingflow"))

	apiServer := api.NewServer(service, store)
	e.GET("/health", apiServer.HandleHealth)
	apiServer.RegisterRoutes(e.Group("/api/v1"))

	logger.Info("REST API handlers mounted")

	// Create HTTP server
	addr := ":8080"
	if cfg.TLS.Enable {
		// use TLS port 8443
		addr = ":8443"
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server starting address=%s tls=%v", addr, cfg.TLS.Enable)
		if cfg.TLS.Enable {
			if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
				logger.Error("TLS enabled but cert/key file not provided")
				serverErrors <- server.ListenAndServe()
				return
			}
			if generated, err := tls.EnsureSelfSignedCert(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hostnames); err != nil {
				logger.Error("failed to ensure self-signed cert: %v", err)
			} else if generated {
				logger.Info("generated self-signed certificate at %s", cfg.TLS.CertFile)
			}
			serverErrors <- server.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			serverErrors <- server.ListenAndServe()
		}
	}()

	// Wait for shutdown signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			logger.Error("Server error: %v", err)
			log.Fatalf("Server error: %v", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received: %v", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				logger.Error("Server close error: %v", err)
			}
		}

		logger.Info("Server stopped gracefully")
	}
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	logger.Debug("Initializing database connection")

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

func initArtifactStore(ctx context.Context, cfg *config.Config) (artifact.Store, error) {
	switch cfg.Storage.Backend {
	case "s3":
		return artifact.NewS3Store(ctx, artifact.S3Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		})
	case "fs":
		return artifact.NewFSStore(cfg.Storage.Dir), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
