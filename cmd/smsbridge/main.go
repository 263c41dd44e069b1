package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smsbridge/internal/config"
	"smsbridge/internal/constants"
	"smsbridge/internal/database"
	"smsbridge/internal/metrics"
	"smsbridge/internal/retry"
	"smsbridge/internal/service"
	"smsbridge/internal/validation"
	"smsbridge/pkg/matrix"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("smsbridge %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting smsbridge")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
	} else if cfg.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			logger.SetLevel(logrus.InfoLevel)
		} else {
			logger.SetLevel(level)
		}
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	accessToken := os.Getenv("MATRIX_ACCESS_TOKEN")
	if accessToken == "" {
		return fmt.Errorf("MATRIX_ACCESS_TOKEN environment variable is required")
	}

	// Initialize database with exponential backoff retry
	var db *database.Database
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})
	err = backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg.Database.Path)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	defer func() { _ = db.Close() }()

	httpClient := &http.Client{
		Timeout: time.Duration(cfg.Matrix.HTTPTimeoutSec) * time.Second,
	}
	matrixClient := matrix.NewClientWithLogger(cfg.Matrix.HomeserverURL, accessToken, httpClient, logger)

	botUserID := validation.BotUserID(cfg.Matrix.BotUsername, cfg.Matrix.ServerName)
	if err := db.GetOrCreateUser(ctx, botUserID, true); err != nil {
		return fmt.Errorf("failed to provision bot user: %w", err)
	}

	location, err := time.LoadLocation(cfg.Bridge.DefaultTimeZone)
	if err != nil {
		return fmt.Errorf("failed to load default time zone: %w", err)
	}

	registry := metrics.NewRegistry()

	queue := service.NewMessageQueue(db, db, db, matrixClient, registry, logger)
	provisioner := service.NewRoomProvisioner(db, db, db, matrixClient, botUserID, cfg.Bridge.AllowSupersetMatch, logger)
	commands := service.NewCommandService(provisioner, queue, cfg.Templates, cfg.Matrix.ServerName, location, logger)
	inbound := service.NewInboundRouter(db, matrixClient, cfg.Matrix.ServerName, cfg.Bridge.DefaultRoomID, cfg.Templates, registry, logger)

	scheduler := service.NewDrainScheduler(queue, time.Duration(cfg.Bridge.DrainIntervalSec)*time.Second, logger)
	go scheduler.Start(ctx)
	defer scheduler.Stop()

	server := NewServer(cfg, inbound, commands, queue, db, registry, logger)
	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}
