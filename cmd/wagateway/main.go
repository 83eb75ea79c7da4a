package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wagateway/internal/config"
	"wagateway/internal/constants"
	"wagateway/internal/database"
	apperrors "wagateway/internal/errors"
	"wagateway/internal/events"
	"wagateway/internal/metrics"
	"wagateway/internal/models"
	"wagateway/internal/retry"
	"wagateway/internal/service"
	"wagateway/internal/token"
	"wagateway/internal/tracing"
	"wagateway/pkg/whatsapp"
	"wagateway/pkg/whatsapp/types"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "", "Path to configuration file (environment only when empty)")
	envFile    = flag.String("env-file", ".env", "Path to a .env file loaded before the configuration")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("wagateway %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
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
	}).Info("Starting wagateway")

	if err := config.LoadDotEnv(*envFile); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	applyLogLevel(logger, cfg.LogLevel, *verbose)

	tracingManager := tracing.NewTracingManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	hub := events.NewHub(logger, metrics.GetRegistry())
	defer hub.Close()

	waClient := whatsapp.NewClient(types.ClientConfig{
		BaseURL:       cfg.WhatsApp.APIBaseURL,
		APIVersion:    cfg.WhatsApp.APIVersion,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		AppID:         cfg.WhatsApp.AppID,
		AppSecret:     cfg.WhatsApp.AppSecret,
		SystemUserID:  cfg.WhatsApp.SystemUserID,
		Timeout:       time.Duration(cfg.WhatsApp.TimeoutSec) * time.Second,
	})

	tokens := token.NewManager(token.ConfigFromModel(cfg.WhatsApp), waClient, token.NewMemoryCache(), logger,
		token.WithEvents(hub))

	dispatcher := service.NewDispatcher(service.DispatcherConfigFromModel(cfg.WhatsApp), waClient, tokens, db, logger,
		service.WithEvents(hub))

	responder := service.NewAutoResponder(cfg.AutoResponse)
	processor := service.NewWebhookProcessor(db, dispatcher, waClient, tokens, responder, logger,
		service.WithEvents(hub))

	if *configPath != "" {
		watcher := config.NewConfigWatcher(*configPath, logger)
		watcher.OnConfigChange(func(newCfg *models.Config) {
			responder.Update(newCfg.AutoResponse)
			applyLogLevel(logger, newCfg.LogLevel, *verbose)
		})
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logger.WithError(err).Warn("Configuration watcher stopped")
			}
		}()
	}

	scheduler := service.NewScheduler(db, constants.ConversationInactiveAfter, constants.MaintenanceIntervalHours, logger)
	go scheduler.Start(ctx)

	deliveryMonitor := service.NewDeliveryMonitor(db, constants.DeliveryCheckInterval, constants.DeliveryStaleThreshold, logger)
	go deliveryMonitor.Start(ctx)

	server := NewServer(cfg, Dependencies{
		Verifier:   whatsapp.NewWebhookVerifier(cfg.WhatsApp.WebhookSecret, cfg.WhatsApp.VerifyToken),
		Processor:  processor,
		Dispatcher: dispatcher,
		Tokens:     tokens,
		Health:     db,
		Events:     hub,
		Verbose:    *verbose,
	}, logger)

	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil {
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

	// Close live feeds first so their connections don't hold up shutdown
	hub.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}

// openDatabase opens the store, retrying with exponential backoff while the
// volume or file lock is not yet available.
func openDatabase(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (*database.Database, error) {
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})

	errLog := apperrors.NewLogger(logger)
	var db *database.Database
	err := backoff.RetryWithPredicate(ctx, func() error {
		opened, openErr := database.New(cfg.Database.Path, database.OptionsFromConfig(cfg.Database))
		if openErr != nil {
			appErr := apperrors.WrapRetryable(openErr, apperrors.ErrCodeDatabaseConnection, "failed to open database")
			errLog.LogRetryableError(appErr, "Failed to initialize database", logrus.Fields{"path": cfg.Database.Path})
			return appErr
		}
		db = opened
		return nil
	}, apperrors.IsRetryable)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	return db, nil
}

// applyLogLevel sets the configured level. Debug output includes message
// content and is only enabled through -verbose.
func applyLogLevel(logger *logrus.Logger, configured string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
		return
	}

	level, err := logrus.ParseLevel(configured)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", configured)
		logger.SetLevel(logrus.InfoLevel)
		return
	}
	if level > logrus.InfoLevel {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}
