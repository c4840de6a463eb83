package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"leadrelay/internal/config"
	"leadrelay/internal/constants"
	"leadrelay/internal/database"
	"leadrelay/internal/events"
	"leadrelay/internal/metrics"
	"leadrelay/internal/models"
	"leadrelay/internal/privacy"
	"leadrelay/internal/retry"
	"leadrelay/internal/service"
	"leadrelay/pkg/relayapi"
	"leadrelay/pkg/telegram"

	"github.com/sirupsen/logrus"
)

// application holds the pieces shared by the serve and operator commands
type application struct {
	cfg        *models.Config
	logger     *logrus.Logger
	dispatcher service.Dispatcher
	hub        *events.Hub
	db         *database.Database
}

// loadConfiguration reads the config file. A missing file at the default
// path falls back to defaults plus environment; an explicit path must exist.
func loadConfiguration(path string, explicit bool) (*models.Config, error) {
	if _, err := os.Stat(path); !explicit && stderrors.Is(err, os.ErrNotExist) {
		return config.Default()
	}
	return config.LoadConfig(path)
}

func newLogger(level string, verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	applyLogLevel(logger, level, verbose)
	return logger
}

// applyLogLevel sets the configured level. Debug output carries personal
// data, so it is reserved for --verbose.
func applyLogLevel(logger *logrus.Logger, level string, verbose bool) {
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
		return
	}

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", level)
		parsed = logrus.InfoLevel
	}
	if parsed > logrus.InfoLevel {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
}

func newApplication(ctx context.Context, opts *globalOptions, explicitConfig bool) (*application, error) {
	cfg, err := loadConfiguration(opts.configPath, explicitConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel, opts.verbose)
	if opts.verbose {
		logger.Info("Verbose logging enabled - sensitive information will be logged")
	}

	app := &application{
		cfg:    cfg,
		logger: logger,
		hub:    events.NewHub(),
	}

	if cfg.Mode == models.ModeStub {
		app.dispatcher = service.NewStubDispatcher(time.Duration(cfg.Stub.LatencyMs)*time.Millisecond, nil, logger)
		logger.Warn("Running in stub mode: submissions are accepted but not delivered")
		return app, nil
	}

	db, err := openDatabase(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	app.db = db

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}

	primary := relayapi.NewClientWithLogger(cfg.Primary.URL, cfg.Primary.Secret,
		&http.Client{Timeout: time.Duration(cfg.Primary.TimeoutSec) * time.Second}, logger)

	var secondary telegram.Client
	if cfg.Telegram.BotToken != "" {
		secondary = telegram.NewClientWithLogger(cfg.Telegram.APIBaseURL, cfg.Telegram.BotToken,
			&http.Client{Timeout: time.Duration(cfg.Telegram.TimeoutSec) * time.Second}, logger)
		logger.WithField("bot", privacy.MaskBotToken(cfg.Telegram.BotToken)).Info("Secondary channel configured")
	} else {
		logger.Warn("No bot token configured, secondary channel disabled")
	}

	app.dispatcher = service.NewLiveDispatcher(service.DispatcherConfig{
		ChannelOrder: cfg.ChannelOrder,
		RetryDelay:   time.Duration(cfg.Retry.DelayMs) * time.Millisecond,
		Location:     loc,
	}, service.LiveDeps{
		Primary:   primary,
		Secondary: secondary,
		Identity:  service.NewIdentityResolver(cfg.Telegram.ChatID, db, secondary, logger),
		Store:     db,
		Logger:    logger,
		Recorder:  metrics.NewRecorder(nil),
		Events:    app.hub,
	})

	logger.WithFields(logrus.Fields{
		"mode":          cfg.Mode,
		"channel_order": cfg.ChannelOrder,
	}).Info("Live dispatcher initialized")
	return app, nil
}

// openDatabase opens the store, retrying with exponential backoff
func openDatabase(ctx context.Context, cfg models.DatabaseConfig, logger *logrus.Logger) (*database.Database, error) {
	backoff := retry.NewBackoff(retry.BackoffConfig{
		InitialDelay: time.Duration(constants.DefaultInitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(constants.DefaultBackoffMaxMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
		Jitter:       true,
	})

	var db *database.Database
	err := backoff.Retry(ctx, func() error {
		var initErr error
		db, initErr = database.New(cfg)
		if initErr != nil {
			logger.Warnf("Failed to initialize database: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database after retries: %w", err)
	}
	return db, nil
}

func (a *application) Close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close database")
	}
}
