package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadrelay/internal/config"
	"leadrelay/internal/constants"
	"leadrelay/internal/models"
	"leadrelay/internal/service"
	"leadrelay/internal/tracing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, cmd.Flags().Changed("config"))
		},
	}
}

func runServe(ctx context.Context, opts *globalOptions, explicitConfig bool) error {
	app, err := newApplication(ctx, opts, explicitConfig)
	if err != nil {
		return err
	}
	defer app.Close()

	cfg, logger := app.cfg, app.logger
	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting leadrelay")

	tracingManager := tracing.NewTracingManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	ctx = service.WithVerbose(ctx, opts.verbose)

	if cfg.Retry.Schedule != "" && cfg.Mode == models.ModeLive {
		scheduler, err := service.NewScheduler(app.dispatcher, cfg.Retry.Schedule, logger)
		if err != nil {
			return err
		}
		go scheduler.Start(ctx)
	}

	server := NewServer(cfg, app.dispatcher, app.hub, logger)
	server.verbose = opts.verbose

	if _, statErr := os.Stat(opts.configPath); statErr == nil {
		watcher := config.NewConfigWatcher(opts.configPath, logger)
		watcher.OnConfigChange(func(c *models.Config) {
			applyLogLevel(logger, c.LogLevel, opts.verbose)
			server.UpdateRequiredFields(c.Validation.RequiredFields)
		})
		go func() {
			if err := watcher.Start(ctx); err != nil {
				logger.WithError(err).Warn("Configuration watcher stopped")
			}
		}()
	}

	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
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

func newPendingCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Inspect and retry undelivered submissions",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Print the pending queue as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, opts, func(ctx context.Context, app *application) error {
				entries, err := app.dispatcher.ListPending(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), entries)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "retry",
		Short: "Redeliver every pending submission once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, opts, func(ctx context.Context, app *application) error {
				summary, err := app.dispatcher.RetryAll(ctx)
				if summary != nil {
					if printErr := printJSON(cmd.OutOrStdout(), summary); printErr != nil {
						return printErr
					}
				}
				return err
			})
		},
	})

	return cmd
}

func newSelfTestCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "selftest",
		Short: "Send the diagnostic submission and report which channel accepted it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, opts, func(ctx context.Context, app *application) error {
				report, err := app.dispatcher.SelfTest(ctx)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
				if !report.OK {
					return fmt.Errorf("self-test failed: %s", report.Error)
				}
				return nil
			})
		},
	}
}

// withApplication runs fn against a fully built application that is torn
// down afterwards
func withApplication(cmd *cobra.Command, opts *globalOptions, fn func(context.Context, *application) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, opts, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(service.WithVerbose(ctx, opts.verbose), app)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
