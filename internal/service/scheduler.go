package service

import (
	"context"
	"fmt"
	"time"

	"leadrelay/internal/errors"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler runs RetryAll on a cron schedule
type Scheduler struct {
	dispatcher Dispatcher
	schedule   string
	timeout    time.Duration
	logger     *logrus.Logger
	cron       *cron.Cron
}

// NewScheduler validates a standard 5-field cron expression
func NewScheduler(dispatcher Dispatcher, schedule string, logger *logrus.Logger) (*Scheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid retry schedule %q: %w", schedule, err)
	}
	return &Scheduler{
		dispatcher: dispatcher,
		schedule:   schedule,
		timeout:    10 * time.Minute,
		logger:     logger,
	}, nil
}

// Start runs until ctx is cancelled. Overlapping runs are skipped.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := s.cron.AddFunc(s.schedule, func() { s.runRetry(ctx) }); err != nil {
		s.logger.WithError(err).Error("Failed to register scheduled retry")
		return
	}

	s.logger.WithField("schedule", s.schedule).Info("Starting pending retry scheduler")
	s.cron.Start()

	<-ctx.Done()
	s.logger.Info("Scheduler context cancelled, stopping")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runRetry(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	summary, err := s.dispatcher.RetryAll(runCtx)
	switch {
	case errors.HasCode(err, errors.ErrCodeRetryInProgress):
		s.logger.Info("Skipping scheduled retry: a retry is already running")
	case err != nil && summary == nil:
		s.logger.WithError(err).WithFields(errors.Fields(err)).Error("Scheduled retry failed")
	case err != nil:
		s.logger.WithError(err).Warn("Scheduled retry interrupted")
	case summary.Succeeded > 0 || len(summary.Failed) > 0:
		s.logger.WithFields(logrus.Fields{
			"succeeded": summary.Succeeded,
			"failed":    len(summary.Failed),
		}).Info("Scheduled retry completed")
	default:
		s.logger.Debug("Scheduled retry found an empty queue")
	}
}
