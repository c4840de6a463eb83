package service

import (
	"context"
	"time"

	"leadrelay/internal/constants"
	"leadrelay/internal/models"
	"leadrelay/internal/retry"

	"github.com/sirupsen/logrus"
)

// StubDispatcher accepts every submission after a simulated latency without
// contacting any channel. Used for offline and demo deployments.
type StubDispatcher struct {
	latency time.Duration
	now     func() time.Time
	logger  *logrus.Logger
}

func NewStubDispatcher(latency time.Duration, now func() time.Time, logger *logrus.Logger) *StubDispatcher {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &StubDispatcher{latency: latency, now: now, logger: logger}
}

func (s *StubDispatcher) Dispatch(ctx context.Context, fields models.FieldSet, formType string, _ models.ClientContext) (*models.DeliveryResult, error) {
	if formType == "" {
		formType = constants.DefaultFormType
	}
	s.logger.WithFields(logrus.Fields{
		LogFieldFormType:   formType,
		LogFieldFieldCount: fields.Len(),
	}).Info("Stub dispatcher accepted submission")

	if err := retry.Wait(ctx, s.latency); err != nil {
		return nil, err
	}

	return &models.DeliveryResult{
		OK: true,
		Result: models.DeliveryReceipt{
			MessageID: s.now().UnixMilli(),
			Via:       constants.ChannelStub,
		},
	}, nil
}

func (s *StubDispatcher) ListPending(context.Context) ([]models.PendingEntry, error) {
	return []models.PendingEntry{}, nil
}

func (s *StubDispatcher) RetryAll(context.Context) (*models.RetrySummary, error) {
	return &models.RetrySummary{Failed: []models.RetryFailure{}}, nil
}

func (s *StubDispatcher) SelfTest(ctx context.Context) (*models.SelfTestReport, error) {
	return runSelfTest(ctx, s)
}
