package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"leadrelay/internal/constants"
	"leadrelay/internal/errors"
	"leadrelay/internal/events"
	"leadrelay/internal/metrics"
	"leadrelay/internal/models"
	"leadrelay/internal/retry"
	"leadrelay/internal/tracing"
	"leadrelay/pkg/relayapi"
	"leadrelay/pkg/telegram"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

// Dispatcher delivers lead submissions. The implementation is chosen once at
// startup: LiveDispatcher in production, StubDispatcher offline.
type Dispatcher interface {
	Dispatch(ctx context.Context, fields models.FieldSet, formType string, env models.ClientContext) (*models.DeliveryResult, error)
	ListPending(ctx context.Context) ([]models.PendingEntry, error)
	RetryAll(ctx context.Context) (*models.RetrySummary, error)
	SelfTest(ctx context.Context) (*models.SelfTestReport, error)
}

// isoMillis matches the browser's Date.toISOString output
const isoMillis = "2006-01-02T15:04:05.000Z"

type DispatcherConfig struct {
	ChannelOrder []string
	RetryDelay   time.Duration
	Location     *time.Location
	Now          func() time.Time
}

type LiveDispatcher struct {
	primary   relayapi.Client
	secondary telegram.Client
	identity  *IdentityResolver
	queue     *PendingQueue
	formatter *MessageFormatter
	order     []string
	delay     time.Duration
	now       func() time.Time
	logger    *logrus.Logger
	recorder  *metrics.Recorder
	events    events.Publisher

	retrying  atomic.Bool
	stampMu   sync.Mutex
	lastStamp time.Time
}

// LiveDeps are the collaborators of a LiveDispatcher. Recorder and Events
// may be nil.
type LiveDeps struct {
	Primary   relayapi.Client
	Secondary telegram.Client
	Identity  *IdentityResolver
	Store     KeyValueStore
	Logger    *logrus.Logger
	Recorder  *metrics.Recorder
	Events    events.Publisher
}

func NewLiveDispatcher(cfg DispatcherConfig, deps LiveDeps) *LiveDispatcher {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if len(cfg.ChannelOrder) == 0 {
		cfg.ChannelOrder = []string{constants.ChannelPrimary, constants.ChannelSecondary}
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if deps.Recorder == nil {
		deps.Recorder = metrics.NewRecorder(nil)
	}
	if deps.Events == nil {
		deps.Events = noopPublisher{}
	}
	if deps.Identity == nil {
		deps.Identity = NewIdentityResolver("", deps.Store, deps.Secondary, deps.Logger)
	}

	return &LiveDispatcher{
		primary:   deps.Primary,
		secondary: deps.Secondary,
		identity:  deps.Identity,
		queue:     NewPendingQueue(deps.Store, cfg.Now),
		formatter: NewMessageFormatter(cfg.Location),
		order:     append([]string(nil), cfg.ChannelOrder...),
		delay:     cfg.RetryDelay,
		now:       cfg.Now,
		logger:    deps.Logger,
		recorder:  deps.Recorder,
		events:    deps.Events,
	}
}

// Dispatch stamps the client context onto the fields once and tries each
// channel in order, exactly once. When every channel fails the record is
// appended to the pending queue and a TOTAL_DELIVERY_FAILURE is returned.
func (d *LiveDispatcher) Dispatch(ctx context.Context, fields models.FieldSet, formType string, env models.ClientContext) (result *models.DeliveryResult, err error) {
	if formType == "" {
		formType = constants.DefaultFormType
	}
	record := d.enrich(fields, formType, env)

	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, tracing.SpanDispatch,
		attribute.String("form_type", formType),
		attribute.Int("field_count", fields.Len()),
	)
	defer func() {
		outcome := "delivered"
		if err != nil {
			outcome = "failed"
		}
		d.recorder.DispatchDuration(time.Since(start), outcome)
		tracing.EndSpan(span, err)
	}()

	d.recorder.Submission(formType)
	log := d.logger.WithFields(logrus.Fields{
		LogFieldRequestID: tracing.GetRequestID(ctx),
		LogFieldFormType:  formType,
	})
	if d.logger.IsLevelEnabled(logrus.DebugLevel) {
		values := make(map[string]interface{}, fields.Len())
		for _, f := range fields.Fields() {
			values[f.Name] = f.Value
		}
		log.WithField("fields", LogFields(ctx, values)).Debug("Starting dispatch")
	}

	result, reasons := d.deliver(ctx, record, log)
	if result != nil {
		span.SetAttributes(attribute.String("via", result.Result.Via))
		return result, nil
	}

	failure := errors.NewTotalDeliveryFailure(reasons, d.order)

	entry, qErr := d.queue.Append(ctx, record)
	if qErr != nil {
		log.WithError(qErr).WithFields(errors.Fields(qErr)).Error("Failed to save undelivered submission to the pending queue")
		return nil, failure.WithContext("queued", false).WithUserMessage(constants.UnsavedUserMessage)
	}

	d.recorder.Enqueued()
	d.events.Publish(events.DeliveryEvent{Type: events.TypeQueued, FormType: formType, PendingID: entry.ID, Reason: failure.Message})
	log.WithFields(logrus.Fields{
		LogFieldPendingID: entry.ID,
		LogFieldReason:    failure.Message,
	}).Error("Delivery failed on all channels, submission queued for retry")

	return nil, failure.WithContext("queued", true).WithContext("pending_id", entry.ID)
}

// enrich builds the record delivered on every attempt and stored on failure.
// The timestamp never goes backwards across calls.
func (d *LiveDispatcher) enrich(fields models.FieldSet, formType string, env models.ClientContext) models.SubmissionRecord {
	d.stampMu.Lock()
	now := d.now().UTC()
	if now.Before(d.lastStamp) {
		now = d.lastStamp
	}
	d.lastStamp = now
	d.stampMu.Unlock()

	env.Timestamp = now.Format(isoMillis)
	if env.Referrer == "" {
		env.Referrer = constants.DirectVisitReferrer
	}

	return models.SubmissionRecord{
		Fields:   fields.Clone(),
		FormType: formType,
		Context:  env,
	}
}

// deliver tries every channel once, in order, and stops at the first
// acknowledgment. On total failure it returns the per-channel reasons.
func (d *LiveDispatcher) deliver(ctx context.Context, record models.SubmissionRecord, log *logrus.Entry) (*models.DeliveryResult, map[string]string) {
	reasons := make(map[string]string, len(d.order))

	for i, channel := range d.order {
		messageID, err := d.attempt(ctx, channel, record)
		if err != nil {
			reason := errors.Reason(err)
			reasons[channel] = reason
			d.recorder.ChannelFailure(channel)
			d.events.Publish(events.DeliveryEvent{Type: events.TypeChannelFailed, FormType: record.FormType, Channel: channel, Reason: reason})
			errors.LogRetryable(log.WithField(LogFieldChannel, channel), err, "Delivery channel failed")
			continue
		}

		result := &models.DeliveryResult{
			OK:     true,
			Result: models.DeliveryReceipt{MessageID: messageID, Via: channel},
		}
		if i > 0 {
			result.Warning = constants.FallbackWarning
			if channel == constants.ChannelSecondary {
				result.Warning = constants.SecondaryWarning
			}
		}

		d.recorder.Delivered(channel)
		d.events.Publish(events.DeliveryEvent{Type: events.TypeDelivered, FormType: record.FormType, Via: channel, MessageID: messageID})
		entry := log.WithFields(logrus.Fields{LogFieldVia: channel, LogFieldMessageID: messageID})
		if result.Warning != "" {
			entry.Warn("Submission delivered through fallback channel")
		} else {
			entry.Info("Submission delivered")
		}
		return result, nil
	}

	return nil, reasons
}

func (d *LiveDispatcher) attempt(ctx context.Context, channel string, record models.SubmissionRecord) (int64, error) {
	switch channel {
	case constants.ChannelPrimary:
		return d.sendPrimary(ctx, record)
	case constants.ChannelSecondary:
		return d.sendSecondary(ctx, record)
	default:
		return 0, errors.New(errors.ErrCodeInvalidConfig, fmt.Sprintf("unknown channel %q", channel))
	}
}

func (d *LiveDispatcher) sendPrimary(ctx context.Context, record models.SubmissionRecord) (id int64, err error) {
	ctx, span := tracing.StartSpan(ctx, tracing.SpanChannelPrimary)
	defer func() { tracing.EndSpan(span, err) }()

	if d.primary == nil {
		return 0, errors.NewProtocolError(constants.ChannelPrimary, "primary channel not configured", 0)
	}

	resp, err := d.primary.Send(ctx, record.WireData(), record.FormType)
	if err != nil {
		return 0, err
	}
	if id, ok := resp.NumericID(); ok && id != 0 {
		return id, nil
	}
	return d.now().UnixMilli(), nil
}

func (d *LiveDispatcher) sendSecondary(ctx context.Context, record models.SubmissionRecord) (id int64, err error) {
	ctx, span := tracing.StartSpan(ctx, tracing.SpanChannelSecondary)
	defer func() { tracing.EndSpan(span, err) }()

	if d.secondary == nil {
		return 0, errors.NewProtocolError(constants.ChannelSecondary, "secondary channel not configured", 0)
	}

	chatID, err := d.identity.Resolve(ctx)
	if err != nil {
		return 0, err
	}

	d.logger.WithField(LogFieldChatID, LogChatID(ctx, chatID)).Debug("Sending submission through secondary channel")

	msg, err := d.secondary.SendMessage(ctx, chatID, d.formatter.Format(record, d.now()))
	if err != nil {
		return 0, err
	}
	if msg != nil && msg.MessageID != 0 {
		return msg.MessageID, nil
	}
	return d.now().UnixMilli(), nil
}

func (d *LiveDispatcher) ListPending(ctx context.Context) ([]models.PendingEntry, error) {
	entries, err := d.queue.Load(ctx)
	if err != nil {
		return nil, err
	}
	d.recorder.QueueSize(len(entries))
	return entries, nil
}

// RetryAll redelivers every queued entry in stored order, pausing between
// entries. Entries that fail again stay queued with their record unchanged;
// only attempts moves, since it counts explicit retry runs. Nothing new is
// enqueued.
func (d *LiveDispatcher) RetryAll(ctx context.Context) (summary *models.RetrySummary, err error) {
	if !d.retrying.CompareAndSwap(false, true) {
		return nil, errors.NewRetryInProgressError()
	}
	defer d.retrying.Store(false)

	ctx, span := tracing.StartSpan(ctx, tracing.SpanPendingRetryAll)
	defer func() { tracing.EndSpan(span, err) }()

	entries, err := d.queue.Load(ctx)
	if err != nil {
		return nil, err
	}

	summary = &models.RetrySummary{Failed: []models.RetryFailure{}}
	span.SetAttributes(attribute.Int("pending.count", len(entries)))
	if len(entries) == 0 {
		d.recorder.QueueSize(0)
		return summary, nil
	}

	log := d.logger.WithField(LogFieldOperation, "retry_all")
	log.WithField(LogFieldCount, len(entries)).Info("Retrying pending submissions")

	var succeeded, failed []string
	var interrupted error
	for i, entry := range entries {
		if i > 0 {
			if waitErr := retry.Wait(ctx, d.delay); waitErr != nil {
				interrupted = waitErr
				break
			}
		}

		entryLog := log.WithFields(logrus.Fields{
			LogFieldPendingID: entry.ID,
			LogFieldFormType:  entry.Record.FormType,
			LogFieldAttempt:   entry.Attempts + 1,
		})
		if result, reasons := d.deliver(ctx, entry.Record, entryLog); result != nil {
			succeeded = append(succeeded, entry.ID)
			d.recorder.RetryOutcome("succeeded")
		} else {
			reason := errors.NewTotalDeliveryFailure(reasons, d.order).Message
			failed = append(failed, entry.ID)
			summary.Failed = append(summary.Failed, models.RetryFailure{ID: entry.ID, Reason: reason})
			d.recorder.RetryOutcome("failed")
		}
	}
	summary.Succeeded = len(succeeded)

	// detached so an interrupted run still records what was delivered
	remaining, err := d.queue.Reconcile(context.WithoutCancel(ctx), succeeded, failed)
	if err != nil {
		return nil, err
	}
	d.recorder.QueueSize(remaining)

	d.events.Publish(events.DeliveryEvent{Type: events.TypeRetryCompleted, Succeeded: summary.Succeeded, Failed: len(summary.Failed)})
	log.WithFields(logrus.Fields{
		"succeeded": summary.Succeeded,
		"failed":    len(summary.Failed),
		"remaining": remaining,
	}).Info("Pending retry completed")

	if interrupted != nil {
		return summary, interrupted
	}
	return summary, nil
}

// SelfTest sends the canned diagnostic submission and reports the outcome.
// A delivery failure is reported, not returned as an error.
func (d *LiveDispatcher) SelfTest(ctx context.Context) (*models.SelfTestReport, error) {
	return runSelfTest(ctx, d)
}

type noopPublisher struct{}

func (noopPublisher) Publish(events.DeliveryEvent) {}
