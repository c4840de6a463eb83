package metrics

import "time"

// Delivery pipeline metric names
const (
	SubmissionsTotal     = "submissions_total"
	DeliveriesTotal      = "deliveries_total"
	ChannelFailuresTotal = "channel_failures_total"
	PendingEnqueuedTotal = "pending_enqueued_total"
	PendingRetryTotal    = "pending_retry_total"
	PendingQueueSize     = "pending_queue_size"
	DispatchDuration     = "dispatch_duration"
)

// Recorder is the slice of the registry the delivery pipeline writes to.
// A nil registry falls back to the global one.
type Recorder struct {
	reg *Registry
}

func NewRecorder(reg *Registry) *Recorder {
	if reg == nil {
		reg = globalRegistry
	}
	return &Recorder{reg: reg}
}

func (r *Recorder) Submission(formType string) {
	r.reg.IncrementCounter(SubmissionsTotal, map[string]string{"form_type": formType}, "Submissions accepted for dispatch")
}

func (r *Recorder) Delivered(via string) {
	r.reg.IncrementCounter(DeliveriesTotal, map[string]string{"via": via}, "Successful deliveries by channel")
}

func (r *Recorder) ChannelFailure(channel string) {
	r.reg.IncrementCounter(ChannelFailuresTotal, map[string]string{"channel": channel}, "Failed channel attempts")
}

func (r *Recorder) Enqueued() {
	r.reg.IncrementCounter(PendingEnqueuedTotal, nil, "Submissions written to the pending queue")
}

// RetryOutcome counts one retried entry; outcome is "succeeded" or "failed"
func (r *Recorder) RetryOutcome(outcome string) {
	r.reg.IncrementCounter(PendingRetryTotal, map[string]string{"outcome": outcome}, "Pending queue retry outcomes")
}

func (r *Recorder) QueueSize(n int) {
	r.reg.SetGauge(PendingQueueSize, float64(n), nil, "Entries waiting in the pending queue")
}

func (r *Recorder) DispatchDuration(d time.Duration, outcome string) {
	r.reg.RecordTimer(DispatchDuration, d, map[string]string{"outcome": outcome}, "Dispatch duration across all channel attempts")
}
