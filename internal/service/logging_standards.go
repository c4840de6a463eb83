package service

// Standard log field names used across the relay.
const (
	LogFieldRequestID  = "request_id"
	LogFieldTraceID    = "trace_id"
	LogFieldPendingID  = "pending_id"
	LogFieldMessageID  = "message_id"
	LogFieldChatID     = "chat_id"
	LogFieldFormType   = "form_type"
	LogFieldChannel    = "channel"
	LogFieldVia        = "via"
	LogFieldFieldCount = "field_count"

	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"
	LogFieldMethod    = "method"

	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"
	LogFieldSize     = "size_bytes"

	LogFieldURL        = "url"
	LogFieldEndpoint   = "endpoint"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"

	LogFieldReason    = "reason"
	LogFieldErrorCode = "error_code"
	LogFieldAttempt   = "attempt"
)

// Log levels:
//
// DEBUG: raw payloads (masked), identity lookups, per-channel attempts.
// INFO: startup and shutdown, delivered submissions, retry summaries.
// WARN: a channel failed and the next one is tried, secondary fallback used,
// rate limiting triggered, retry run skipped because one is in progress.
// ERROR: total delivery failure (submission queued), store corruption,
// failed enqueue.
