package errors

import (
	"fmt"
	"net/http"
	"strings"

	"leadrelay/internal/constants"
)

// Common error creators for the delivery pipeline

// NewValidationError creates a validation error carrying per-field problems
func NewValidationError(problems map[string]string) *AppError {
	err := New(ErrCodeValidationFailed, "submission validation failed").
		WithUserMessage("Пожалуйста, заполните все обязательные поля корректно")
	for field, problem := range problems {
		err = err.WithContext(field, problem)
	}
	return err
}

// NewTransportError marks a network-level failure on a delivery channel
func NewTransportError(channel string, err error) *AppError {
	return WrapRetryable(err, ErrCodeChannelTransport, fmt.Sprintf("%s channel unreachable", channel)).
		WithContext("channel", channel)
}

// NewProtocolError marks a negative acknowledgment from a reachable channel
func NewProtocolError(channel, reason string, statusCode int) *AppError {
	appErr := New(ErrCodeChannelProtocol, reason).
		WithContext("channel", channel)
	if statusCode > 0 {
		appErr = appErr.WithContext("status_code", statusCode)
		appErr.Retryable = statusCode >= 500 || statusCode == http.StatusTooManyRequests || statusCode == http.StatusRequestTimeout
	}
	return appErr
}

// NewIdentityUnresolvableError is returned when the secondary channel has no recipient
func NewIdentityUnresolvableError(cause error) *AppError {
	if cause == nil {
		return New(ErrCodeIdentityUnresolvable, "no chat identity available: bot has no recent interactions")
	}
	return Wrap(cause, ErrCodeIdentityUnresolvable, "no chat identity available")
}

// NewTotalDeliveryFailure combines the reasons of every failed channel
func NewTotalDeliveryFailure(reasons map[string]string, order []string) *AppError {
	parts := make([]string, 0, len(order))
	for _, channel := range order {
		if reason, ok := reasons[channel]; ok {
			parts = append(parts, fmt.Sprintf("%s - %s", channel, reason))
		}
	}
	return New(ErrCodeTotalDeliveryFailure, "delivery failed on all channels: "+strings.Join(parts, ", ")).
		WithUserMessage(constants.QueuedUserMessage)
}

// NewStoreCorruptionError reports unparseable durable store contents
func NewStoreCorruptionError(key string, err error) *AppError {
	return Wrap(err, ErrCodeStoreCorruption, "durable store contents are not parseable").
		WithContext("key", key).
		WithUserMessage("Stored data is corrupted")
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError(limit int, window string) *AppError {
	return New(ErrCodeRateLimit, "rate limit exceeded").
		WithContext("limit", limit).
		WithContext("window", window).
		WithUserMessage("Слишком много запросов, попробуйте позже")
}

// NewRetryInProgressError is returned when a retry-all run is already active
func NewRetryInProgressError() *AppError {
	return New(ErrCodeRetryInProgress, "pending queue retry already in progress").
		WithUserMessage("Retry already in progress")
}

// HTTPStatusCode maps error codes to appropriate HTTP status codes
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeValidationFailed, ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeRetryInProgress:
		return http.StatusConflict
	case ErrCodeTotalDeliveryFailure:
		return http.StatusServiceUnavailable
	case ErrCodeChannelTransport, ErrCodeChannelProtocol, ErrCodeIdentityUnresolvable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the JSON body written for failed requests
type HTTPErrorResponse struct {
	Error struct {
		Code    ErrorCode              `json:"code"`
		Message string                 `json:"message"`
		Context map[string]interface{} `json:"context,omitempty"`
	} `json:"error"`
}

// ToHTTPResponse converts an error into a response body safe to show end users.
// Only validation context is exposed; channel reasons stay in the logs.
func ToHTTPResponse(err error) HTTPErrorResponse {
	var response HTTPErrorResponse
	response.Error.Code = GetCode(err)
	response.Error.Message = GetUserMessage(err)

	if appErr, ok := As(err); ok && appErr.Code == ErrCodeValidationFailed && len(appErr.Context) > 0 {
		response.Error.Context = make(map[string]interface{}, len(appErr.Context))
		for k, v := range appErr.Context {
			response.Error.Context[k] = v
		}
	}
	return response
}

// Reason returns the short human-readable failure reason of a channel error.
// Transport errors report their cause; everything else reports its message.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	appErr, ok := As(err)
	if !ok {
		return err.Error()
	}
	if appErr.Code == ErrCodeChannelTransport && appErr.Cause != nil {
		return appErr.Cause.Error()
	}
	return appErr.Message
}
