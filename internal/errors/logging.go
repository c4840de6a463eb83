package errors

import (
	"github.com/sirupsen/logrus"
)

// Fields returns the structured log fields carried by an AppError chain.
func Fields(err error) logrus.Fields {
	fields := logrus.Fields{}
	appErr, ok := As(err)
	if !ok {
		return fields
	}

	fields["error_code"] = appErr.Code
	fields["retryable"] = appErr.Retryable
	for k, v := range appErr.Context {
		fields[k] = v
	}
	return fields
}

// LogRetryable logs a retryable error at warn level, non-retryable at error level
func LogRetryable(entry *logrus.Entry, err error, message string) {
	entry = entry.WithError(err).WithFields(Fields(err))
	if IsRetryable(err) {
		entry.Warn(message)
		return
	}
	entry.Error(message)
}
