package service

import (
	"context"

	"leadrelay/internal/privacy"
)

// ContextKey is a package-local type to prevent context key collisions
type ContextKey string

// VerboseContextKey marks a context whose logs may carry unmasked values
const VerboseContextKey ContextKey = "verbose"

func WithVerbose(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, VerboseContextKey, verbose)
}

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// LogChatID masks a chat id unless verbose logging is on
func LogChatID(ctx context.Context, chatID string) string {
	if IsVerboseLogging(ctx) {
		return chatID
	}
	return privacy.MaskChatID(chatID)
}

// LogFields returns form values for a debug log line, masked unless verbose
func LogFields(ctx context.Context, values map[string]interface{}) map[string]interface{} {
	if IsVerboseLogging(ctx) {
		return values
	}
	return privacy.MaskSensitiveFields(values)
}
