package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs
// within a context. Business identifiers (user, run, message, thread)
// flow through context enrichment so individual log statements do not
// need to repeat them.
type LogFields struct {
	UserID    *int64  // Owning user
	RunID     *int64  // Ingestion run id
	MessageID *string // Provider-native message id
	ThreadID  *int64  // Conversation thread id
	Component string  // Component name, e.g. "agent.ingest.fetcher"
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values
// taking precedence. Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	return context.WithValue(ctx, logFieldsKey, mergeFields(existing, fields))
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.UserID != nil {
		result.UserID = next.UserID
	}
	if next.RunID != nil {
		result.RunID = next.RunID
	}
	if next.MessageID != nil {
		result.MessageID = next.MessageID
	}
	if next.ThreadID != nil {
		result.ThreadID = next.ThreadID
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value, useful for setting
// LogFields inline.
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if
// truncated. Useful for logging potentially long message bodies.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
