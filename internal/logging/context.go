// internal/logging/context.go
package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	// Trace correlation (from OpenTelemetry)
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if searchID := SearchIDFromContext(ctx); searchID != "" {
		fields = append(fields, zap.String("search.id", searchID))
	}

	if repo := RepoFromContext(ctx); repo != "" {
		fields = append(fields, zap.String("search.repo", repo))
	}

	// Request ID
	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

// Context key types
type searchCtxKey struct{}
type repoCtxKey struct{}
type requestCtxKey struct{}

const (
	maxIDLen   = 128
	maxRepoLen = 255
)

// idPattern allows alphanumeric, hyphen, underscore
var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// validateID validates a search or request ID.
func validateID(id, name string) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (must be alphanumeric, hyphen, underscore)", name)
	}
	return nil
}

// ValidID reports whether id can be stored with WithSearchID or WithRequestID.
func ValidID(id string) bool {
	return validateID(id, "id") == nil
}

// SearchIDFromContext extracts the search ID from context.
func SearchIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(searchCtxKey{}).(string); ok {
		return s
	}
	return ""
}

// WithSearchID adds a search ID to context.
// Panics if searchID is empty or contains invalid characters.
func WithSearchID(ctx context.Context, searchID string) context.Context {
	if err := validateID(searchID, "searchID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, searchCtxKey{}, searchID)
}

// RepoFromContext extracts the repository being searched from context.
func RepoFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(repoCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithRepo adds the repository being searched to context.
// Empty, oversized or non UTF-8 names are ignored.
func WithRepo(ctx context.Context, repo string) context.Context {
	if repo == "" || len(repo) > maxRepoLen || !utf8.ValidString(repo) {
		return ctx
	}
	return context.WithValue(ctx, repoCtxKey{}, repo)
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithRequestID adds request ID to context.
// Panics if requestID is empty or contains invalid characters.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if err := validateID(requestID, "requestID"); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// loggerCtxKey is the context key for Logger.
type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
