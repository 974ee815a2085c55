package audit

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// Logger is the interface audit sinks implement. Log must be safe for
// concurrent use; sinks are expected to persist events durably or return an
// error so callers can fan out to a fallback.
type Logger interface {
	// Log writes an audit event to the sink
	Log(ctx context.Context, event *AuditEvent) error

	// Close releases resources held by the sink
	Close() error
}

// Store is the query surface over persisted audit logs. *DBLogger satisfies
// both Logger and Store.
type Store interface {
	// Search searches audit logs based on filters
	Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error)

	// GetStats retrieves audit log statistics
	GetStats(ctx context.Context, startTime, endTime *time.Time) (*AuditStats, error)

	// DeleteBefore removes audit logs older than the cutoff
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NoopLogger discards all events. Useful in tests and as a default when
// auditing is disabled.
type NoopLogger struct{}

// NewNoopLogger creates a no-op audit logger
func NewNoopLogger() *NoopLogger {
	return &NoopLogger{}
}

// Log implements the Logger interface
func (l *NoopLogger) Log(ctx context.Context, event *AuditEvent) error {
	return nil
}

// Close implements the Logger interface
func (l *NoopLogger) Close() error {
	return nil
}

// ClientIP extracts the originating client IP from a request. It prefers the
// first entry of X-Forwarded-For (set by the load balancer), then
// X-Real-IP, then the connection's remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return strings.TrimSpace(rip)
	}
	// Strip the port if present
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx >= 0 {
		return addr[:idx]
	}
	return addr
}
