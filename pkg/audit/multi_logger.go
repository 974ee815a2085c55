package audit

import (
	"context"
	"fmt"
)

// MultiLogger fans an audit event out to multiple sinks. Writes are
// synchronous and continue past individual failures so a broken sink never
// silences the others; asynchrony lives in the recorder, not here.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger creates a logger that writes to multiple destinations
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{loggers: loggers}
}

// Log writes the event to every sink and returns the first error encountered
func (m *MultiLogger) Log(ctx context.Context, event *AuditEvent) error {
	var firstErr error

	for _, logger := range m.loggers {
		if err := logger.Log(ctx, event); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			// Continue logging to other sinks even if one fails
		}
	}

	return firstErr
}

// Close closes all sinks and returns the first error encountered
func (m *MultiLogger) Close() error {
	var firstErr error

	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to close audit sink: %w", err)
			}
		}
	}

	return firstErr
}
