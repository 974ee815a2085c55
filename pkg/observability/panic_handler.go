package observability

import (
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with structured logging.
//
// Usage in defer statements:
//
//	func riskyOperation() {
//	    defer observability.RecoverPanic(logger, "audit sink write")
//	    // ... code that might panic
//	}
//
// After logging, the panic is NOT re-raised. This keeps a misbehaving sink
// or hook from crashing the process, at the cost of possibly inconsistent
// in-flight state. Use carefully.
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", context).
			Error("PANIC recovered")
	}
}
