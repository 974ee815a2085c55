package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewShutdownManager_DefaultTimeout(t *testing.T) {
	sm := NewShutdownManager(NewLogger(ErrorLevel, io.Discard), nil, 0)

	if sm.shutdownTimeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", sm.shutdownTimeout)
	}
}

func TestShutdown_RunsFuncsInRegistrationOrder(t *testing.T) {
	sm := NewShutdownManager(NewLogger(ErrorLevel, io.Discard), nil, 5*time.Second)

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		sm.RegisterShutdownFunc(func(ctx context.Context) error {
			order = append(order, i)
			return nil
		})
	}

	if err := sm.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Errorf("Expected funcs to run in registration order, got %v", order)
	}
}

func TestShutdown_StopsHTTPServer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	sm := NewShutdownManager(NewLogger(ErrorLevel, io.Discard), ts.Config, 5*time.Second)

	serverStopped := false
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		// Registered funcs run after the server has stopped accepting
		if _, err := http.Get(ts.URL); err != nil {
			serverStopped = true
		}
		return nil
	})

	if err := sm.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if !serverStopped {
		t.Error("Expected the HTTP server to stop before shutdown funcs run")
	}
}

func TestShutdown_ReturnsFirstErrorButRunsAll(t *testing.T) {
	sm := NewShutdownManager(NewLogger(ErrorLevel, io.Discard), nil, 5*time.Second)

	first := errors.New("first failure")
	ran := 0
	sm.RegisterShutdownFunc(func(ctx context.Context) error { ran++; return first })
	sm.RegisterShutdownFunc(func(ctx context.Context) error { ran++; return errors.New("second failure") })
	sm.RegisterShutdownFunc(func(ctx context.Context) error { ran++; return nil })

	err := sm.Shutdown(context.Background())
	if !errors.Is(err, first) {
		t.Errorf("Expected the first error back, got %v", err)
	}
	if ran != 3 {
		t.Errorf("A failing func must not stop the rest, ran %d of 3", ran)
	}
}

func TestShutdown_PropagatesContext(t *testing.T) {
	sm := NewShutdownManager(NewLogger(ErrorLevel, io.Discard), nil, 5*time.Second)

	var hasDeadline bool
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := sm.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if !hasDeadline {
		t.Error("Shutdown funcs should receive the deadline-bounded context")
	}
}
