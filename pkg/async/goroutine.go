package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pariksha-io/pariksha/pkg/observability"
)

// DefaultTimeout bounds background tasks whose callers pass no timeout
const DefaultTimeout = 30 * time.Second

// Go runs fn on its own goroutine with a deadline and panic recovery.
// Failures are logged, never returned; use it for work whose outcome the
// caller does not wait for.
func Go(parent context.Context, logger *observability.Logger, timeout time.Duration, name string, fn func(context.Context) error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	go func() {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logger.WithFields(map[string]interface{}{
					"task":  name,
					"panic": fmt.Sprintf("%v", r),
					"stack": string(debug.Stack()),
				}).Error("background task panicked")
			}
		}()

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", name).Error("background task failed")
		}
	}()
}

// Batch runs fn over items with at most workers goroutines in flight and
// returns every error encountered, in no particular order. A panicking task
// is reported as an error instead of crashing the process, and the remaining
// items still run. Wrap errors with item identity inside fn; Batch does not
// track which item produced which error.
func Batch[T any](ctx context.Context, workers int, items []T, fn func(context.Context, T) error) []error {
	if workers <= 0 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var mu sync.Mutex
	var errs []error
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for _, item := range items {
		item := item
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				record(err)
				return nil
			}

			defer func() {
				if r := recover(); r != nil {
					record(fmt.Errorf("panic: %v", r))
				}
			}()

			if err := fn(ctx, item); err != nil {
				record(err)
			}
			return nil
		})
	}

	// Tasks report through errs, never the group, so Wait cannot fail
	_ = g.Wait()
	return errs
}
