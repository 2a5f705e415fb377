package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/masthead/pkg/observability"
)

// SafeGo executes fn in a goroutine with:
// - Context cancellation support
// - Panic recovery
// - Timeout enforcement
// - Error logging
//
// The returned channel is closed once fn has returned or panicked. Callers that
// fire and forget can ignore it.
//
// Example:
//
//	SafeGo(context.WithoutCancel(r.Context()), 10*time.Second, "notify publishers", func(ctx context.Context) error {
//	    return dispatcher.Dispatch(ctx, n)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		logger := observability.FromContext(parentCtx).WithField("task", taskName)

		defer func() {
			if r := recover(); r != nil {
				logger.WithField("panic", fmt.Sprint(r)).
					WithField("stack", string(debug.Stack())).
					Error("PANIC recovered in background task")
			}
		}()

		if err := fn(ctx); err != nil {
			logger.WithError(err).Warn("background task failed")
		}
	}()
	return done
}

// Batch runs fn over items with at most workers concurrent calls and returns every
// error encountered. A panic in fn is converted to an error for that item.
//
// Example:
//
//	errs := Batch(ctx, keys, 4, "delete assets", 10*time.Second, func(ctx context.Context, key string) error {
//	    return assets.Delete(ctx, key)
//	})
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	fn func(context.Context, T) error) []error {

	if workers <= 0 {
		workers = 1
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	g := new(errgroup.Group)
	g.SetLimit(workers)

	for _, item := range items {
		g.Go(func() error {
			taskCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			defer func() {
				if r := recover(); r != nil {
					record(fmt.Errorf("%s: panic: %v", taskName, r))
				}
			}()

			if err := fn(taskCtx, item); err != nil {
				record(fmt.Errorf("%s: %w", taskName, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	return errs
}
