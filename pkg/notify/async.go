package notify

import (
	"context"
	"time"

	"github.com/platinummonkey/masthead/pkg/async"
	"github.com/platinummonkey/masthead/pkg/observability"
)

// AsyncDispatcher hands notifications to a background goroutine so that the
// caller never waits on, or fails because of, delivery
type AsyncDispatcher struct {
	next    Dispatcher
	timeout time.Duration
	metrics *observability.Metrics
}

// NewAsyncDispatcher wraps next. metrics may be nil.
func NewAsyncDispatcher(next Dispatcher, timeout time.Duration, metrics *observability.Metrics) *AsyncDispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AsyncDispatcher{next: next, timeout: timeout, metrics: metrics}
}

// Dispatch schedules delivery and returns nil immediately
func (d *AsyncDispatcher) Dispatch(ctx context.Context, n *Notification) error {
	d.Send(ctx, n)
	return nil
}

// Send schedules delivery and returns a channel closed once the attempt ends.
// The request context's cancellation does not abort delivery.
func (d *AsyncDispatcher) Send(ctx context.Context, n *Notification) <-chan struct{} {
	return async.SafeGo(context.WithoutCancel(ctx), d.timeout, "notify "+string(n.Kind), func(ctx context.Context) error {
		if err := d.next.Dispatch(ctx, n); err != nil {
			d.metrics.RecordNotification(string(n.Kind), "failure")
			return err
		}
		d.metrics.RecordNotification(string(n.Kind), "success")
		return nil
	})
}
