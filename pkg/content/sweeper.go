package content

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/platinummonkey/masthead/pkg/audit"
	"github.com/platinummonkey/masthead/pkg/notify"
	"github.com/platinummonkey/masthead/pkg/observability"
	"github.com/platinummonkey/masthead/pkg/rbac"
)

// sweepTimeout bounds one shared sweep round
const sweepTimeout = time.Minute

// UserDirectory resolves notification recipients
type UserDirectory interface {
	GetUser(ctx context.Context, userID int64) (*rbac.User, error)
	ListHolders(ctx context.Context, p rbac.Permission) ([]*rbac.User, error)
}

// Sweeper promotes Approved items whose scheduled time has arrived.
// Concurrent sweeps in one process share a single store round; sweeps in
// different processes are kept idempotent by the conditional update.
type Sweeper struct {
	store       *Store
	notices     *notifier
	auditLogger audit.Logger
	metrics     *observability.Metrics
	now         func() time.Time
	group       singleflight.Group
}

// NewSweeper creates a sweeper. auditLogger and metrics may be nil.
func NewSweeper(store *Store, users UserDirectory, dispatcher notify.Dispatcher,
	auditLogger audit.Logger, metrics *observability.Metrics) *Sweeper {
	if auditLogger == nil {
		auditLogger = audit.NewNoOpLogger()
	}
	return &Sweeper{
		store:       store,
		notices:     &notifier{users: users, dispatcher: dispatcher},
		auditLogger: auditLogger,
		metrics:     metrics,
		now:         time.Now,
	}
}

// WithClock replaces the sweeper's clock
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Sweep promotes due items and sends one published notification per item
// promoted by this call. The shared round is detached from the caller's
// cancellation; a caller whose ctx ends stops waiting without aborting it
// for the others.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	ch := s.group.DoChan("sweep", func() (interface{}, error) {
		sweepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sweepTimeout)
		defer cancel()
		return s.sweep(sweepCtx)
	})

	select {
	case <-ctx.Done():
		return SweepResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return SweepResult{}, res.Err
		}
		return res.Val.(SweepResult), nil
	}
}

func (s *Sweeper) sweep(ctx context.Context) (SweepResult, error) {
	ctx, span := tracer.Start(ctx, "Sweeper.Sweep")
	defer span.End()

	start := time.Now()
	now := s.now()

	matched, err := s.store.CountDue(ctx, now)
	if err != nil {
		s.metrics.RecordSweep(0, time.Since(start), err)
		return SweepResult{}, recordSpanError(span, err)
	}

	result := SweepResult{Matched: matched, PromotedIDs: []int64{}}
	if matched == 0 {
		s.metrics.RecordSweep(0, time.Since(start), nil)
		return result, nil
	}

	promoted, err := s.store.PromoteDue(ctx, now)
	if err != nil {
		s.metrics.RecordSweep(0, time.Since(start), err)
		return SweepResult{}, recordSpanError(span, err)
	}

	result.Modified = len(promoted)
	for _, item := range promoted {
		result.PromotedIDs = append(result.PromotedIDs, item.ID)
		s.notices.published(ctx, item)
	}
	s.metrics.RecordSweep(result.Modified, time.Since(start), nil)

	if result.Modified > 0 {
		event := audit.NewEvent(ctx, audit.EventTypeContentSweep, audit.EventStatusSuccess, nil)
		event.Message = fmt.Sprintf("promoted %d scheduled items", result.Modified)
		event.Metadata["matched"] = result.Matched
		event.Metadata["promoted_ids"] = result.PromotedIDs
		audit.Record(ctx, s.auditLogger, event)

		observability.FromContext(ctx).
			WithFields(map[string]interface{}{"matched": result.Matched, "modified": result.Modified}).
			Info("promoted scheduled items")
	}
	return result, nil
}

// Schedule registers the sweep on c with the given cron spec
func (s *Sweeper) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	id, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		if _, err := s.Sweep(ctx); err != nil {
			observability.Default().WithError(err).Error("scheduled sweep failed")
		}
	})
	if err != nil {
		return 0, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return id, nil
}
