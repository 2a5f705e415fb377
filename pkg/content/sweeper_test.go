package content

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/masthead/pkg/notify"
	"github.com/platinummonkey/masthead/pkg/observability"
)

func TestSweeper_ConcurrentSweepsPromoteOnce(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		item := f.pendingBlog(t, "Batch")
		_, err := f.service.Approve(ctx, f.publisher, KindBlog, item.ID, f.clock.Now().Add(time.Minute))
		require.NoError(t, err)
	}
	f.clock.Advance(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Sweeper().Sweep(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, f.sent.ofKind(notify.KindPublished), 3, "one notification per promoted item")

	live, err := f.store.ListPublished(ctx, KindBlog, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, live, 3)
}

func TestSweeper_NothingDueSkipsUpdate(t *testing.T) {
	store, mock := newMockStore(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM content_items")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	sweeper := NewSweeper(store, nil, nil, nil, metrics)
	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Matched)
	assert.Empty(t, result.PromotedIDs)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SweepsTotal.WithLabelValues("success")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweeper_StoreFailure(t *testing.T) {
	store, mock := newMockStore(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM content_items")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE content_items SET status = $1")).
		WillReturnError(errors.New("deadlock detected"))

	sweeper := NewSweeper(store, nil, nil, nil, metrics)
	_, err := sweeper.Sweep(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SweepsTotal.WithLabelValues("error")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweeper_JoinedCallerSurvivesFirstCallerCancellation(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM content_items")).
		WillDelayFor(200 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	sweeper := NewSweeper(store, nil, nil, nil, nil)

	shortCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	firstErr := make(chan error, 1)
	go func() {
		_, err := sweeper.Sweep(shortCtx)
		firstErr <- err
	}()
	time.Sleep(10 * time.Millisecond)

	result, err := sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Matched)

	assert.ErrorIs(t, <-firstErr, context.DeadlineExceeded)
	assert.NoError(t, mock.ExpectationsWereMet(), "both callers share one store round")
}

func TestSweeper_Schedule(t *testing.T) {
	sweeper := NewSweeper(nil, nil, nil, nil, nil)
	c := cron.New()

	id, err := sweeper.Schedule(c, "@every 1m")
	require.NoError(t, err)
	assert.NotZero(t, id)
	assert.Len(t, c.Entries(), 1)

	_, err = sweeper.Schedule(c, "not a schedule")
	assert.Error(t, err)
}
