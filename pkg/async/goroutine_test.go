package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("background task did not finish")
	}
}

func TestSafeGo_Success(t *testing.T) {
	var executed atomic.Bool

	waitDone(t, SafeGo(context.Background(), time.Second, "test task", func(ctx context.Context) error {
		executed.Store(true)
		return nil
	}))

	assert.True(t, executed.Load())
}

func TestSafeGo_ErrorIsSwallowed(t *testing.T) {
	var executed atomic.Bool

	waitDone(t, SafeGo(context.Background(), time.Second, "test task", func(ctx context.Context) error {
		executed.Store(true)
		return errors.New("test error")
	}))

	assert.True(t, executed.Load())
}

func TestSafeGo_Timeout(t *testing.T) {
	var timedOut atomic.Bool

	waitDone(t, SafeGo(context.Background(), 20*time.Millisecond, "slow task", func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			timedOut.Store(true)
			return ctx.Err()
		}
	}))

	assert.True(t, timedOut.Load())
}

func TestSafeGo_PanicRecovered(t *testing.T) {
	done := SafeGo(context.Background(), time.Second, "panicking task", func(ctx context.Context) error {
		panic("boom")
	})
	waitDone(t, done)
}

func TestSafeGo_SurvivesParentCancellationWhenDetached(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cancel()

	var ctxErr atomic.Value
	waitDone(t, SafeGo(context.WithoutCancel(parent), time.Second, "detached", func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			ctxErr.Store(err)
		}
		return nil
	}))

	assert.Nil(t, ctxErr.Load())
}

func TestBatch_CollectsErrors(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6}
	var processed atomic.Int32

	errs := Batch(context.Background(), items, 2, "odd fails", time.Second, func(ctx context.Context, n int) error {
		processed.Add(1)
		if n%2 == 1 {
			return errors.New("odd")
		}
		return nil
	})

	assert.Equal(t, int32(6), processed.Load())
	assert.Len(t, errs, 3)
}

func TestBatch_RecoversPanics(t *testing.T) {
	errs := Batch(context.Background(), []string{"a"}, 0, "panics", time.Second, func(ctx context.Context, s string) error {
		panic("bad item")
	})

	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "panic")
}

func TestBatch_Empty(t *testing.T) {
	assert.Empty(t, Batch(context.Background(), []string{}, 4, "noop", time.Second, func(ctx context.Context, s string) error {
		return nil
	}))
}
