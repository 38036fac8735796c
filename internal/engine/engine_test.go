package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, maxAttempts int) *Engine {
	t.Helper()
	e := New(Options{
		Workers:     2,
		MaxAttempts: maxAttempts,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}, zerolog.Nop())
	e.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.Stop(ctx)
	})
	return e
}

func TestEngine_EnqueueRuns(t *testing.T) {
	e := newTestEngine(t, 3)
	done := make(chan struct{})

	require.NoError(t, e.Enqueue("k", func(context.Context) error {
		close(done)
		return nil
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("invocation did not run")
	}
}

func TestEngine_RetriesUpToMaxAttempts(t *testing.T) {
	e := newTestEngine(t, 3)
	var calls atomic.Int32
	done := make(chan struct{})

	require.NoError(t, e.Enqueue("k", func(context.Context) error {
		if calls.Add(1) == 3 {
			close(done)
		}
		return errors.New("boom")
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected three attempts")
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
}

func TestEngine_PanicIsRetriedAndWorkerSurvives(t *testing.T) {
	e := New(Options{Workers: 1, MaxAttempts: 2, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}, zerolog.Nop())
	e.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.Stop(ctx)
	})

	var calls atomic.Int32
	require.NoError(t, e.Enqueue("bad", func(context.Context) error {
		calls.Add(1)
		panic("handler bug")
	}))

	done := make(chan struct{})
	require.NoError(t, e.Enqueue("next", func(context.Context) error {
		close(done)
		return nil
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive the panic")
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestEngine_StopsRetryingAfterSuccess(t *testing.T) {
	e := newTestEngine(t, 3)
	var calls atomic.Int32
	done := make(chan struct{})

	require.NoError(t, e.Enqueue("k", func(context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a successful retry")
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEngine_EnqueueBeforeStart(t *testing.T) {
	e := New(Options{}, zerolog.Nop())
	err := e.Enqueue("k", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrStopped)
}

func TestEngine_EnqueueAfterStop(t *testing.T) {
	e := New(Options{}, zerolog.Nop())
	e.Start(context.Background())
	require.NoError(t, e.Stop(context.Background()))

	err := e.Enqueue("k", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrStopped)
}

func TestEngine_AddOrUpdateRecurringReplaces(t *testing.T) {
	e := newTestEngine(t, 1)
	noop := func(context.Context) error { return nil }

	require.NoError(t, e.AddOrUpdateRecurring("DemoLogCommand", "*/5 * * * *", noop))
	require.NoError(t, e.AddOrUpdateRecurring("DemoLogCommand", "0 3 * * *", noop))
	require.NoError(t, e.AddOrUpdateRecurring("ListUsersCommand", "@hourly", noop))

	entries := e.Recurring()
	require.Len(t, entries, 2)
	byKey := map[string]RecurringEntry{}
	for _, en := range entries {
		byKey[en.Key] = en
	}
	assert.Equal(t, "0 3 * * *", byKey["DemoLogCommand"].Cron)
	assert.Len(t, e.cron.Entries(), 2)
}

func TestEngine_AddOrUpdateRecurringInvalidCron(t *testing.T) {
	e := newTestEngine(t, 1)
	err := e.AddOrUpdateRecurring("k", "not a cron", func(context.Context) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron expression")
	assert.Empty(t, e.Recurring())
}

func TestEngine_RemoveRecurring(t *testing.T) {
	e := newTestEngine(t, 1)
	require.NoError(t, e.AddOrUpdateRecurring("k", "@daily", func(context.Context) error { return nil }))

	assert.True(t, e.RemoveRecurring("k"))
	assert.False(t, e.RemoveRecurring("k"))
	assert.Empty(t, e.Recurring())
}

func TestEngine_TriggerRecurring(t *testing.T) {
	e := newTestEngine(t, 1)
	done := make(chan struct{})
	require.NoError(t, e.AddOrUpdateRecurring("k", "@yearly", func(context.Context) error {
		close(done)
		return nil
	}))

	require.NoError(t, e.TriggerRecurring("k"))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("triggered recurring job did not run")
	}
	assert.Error(t, e.TriggerRecurring("missing"))
}

func TestEngine_Backoff(t *testing.T) {
	e := New(Options{BaseBackoff: time.Second, MaxBackoff: 5 * time.Second}, zerolog.Nop())
	assert.Equal(t, time.Second, e.backoff(0))
	assert.Equal(t, time.Second, e.backoff(1))
	assert.Equal(t, 2*time.Second, e.backoff(2))
	assert.Equal(t, 4*time.Second, e.backoff(3))
	assert.Equal(t, 5*time.Second, e.backoff(4))
	assert.Equal(t, 5*time.Second, e.backoff(70))
}

func TestEngine_StartThenRun(t *testing.T) {
	e := New(Options{Workers: 1}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	e.Start(ctx)

	done := make(chan struct{})
	require.NoError(t, e.Enqueue("early", func(context.Context) error {
		close(done)
		return nil
	}))

	errc := make(chan error, 1)
	go func() { errc <- e.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("invocation enqueued before Run did not run")
	}
	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
