package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobflow/internal/engine"
)

// seqRecorder hands out a fresh id per start and signals each failure.
type seqRecorder struct {
	mu       sync.Mutex
	starts   []uuid.UUID
	failures []uuid.UUID
	failed   chan struct{}
}

func (r *seqRecorder) RecordStart(context.Context, string, string, string) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := uuid.New()
	r.starts = append(r.starts, id)
	return id, nil
}

func (r *seqRecorder) RecordCompletion(context.Context, uuid.UUID) error { return nil }

func (r *seqRecorder) RecordFailure(_ context.Context, id uuid.UUID, _ string) error {
	r.mu.Lock()
	r.failures = append(r.failures, id)
	r.mu.Unlock()
	r.failed <- struct{}{}
	return nil
}

func TestDeferred_RetriesRerunWholeWrapper(t *testing.T) {
	rec := &seqRecorder{failed: make(chan struct{}, 8)}
	var scopes int
	var mu sync.Mutex
	scope := scopeFunc(func(ctx context.Context) (context.Context, error) {
		mu.Lock()
		scopes++
		mu.Unlock()
		return ctx, nil
	})
	exec := newTestExecutor(func(context.Context, testCommand) error {
		return errors.New("always fails")
	}, scope, rec, nil)

	eng := engine.New(engine.Options{
		Workers:     1,
		MaxAttempts: 3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}, zerolog.Nop())
	eng.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = eng.Stop(ctx)
	})

	d := NewDispatcher(exec, eng, zerolog.Nop())
	require.NoError(t, d.Dispatch(context.Background(), testCommand{Value: "x"}))

	for i := 0; i < 3; i++ {
		select {
		case <-rec.failed:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected failure %d", i+1)
		}
	}
	time.Sleep(50 * time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.starts, 3)
	assert.Equal(t, rec.starts, rec.failures)
	assert.NotEqual(t, rec.starts[0], rec.starts[1])
	assert.NotEqual(t, rec.starts[1], rec.starts[2])
	assert.NotEqual(t, rec.starts[0], rec.starts[2])

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, scopes)
}
