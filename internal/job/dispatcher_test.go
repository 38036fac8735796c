package job

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	enqueued  []string
	runs      []func(context.Context) error
	recurring map[string]string
	recRuns   map[string]func(context.Context) error
	err       error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		recurring: make(map[string]string),
		recRuns:   make(map[string]func(context.Context) error),
	}
}

func (e *fakeEngine) Enqueue(key string, run func(context.Context) error) error {
	if e.err != nil {
		return e.err
	}
	e.enqueued = append(e.enqueued, key)
	e.runs = append(e.runs, run)
	return nil
}

func (e *fakeEngine) AddOrUpdateRecurring(key, cronExpr string, run func(context.Context) error) error {
	if e.err != nil {
		return e.err
	}
	e.recurring[key] = cronExpr
	e.recRuns[key] = run
	return nil
}

func TestImmediate_DispatchRunsInline(t *testing.T) {
	rec := &fakeRecorder{id: uuid.New()}
	ran := 0
	exec := newTestExecutor(func(context.Context, testCommand) error {
		ran++
		return nil
	}, nil, rec, nil)
	d := NewImmediate(exec, zerolog.Nop())

	require.NoError(t, d.Dispatch(context.Background(), testCommand{}))
	assert.Equal(t, 1, ran)
	assert.Equal(t, []string{"start", "completion"}, rec.ops())
}

func TestImmediate_DispatchReturnsHandlerError(t *testing.T) {
	exec := newTestExecutor(func(context.Context, testCommand) error {
		return errors.New("boom")
	}, nil, &fakeRecorder{id: uuid.New()}, nil)
	d := NewImmediate(exec, zerolog.Nop())

	err := d.Dispatch(context.Background(), testCommand{})
	require.EqualError(t, err, "boom")
}

func TestImmediate_ScheduleIsNoop(t *testing.T) {
	ran := false
	exec := newTestExecutor(func(context.Context, testCommand) error {
		ran = true
		return nil
	}, nil, nil, nil)
	d := NewImmediate(exec, zerolog.Nop())

	assert.NoError(t, d.Schedule(context.Background(), testCommand{}, "*/5 * * * *"))
	assert.False(t, ran)
}

func TestDeferred_DispatchEnqueuesExecutorRun(t *testing.T) {
	rec := &fakeRecorder{id: uuid.New()}
	ran := 0
	exec := newTestExecutor(func(context.Context, testCommand) error {
		ran++
		return nil
	}, nil, rec, nil)
	eng := newFakeEngine()
	d := NewDeferred(exec, eng, zerolog.Nop())

	require.NoError(t, d.Dispatch(context.Background(), testCommand{Value: "x"}))
	assert.Equal(t, 0, ran, "nothing runs until the engine invokes it")
	require.Equal(t, []string{"TestCommand"}, eng.enqueued)

	require.NoError(t, eng.runs[0](context.Background()))
	assert.Equal(t, 1, ran)
	assert.Equal(t, []string{"start", "completion"}, rec.ops())
}

func TestDeferred_InvocationDetachedFromCallerContext(t *testing.T) {
	rec := &fakeRecorder{id: uuid.New()}
	exec := newTestExecutor(func(ctx context.Context, _ testCommand) error {
		return ctx.Err()
	}, nil, rec, nil)
	eng := newFakeEngine()
	d := NewDeferred(exec, eng, zerolog.Nop())

	ctx, cancel := context.WithCancel(WithJobName(context.Background(), "Named Job"))
	require.NoError(t, d.Dispatch(ctx, testCommand{}))
	cancel()

	require.NoError(t, eng.runs[0](context.Background()))
	assert.Equal(t, "Named Job", rec.calls[0].jobName)
}

func TestDeferred_ScheduleKeyedByCommandName(t *testing.T) {
	exec := newTestExecutor(func(context.Context, testCommand) error { return nil }, nil, nil, nil)
	eng := newFakeEngine()
	d := NewDeferred(exec, eng, zerolog.Nop())

	require.NoError(t, d.Schedule(context.Background(), testCommand{Value: "a"}, "*/5 * * * *"))
	require.NoError(t, d.Schedule(context.Background(), testCommand{Value: "b"}, "0 * * * *"))

	assert.Len(t, eng.recurring, 1)
	assert.Equal(t, "0 * * * *", eng.recurring["TestCommand"])
}

func TestDeferred_ScheduleKeyedByJobName(t *testing.T) {
	exec := newTestExecutor(func(context.Context, testCommand) error { return nil }, nil, nil, nil)
	eng := newFakeEngine()
	d := NewDeferred(exec, eng, zerolog.Nop())

	require.NoError(t, d.Schedule(WithJobName(context.Background(), "Morning"), testCommand{}, "0 8 * * *"))
	require.NoError(t, d.Schedule(WithJobName(context.Background(), "Evening"), testCommand{}, "0 18 * * *"))
	require.NoError(t, d.Schedule(context.Background(), testCommand{}, "@hourly"))

	assert.Equal(t, map[string]string{
		"Morning":     "0 8 * * *",
		"Evening":     "0 18 * * *",
		"TestCommand": "@hourly",
	}, eng.recurring)
}

func TestDeferred_EngineErrorSurfaces(t *testing.T) {
	exec := newTestExecutor(func(context.Context, testCommand) error { return nil }, nil, nil, nil)
	eng := newFakeEngine()
	eng.err = errors.New("engine stopped")
	d := NewDeferred(exec, eng, zerolog.Nop())

	assert.EqualError(t, d.Dispatch(context.Background(), testCommand{}), "engine stopped")
	assert.EqualError(t, d.Schedule(context.Background(), testCommand{}, "* * * * *"), "engine stopped")
}

func TestNewDispatcher_SelectsStrategy(t *testing.T) {
	exec := newTestExecutor(func(context.Context, testCommand) error { return nil }, nil, nil, nil)

	_, ok := NewDispatcher(exec, nil, zerolog.Nop()).(*Immediate)
	assert.True(t, ok)
	_, ok = NewDispatcher(exec, newFakeEngine(), zerolog.Nop()).(*Deferred)
	assert.True(t, ok)
}
