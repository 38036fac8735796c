package job

import (
	"context"

	"github.com/rs/zerolog"
)

// Dispatcher routes commands to execution. The strategy is chosen once at
// startup; see NewDispatcher.
type Dispatcher interface {
	// Dispatch runs cmd now or hands it to the background engine.
	Dispatch(ctx context.Context, cmd Command) error
	// Schedule registers a recurring run of cmd under RecurringKey.
	// Registering the same key again replaces the previous schedule.
	Schedule(ctx context.Context, cmd Command, cronExpr string) error
}

// Engine is the background execution substrate used by Deferred. It owns
// retries and guarantees that one recurring key never runs concurrently
// with itself.
type Engine interface {
	Enqueue(key string, run func(context.Context) error) error
	AddOrUpdateRecurring(key, cronExpr string, run func(context.Context) error) error
}

// NewDispatcher returns a Deferred dispatcher when engine is non-nil and an
// Immediate one otherwise.
func NewDispatcher(exec *Executor, engine Engine, logger zerolog.Logger) Dispatcher {
	if engine != nil {
		return NewDeferred(exec, engine, logger)
	}
	return NewImmediate(exec, logger)
}

// Immediate executes commands inline on the caller's goroutine.
type Immediate struct {
	exec   *Executor
	logger zerolog.Logger
}

func NewImmediate(exec *Executor, logger zerolog.Logger) *Immediate {
	return &Immediate{exec: exec, logger: logger}
}

func (d *Immediate) Dispatch(ctx context.Context, cmd Command) error {
	d.logger.Info().Str("command", cmd.CommandName()).Msg("executing inline")
	return d.exec.Run(ctx, cmd)
}

// Schedule only logs: the immediate strategy has no time-based trigger.
func (d *Immediate) Schedule(_ context.Context, cmd Command, cronExpr string) error {
	d.logger.Warn().
		Str("command", cmd.CommandName()).
		Str("cron", cronExpr).
		Msg("ignoring schedule, scheduling is disabled in immediate mode")
	return nil
}

// Deferred hands commands to a background engine. Every run still goes
// through the Executor, so retries produce one execution record per
// attempt.
type Deferred struct {
	exec   *Executor
	engine Engine
	logger zerolog.Logger
}

func NewDeferred(exec *Executor, engine Engine, logger zerolog.Logger) *Deferred {
	return &Deferred{exec: exec, engine: engine, logger: logger}
}

func (d *Deferred) Dispatch(ctx context.Context, cmd Command) error {
	name := cmd.CommandName()
	d.logger.Info().Str("command", name).Msg("enqueuing")
	return d.engine.Enqueue(name, d.invocation(ctx, cmd))
}

func (d *Deferred) Schedule(ctx context.Context, cmd Command, cronExpr string) error {
	key := RecurringKey(ctx, cmd)
	d.logger.Info().
		Str("command", cmd.CommandName()).
		Str("key", key).
		Str("cron", cronExpr).
		Msg("scheduling recurring job")
	return d.engine.AddOrUpdateRecurring(key, cronExpr, d.invocation(ctx, cmd))
}

// RecurringKey is the engine key a schedule is registered under: the job
// name carried by ctx, or the command name. Schedules registered by the
// definition sync therefore get one key per definition, not per command type.
func RecurringKey(ctx context.Context, cmd Command) string {
	if name, ok := JobName(ctx); ok {
		return name
	}
	return cmd.CommandName()
}

// invocation detaches the run from the caller's context. Only the job name
// travels with it; cancellation comes from the engine.
func (d *Deferred) invocation(ctx context.Context, cmd Command) func(context.Context) error {
	jobName, named := JobName(ctx)
	return func(runCtx context.Context) error {
		if named {
			runCtx = WithJobName(runCtx, jobName)
		}
		return d.exec.Run(runCtx, cmd)
	}
}
