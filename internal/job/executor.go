package job

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Executor wraps a single handler invocation:
//
//	scope init -> record start -> progress init -> handler -> record outcome
//
// Only scope and handler errors reach the caller. History and progress
// failures are logged and skipped.
type Executor struct {
	registry *Registry
	scope    ScopeInitializer
	recorder Recorder
	progress ProgressStore
	logger   zerolog.Logger
}

// NewExecutor builds an Executor. Nil scope, recorder or progress fall back
// to no-ops.
func NewExecutor(registry *Registry, scope ScopeInitializer, recorder Recorder, progress ProgressStore, logger zerolog.Logger) *Executor {
	if scope == nil {
		scope = nopScope{}
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Executor{
		registry: registry,
		scope:    scope,
		recorder: recorder,
		progress: progress,
		logger:   logger,
	}
}

// Run executes cmd once and returns the handler's error unchanged.
func (e *Executor) Run(ctx context.Context, cmd Command) error {
	typeName := cmd.CommandName()
	handler, ok := e.registry.lookup(typeName)
	if !ok {
		return fmt.Errorf("%w for %s", ErrNoHandler, typeName)
	}

	ctx, err := e.scope.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("initialize scope for %s: %w", typeName, err)
	}

	jobName, ok := JobName(ctx)
	if !ok {
		jobName = typeName
	}
	log := e.logger.With().Str("job", jobName).Str("command", typeName).Logger()

	var params string
	if b, err := json.Marshal(cmd); err == nil {
		params = string(b)
	} else {
		log.Debug().Err(err).Msg("could not serialize parameters")
	}

	id, err := e.recorder.RecordStart(ctx, jobName, typeName, params)
	if err != nil {
		telemetryErrors.WithLabelValues("start").Inc()
		log.Warn().Err(err).Msg("failed to record job start, execution will continue")
		id = uuid.Nil
	}
	if id != uuid.Nil {
		log = log.With().Str("record_id", id.String()).Logger()
	}

	progress := NewProgress(e.progress, log)
	progress.Initialize(id)
	ctx = WithProgress(ctx, progress)

	log.Info().Msg("job started")
	start := time.Now()
	runErr := invoke(ctx, log, typeName, handler, cmd)
	elapsed := time.Since(start)
	executionDuration.WithLabelValues(typeName).Observe(elapsed.Seconds())

	if runErr != nil {
		executionsTotal.WithLabelValues(typeName, "failed").Inc()
		log.Error().Err(runErr).Dur("elapsed", elapsed).Msg("job failed")
		if err := e.recorder.RecordFailure(ctx, id, runErr.Error()); err != nil {
			telemetryErrors.WithLabelValues("failure").Inc()
			log.Warn().Err(err).Msg("failed to record job failure")
		}
		return runErr
	}

	executionsTotal.WithLabelValues(typeName, "success").Inc()
	log.Info().Dur("elapsed", elapsed).Msg("job completed")
	if err := e.recorder.RecordCompletion(ctx, id); err != nil {
		telemetryErrors.WithLabelValues("completion").Inc()
		log.Warn().Err(err).Msg("failed to record job completion")
	}
	return nil
}

// invoke calls handler and converts a panic into an error, so the run is
// recorded as failed and retried like any other failure.
func invoke(ctx context.Context, log zerolog.Logger, typeName string, handler erasedHandler, cmd Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("job handler panicked")
			err = fmt.Errorf("panic in %s: %v", typeName, r)
		}
	}()
	return handler(ctx, cmd)
}
