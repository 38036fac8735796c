package job

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Recorder persists execution history. Implementations report persistence
// failures as errors; the Executor logs them and carries on, so a missing
// history store never blocks a run.
type Recorder interface {
	RecordStart(ctx context.Context, jobName, jobTypeName, parametersJSON string) (uuid.UUID, error)
	RecordCompletion(ctx context.Context, id uuid.UUID) error
	RecordFailure(ctx context.Context, id uuid.UUID, message string) error
}

// ProgressStore persists progress against an execution record.
type ProgressStore interface {
	UpdateProgress(ctx context.Context, id uuid.UUID, percent int, message string) error
}

// ScopeInitializer establishes the execution context (for example a
// service identity) before a handler runs. Errors abort the run.
type ScopeInitializer interface {
	Initialize(ctx context.Context) (context.Context, error)
}

type nopRecorder struct{}

func (nopRecorder) RecordStart(context.Context, string, string, string) (uuid.UUID, error) {
	return uuid.Nil, nil
}
func (nopRecorder) RecordCompletion(context.Context, uuid.UUID) error      { return nil }
func (nopRecorder) RecordFailure(context.Context, uuid.UUID, string) error { return nil }

type nopScope struct{}

func (nopScope) Initialize(ctx context.Context) (context.Context, error) { return ctx, nil }

// Progress reports percent complete for one execution record.
type Progress struct {
	store  ProgressStore
	logger zerolog.Logger
	id     uuid.UUID
}

func NewProgress(store ProgressStore, logger zerolog.Logger) *Progress {
	return &Progress{store: store, logger: logger}
}

// Initialize binds the reporter to an execution record. uuid.Nil turns
// Report into a no-op.
func (p *Progress) Initialize(id uuid.UUID) {
	p.id = id
}

// Report clamps percent to 0..100 and persists it with message.
func (p *Progress) Report(ctx context.Context, percent int, message string) error {
	if p == nil || p.store == nil || p.id == uuid.Nil {
		return nil
	}
	percent = min(max(percent, 0), 100)
	if err := p.store.UpdateProgress(ctx, p.id, percent, message); err != nil {
		return err
	}
	p.logger.Debug().Str("record_id", p.id.String()).Int("percent", percent).Str("message", message).Msg("progress updated")
	return nil
}

type progressKey struct{}

// WithProgress attaches p to ctx for handlers to report through.
func WithProgress(ctx context.Context, p *Progress) context.Context {
	return context.WithValue(ctx, progressKey{}, p)
}

// ProgressFrom returns the reporter attached to ctx, or nil.
func ProgressFrom(ctx context.Context) *Progress {
	p, _ := ctx.Value(progressKey{}).(*Progress)
	return p
}

// ReportProgress is the handler-side helper: it reports through the
// reporter in ctx and only logs persistence failures.
func ReportProgress(ctx context.Context, percent int, message string) {
	p := ProgressFrom(ctx)
	if p == nil {
		return
	}
	if err := p.Report(ctx, percent, message); err != nil {
		p.logger.Warn().Err(err).Str("record_id", p.id.String()).Msg("failed to update progress")
	}
}

type jobNameKey struct{}

// WithJobName overrides the job name recorded for runs started with ctx.
// Runs without one are recorded under their command name.
func WithJobName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, jobNameKey{}, name)
}

// JobName returns the job name carried by ctx, if any.
func JobName(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(jobNameKey{}).(string)
	return name, ok && name != ""
}
