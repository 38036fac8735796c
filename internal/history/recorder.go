// Package history persists execution records and keeps the run summary of
// linked job definitions current.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"jobflow/internal/domain"
	"jobflow/internal/store"
)

// MaxMessageLength bounds stored error messages, in runes.
const MaxMessageLength = 500

// AlertPolicy decides when the consecutive-failure warning fires.
type AlertPolicy string

const (
	// AlertEvery warns on every failure once the counter is at or above
	// the threshold.
	AlertEvery AlertPolicy = "every"
	// AlertOnce warns only on the failure that reaches the threshold.
	AlertOnce AlertPolicy = "once"
)

func ParseAlertPolicy(s string) (AlertPolicy, error) {
	switch p := AlertPolicy(s); p {
	case AlertEvery, AlertOnce:
		return p, nil
	case "":
		return AlertEvery, nil
	}
	return "", fmt.Errorf("unknown alert policy %q", s)
}

var alertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "jobflow_failure_alerts_total",
	Help: "Consecutive-failure threshold alerts raised per job.",
}, []string{"job"})

// Alert describes a threshold warning.
type Alert struct {
	JobName             string
	DefinitionID        uuid.UUID
	ConsecutiveFailures int
	Threshold           int
	LastError           string
}

type Options struct {
	FailureAlertThreshold int
	AlertPolicy           AlertPolicy
	// OnAlert, when set, is called after the warning is logged.
	OnAlert func(Alert)
	// Now defaults to time.Now.
	Now func() time.Time
}

// Recorder implements job.Recorder and job.ProgressStore on the SQLite
// store. Each call is its own transaction.
type Recorder struct {
	repo   *store.SQLiteRepo
	opts   Options
	logger zerolog.Logger
}

func NewRecorder(repo *store.SQLiteRepo, opts Options, logger zerolog.Logger) *Recorder {
	if opts.FailureAlertThreshold <= 0 {
		opts.FailureAlertThreshold = 3
	}
	if opts.AlertPolicy == "" {
		opts.AlertPolicy = AlertEvery
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Recorder{repo: repo, opts: opts, logger: logger}
}

// RecordStart creates a running record, linked to the job definition named
// jobName when there is one.
func (r *Recorder) RecordStart(ctx context.Context, jobName, jobTypeName, parametersJSON string) (uuid.UUID, error) {
	rec := domain.ExecutionRecord{
		ID:             uuid.New(),
		JobName:        jobName,
		JobTypeName:    jobTypeName,
		StartedAt:      r.opts.Now().UTC(),
		Status:         domain.StatusRunning,
		ParametersJSON: parametersJSON,
	}
	err := r.repo.InTx(ctx, func(tx *store.Tx) error {
		def, err := tx.DefinitionByName(ctx, jobName)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return fmt.Errorf("find definition: %w", err)
		default:
			rec.JobDefinitionID = &def.ID
			def.LastRunStatus = domain.StatusRunning
			if err := tx.UpdateDefinitionRun(ctx, def); err != nil {
				return fmt.Errorf("update definition: %w", err)
			}
		}
		return tx.InsertExecution(ctx, rec)
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("record start of %q: %w", jobName, err)
	}
	r.logger.Debug().Str("record_id", rec.ID.String()).Str("job", jobName).Msg("recorded execution start")
	return rec.ID, nil
}

func (r *Recorder) RecordCompletion(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return nil
	}
	return r.finish(ctx, id, domain.StatusSuccess, "")
}

func (r *Recorder) RecordFailure(ctx context.Context, id uuid.UUID, message string) error {
	if id == uuid.Nil {
		return nil
	}
	return r.finish(ctx, id, domain.StatusFailed, Truncate(message, MaxMessageLength))
}

func (r *Recorder) finish(ctx context.Context, id uuid.UUID, status domain.RunStatus, message string) error {
	var alert *Alert
	err := r.repo.InTx(ctx, func(tx *store.Tx) error {
		rec, err := tx.GetExecution(ctx, id)
		if err != nil {
			return err
		}
		now := r.opts.Now().UTC()
		rec.CompletedAt = &now
		rec.Status = status
		rec.DurationMs = max(now.Sub(rec.StartedAt).Milliseconds(), 0)
		rec.ErrorMessage = message
		if err := tx.FinishExecution(ctx, rec); err != nil {
			return err
		}
		if rec.JobDefinitionID == nil {
			return nil
		}

		def, err := tx.GetDefinition(ctx, *rec.JobDefinitionID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		def.LastRunAt = &now
		def.LastRunStatus = status
		def.LastRunMessage = message
		if status == domain.StatusSuccess {
			def.ConsecutiveFailures = 0
		} else {
			def.ConsecutiveFailures++
			if r.shouldAlert(def.ConsecutiveFailures) {
				alert = &Alert{
					JobName:             rec.JobName,
					DefinitionID:        def.ID,
					ConsecutiveFailures: def.ConsecutiveFailures,
					Threshold:           r.opts.FailureAlertThreshold,
					LastError:           message,
				}
			}
		}
		return tx.UpdateDefinitionRun(ctx, def)
	})
	if err != nil {
		return fmt.Errorf("record %s of %s: %w", status, id, err)
	}
	r.logger.Debug().Str("record_id", id.String()).Str("status", string(status)).Msg("recorded execution result")
	if alert != nil {
		r.raise(*alert)
	}
	return nil
}

func (r *Recorder) shouldAlert(failures int) bool {
	if r.opts.AlertPolicy == AlertOnce {
		return failures == r.opts.FailureAlertThreshold
	}
	return failures >= r.opts.FailureAlertThreshold
}

func (r *Recorder) raise(a Alert) {
	alertsTotal.WithLabelValues(a.JobName).Inc()
	r.logger.Warn().
		Str("job", a.JobName).
		Int("consecutive_failures", a.ConsecutiveFailures).
		Int("threshold", a.Threshold).
		Str("last_error", a.LastError).
		Msg("job keeps failing")
	if r.opts.OnAlert != nil {
		r.opts.OnAlert(a)
	}
}

// UpdateProgress stores progress for a running record.
func (r *Recorder) UpdateProgress(ctx context.Context, id uuid.UUID, percent int, message string) error {
	if id == uuid.Nil {
		return nil
	}
	if err := r.repo.UpdateProgress(ctx, id, percent, Truncate(message, MaxMessageLength)); err != nil {
		return fmt.Errorf("update progress of %s: %w", id, err)
	}
	return nil
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
