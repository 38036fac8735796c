package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"jobflow/internal/domain"
)

// DefinitionStore is the slice of the store the sync needs.
type DefinitionStore interface {
	ListSchedulableDefinitions(ctx context.Context) ([]domain.JobDefinition, error)
	UpdateDefinitionNextRun(ctx context.Context, id uuid.UUID, next *time.Time) error
}

// Registrar registers a definition's recurring schedule.
type Registrar interface {
	ScheduleDefinition(ctx context.Context, def domain.JobDefinition) error
}

// SyncResult summarizes one reconciliation pass.
type SyncResult struct {
	Scheduled int      `json:"scheduled"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Service registers every enabled, cron-bearing job definition with the
// dispatcher. It runs once at startup; later changes need an explicit
// Sync.
type Service struct {
	repo      DefinitionStore
	registrar Registrar
	delay     time.Duration
	now       func() time.Time
	logger    zerolog.Logger
}

func NewService(repo DefinitionStore, registrar Registrar, settleDelay time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		registrar: registrar,
		delay:     settleDelay,
		now:       time.Now,
		logger:    logger,
	}
}

// Run waits for the settle delay, then syncs once. It returns early with
// nil when ctx is cancelled during the delay.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info().Dur("delay", s.delay).Msg("schedule sync pending")
	t := time.NewTimer(s.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-t.C:
	}
	_, err := s.Sync(ctx)
	return err
}

// Sync schedules all schedulable definitions. A definition that fails is
// logged and counted; only failing to list definitions is an error.
func (s *Service) Sync(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	defs, err := s.repo.ListSchedulableDefinitions(ctx)
	if err != nil {
		return res, fmt.Errorf("list job definitions: %w", err)
	}

	for _, def := range defs {
		if err := s.syncDefinition(ctx, def); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", def.Name, err))
			s.logger.Error().Err(err).Str("definition", def.Name).Str("cron", def.CronExpression).Msg("failed to schedule job definition")
			continue
		}
		res.Scheduled++
	}

	s.logger.Info().Int("scheduled", res.Scheduled).Int("failed", res.Failed).Msg("schedule sync complete")
	return res, nil
}

func (s *Service) syncDefinition(ctx context.Context, def domain.JobDefinition) error {
	next, err := NextRunTime(def.CronExpression, s.now())
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if err := s.registrar.ScheduleDefinition(ctx, def); err != nil {
		return err
	}
	if err := s.repo.UpdateDefinitionNextRun(ctx, def.ID, &next); err != nil {
		return fmt.Errorf("update next run: %w", err)
	}
	s.logger.Info().
		Str("definition", def.Name).
		Str("command", def.JobTypeName).
		Time("next_run", next).
		Msg("job definition scheduled")
	return nil
}

// ValidateCronExpression validates a cron expression
func ValidateCronExpression(expr string) error {
	_, err := cron.ParseStandard(expr)
	return err
}

// NextRunTime calculates the next run time for a cron expression
func NextRunTime(expr string, from time.Time) (time.Time, error) {
	cronSchedule, err := cron.ParseStandard(expr)
	if err != nil {
		return time.Time{}, err
	}
	return cronSchedule.Next(from), nil
}

// NextRuns returns the next n run times after from.
func NextRuns(expr string, from time.Time, n int) ([]time.Time, error) {
	cronSchedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, n)
	for t := from; len(out) < n; {
		t = cronSchedule.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out, nil
}
