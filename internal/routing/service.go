// Package routing turns stored job configuration (a command type name plus
// a JSON parameter blob) into typed commands and hands them to a
// dispatcher.
package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"jobflow/internal/command"
	"jobflow/internal/domain"
	"jobflow/internal/job"
)

var ErrUnknownJobType = errors.New("unknown job type")

type Service struct {
	dispatcher job.Dispatcher
	logger     zerolog.Logger
}

func NewService(dispatcher job.Dispatcher, logger zerolog.Logger) *Service {
	return &Service{dispatcher: dispatcher, logger: logger}
}

// Build resolves typeName against the command catalog. Blank or null
// parameters select the default for origin; a blob that does not decode
// falls back to the same default with a warning.
func (s *Service) Build(typeName, paramsJSON string, origin command.Origin) (command.Command, error) {
	d, ok := command.Lookup(typeName)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJobType, typeName)
	}
	raw := strings.TrimSpace(paramsJSON)
	if raw == "" || raw == "null" {
		return d.Default(origin), nil
	}
	cmd, err := d.Decode([]byte(raw))
	if err != nil {
		s.logger.Warn().Err(err).Str("command", typeName).Msg("invalid parameters, using defaults")
		return d.Default(origin), nil
	}
	return cmd, nil
}

// DispatchByName dispatches the command named typeName. Unknown names fail
// with ErrUnknownJobType.
func (s *Service) DispatchByName(ctx context.Context, typeName, paramsJSON string) error {
	cmd, err := s.Build(typeName, paramsJSON, command.Manual)
	if err != nil {
		return err
	}
	return s.dispatcher.Dispatch(ctx, cmd)
}

// ScheduleByName registers a recurring run of typeName. Unknown names are
// logged and skipped so callers can walk many definitions.
func (s *Service) ScheduleByName(ctx context.Context, typeName, paramsJSON, cronExpr string) error {
	cmd, err := s.Build(typeName, paramsJSON, command.Scheduled)
	if errors.Is(err, ErrUnknownJobType) {
		s.logger.Warn().Str("command", typeName).Msg("cannot schedule unknown job type")
		return nil
	}
	if err != nil {
		return err
	}
	return s.dispatcher.Schedule(ctx, cmd, cronExpr)
}

// RunDefinition dispatches def now, recorded under the definition's name.
func (s *Service) RunDefinition(ctx context.Context, def domain.JobDefinition) error {
	return s.DispatchByName(job.WithJobName(ctx, def.Name), def.JobTypeName, def.ParametersJSON)
}

// ScheduleDefinition registers def's cron schedule, recorded under the
// definition's name.
func (s *Service) ScheduleDefinition(ctx context.Context, def domain.JobDefinition) error {
	return s.ScheduleByName(job.WithJobName(ctx, def.Name), def.JobTypeName, def.ParametersJSON, def.CronExpression)
}
