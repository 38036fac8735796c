// Package demolog handles DemoLogCommand: it logs a message and ticks once
// per DelaySeconds, reporting progress as it goes.
package demolog

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"jobflow/internal/command"
	"jobflow/internal/job"
)

type Handler struct {
	logger zerolog.Logger
	tick   time.Duration
}

func New(logger zerolog.Logger) *Handler {
	return &Handler{logger: logger, tick: time.Second}
}

// WithTick shortens the per-step wait, for tests.
func (h *Handler) WithTick(d time.Duration) *Handler {
	if d > 0 {
		h.tick = d
	}
	return h
}

func (h *Handler) Execute(ctx context.Context, cmd command.DemoLog) error {
	h.logger.Info().Str("message", cmd.Message).Msg("demo job started")

	total := max(cmd.DelaySeconds, 0)
	t := time.NewTicker(h.tick)
	defer t.Stop()
	for i := 1; i <= total; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		h.logger.Info().Int("step", i).Int("total", total).Msg("demo job working")
		job.ReportProgress(ctx, i*100/total, fmt.Sprintf("%d/%d", i, total))
	}

	h.logger.Info().Str("message", cmd.Message).Msg("demo job done")
	return nil
}
