// Package email defines outbound mail delivery.
package email

import (
	"context"

	"github.com/rs/zerolog"
)

type Message struct {
	To          string
	Subject     string
	Body        string
	IsHTML      bool
	Attachments []string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender logs messages instead of delivering them.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Bool("html", msg.IsHTML).
		Int("attachments", len(msg.Attachments)).
		Msg("email (log only)")
	s.logger.Debug().Str("to", msg.To).Str("body", msg.Body).Msg("email body")
	return nil
}
