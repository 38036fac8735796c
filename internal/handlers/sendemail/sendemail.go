package sendemail

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"jobflow/internal/command"
	"jobflow/internal/email"
)

type Handler struct {
	sender email.Sender
	logger zerolog.Logger
}

func New(sender email.Sender, logger zerolog.Logger) *Handler {
	return &Handler{sender: sender, logger: logger}
}

func (h *Handler) Execute(ctx context.Context, cmd command.SendEmail) error {
	h.logger.Info().Str("to", cmd.To).Str("subject", cmd.Subject).Msg("sending email")
	err := h.sender.Send(ctx, email.Message{
		To:          cmd.To,
		Subject:     cmd.Subject,
		Body:        cmd.Body,
		IsHTML:      cmd.IsHTML,
		Attachments: cmd.AttachmentPaths,
	})
	if err != nil {
		return fmt.Errorf("send email to %q: %w", cmd.To, err)
	}
	h.logger.Info().Str("to", cmd.To).Msg("email sent")
	return nil
}
