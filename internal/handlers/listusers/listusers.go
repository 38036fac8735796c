package listusers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"jobflow/internal/command"
	"jobflow/internal/domain"
)

type UserLister interface {
	ListUsers(ctx context.Context, limit int) ([]domain.User, error)
}

// Handler logs up to MaxResults users.
type Handler struct {
	users  UserLister
	logger zerolog.Logger
}

func New(users UserLister, logger zerolog.Logger) *Handler {
	return &Handler{users: users, logger: logger}
}

func (h *Handler) Execute(ctx context.Context, cmd command.ListUsers) error {
	h.logger.Info().Int("max", cmd.MaxResults).Msg("listing users")
	users, err := h.users.ListUsers(ctx, cmd.MaxResults)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	for _, u := range users {
		h.logger.Info().Str("user", u.UserName).Msg("found user")
	}
	h.logger.Info().Int("count", len(users)).Msg("listing users done")
	return nil
}
