// Package identity runs jobs as a configured service user.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"jobflow/internal/domain"
	"jobflow/internal/store"
)

// UserFinder looks up a user by name, returning store.ErrNotFound when
// there is none.
type UserFinder interface {
	FindUserByName(ctx context.Context, name string) (domain.User, error)
}

type principalKey struct{}

// Principal returns the user a job runs as, if one was established.
func Principal(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(principalKey{}).(domain.User)
	return u, ok
}

// WithPrincipal attaches u to ctx.
func WithPrincipal(ctx context.Context, u domain.User) context.Context {
	return context.WithValue(ctx, principalKey{}, u)
}

// Initializer implements job.ScopeInitializer.
type Initializer struct {
	users    UserFinder
	userName string
	logger   zerolog.Logger
}

func NewInitializer(users UserFinder, userName string, logger zerolog.Logger) *Initializer {
	return &Initializer{users: users, userName: userName, logger: logger}
}

// Initialize signs the run in as the service user. A missing user only
// logs; jobs that need an identity fail on their own.
func (i *Initializer) Initialize(ctx context.Context) (context.Context, error) {
	u, err := i.users.FindUserByName(ctx, i.userName)
	if errors.Is(err, store.ErrNotFound) {
		i.logger.Warn().Str("user", i.userName).Msg("service user not found, jobs requiring an identity will fail")
		return ctx, nil
	}
	if err != nil {
		return ctx, fmt.Errorf("find service user %q: %w", i.userName, err)
	}
	i.logger.Debug().Str("user", u.UserName).Msg("job scope authenticated")
	return WithPrincipal(ctx, u), nil
}
