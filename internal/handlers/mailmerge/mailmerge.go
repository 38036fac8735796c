// Package mailmerge handles SendMailMergeCommand: it renders an email
// template for each contact and sends it.
package mailmerge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"jobflow/internal/command"
	"jobflow/internal/domain"
	"jobflow/internal/email"
	"jobflow/internal/job"
	"jobflow/internal/store"
)

var ErrTemplateNotFound = errors.New("email template not found")

type Directory interface {
	TemplateByName(ctx context.Context, name string) (domain.EmailTemplate, error)
	ListContacts(ctx context.Context) ([]domain.Contact, error)
}

// Result counts one merge run.
type Result struct {
	Sent    int
	Failed  int
	Skipped int
}

type Handler struct {
	dir    Directory
	sender email.Sender
	logger zerolog.Logger
}

func New(dir Directory, sender email.Sender, logger zerolog.Logger) *Handler {
	return &Handler{dir: dir, sender: sender, logger: logger}
}

func (h *Handler) Execute(ctx context.Context, cmd command.SendMailMerge) error {
	_, err := h.Merge(ctx, cmd)
	return err
}

// Merge sends the template to every matching contact. Send failures are
// counted and logged; only a missing template, a failed contact query or
// cancellation end the run with an error.
func (h *Handler) Merge(ctx context.Context, cmd command.SendMailMerge) (Result, error) {
	var res Result
	filter := strings.TrimSpace(cmd.OrganizationFilter)
	h.logger.Info().Str("template", cmd.TemplateName).Str("organization", filter).Msg("starting mail merge")

	tpl, err := h.dir.TemplateByName(ctx, cmd.TemplateName)
	if errors.Is(err, store.ErrNotFound) {
		return res, fmt.Errorf("%w: %q", ErrTemplateNotFound, cmd.TemplateName)
	}
	if err != nil {
		return res, fmt.Errorf("load template: %w", err)
	}
	contacts, err := h.dir.ListContacts(ctx)
	if err != nil {
		return res, fmt.Errorf("load contacts: %w", err)
	}

	for i, c := range contacts {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if filter != "" && !strings.EqualFold(c.OrganizationName, filter) {
			continue
		}
		if strings.TrimSpace(c.Email) == "" {
			res.Skipped++
			h.logger.Warn().Str("contact", c.FullName()).Msg("skipping contact without email address")
			continue
		}

		r := Replacer(c)
		err := h.sender.Send(ctx, email.Message{
			To:      c.Email,
			Subject: r.Replace(tpl.Subject),
			Body:    r.Replace(tpl.BodyHTML),
			IsHTML:  true,
		})
		if err != nil {
			res.Failed++
			h.logger.Error().Err(err).Str("email", c.Email).Msg("failed to send mail merge email")
		} else {
			res.Sent++
		}
		job.ReportProgress(ctx, (i+1)*100/len(contacts), fmt.Sprintf("%d sent, %d failed", res.Sent, res.Failed))
	}

	h.logger.Info().Int("sent", res.Sent).Int("failed", res.Failed).Int("skipped", res.Skipped).Msg("mail merge complete")
	return res, nil
}

// Replacer substitutes the contact placeholders supported in templates.
func Replacer(c domain.Contact) *strings.Replacer {
	return strings.NewReplacer(
		"{FirstName}", c.FirstName,
		"{LastName}", c.LastName,
		"{FullName}", c.FullName(),
		"{Email}", c.Email,
		"{JobTitle}", c.JobTitle,
		"{Organization.Name}", c.OrganizationName,
	)
}
