package mailmerge

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobflow/internal/command"
	"jobflow/internal/domain"
	"jobflow/internal/email"
	"jobflow/internal/store"
)

type recordingSender struct {
	msgs   []email.Message
	failTo map[string]bool
}

func (s *recordingSender) Send(_ context.Context, msg email.Message) error {
	if s.failTo[msg.To] {
		return errors.New("mailbox unavailable")
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func seededRepo(t *testing.T) *store.SQLiteRepo {
	t.Helper()
	db, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := store.NewSQLiteRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.UpsertTemplate(ctx, domain.EmailTemplate{
		Name:     "Welcome Contact",
		Subject:  "Welcome, {FirstName}",
		BodyHTML: "<p>Dear {FullName} ({JobTitle} at {Organization.Name}), we will write to {Email}. Regards, {LastName}?</p>",
	}))
	for _, c := range []domain.Contact{
		{FirstName: "Ada", LastName: "Lovelace", Email: "ada@analytical.test", JobTitle: "Analyst", OrganizationName: "Analytical"},
		{FirstName: "Charles", LastName: "Babbage", Email: "charles@analytical.test", JobTitle: "Engineer", OrganizationName: "Analytical"},
		{FirstName: "Grace", LastName: "Hopper", Email: "grace@navy.test", JobTitle: "Admiral", OrganizationName: "Navy"},
		{FirstName: "No", LastName: "Mail", OrganizationName: "Navy"},
	} {
		require.NoError(t, repo.UpsertContact(ctx, c))
	}
	return repo
}

func TestMergeSendsRenderedTemplate(t *testing.T) {
	sender := &recordingSender{}
	h := New(seededRepo(t), sender, zerolog.Nop())

	res, err := h.Merge(context.Background(), command.SendMailMerge{TemplateName: "Welcome Contact"})
	require.NoError(t, err)
	assert.Equal(t, Result{Sent: 3, Skipped: 1}, res)

	byTo := map[string]email.Message{}
	for _, m := range sender.msgs {
		byTo[m.To] = m
	}
	ada := byTo["ada@analytical.test"]
	assert.Equal(t, "Welcome, Ada", ada.Subject)
	assert.Equal(t, "<p>Dear Ada Lovelace (Analyst at Analytical), we will write to ada@analytical.test. Regards, Lovelace?</p>", ada.Body)
	assert.True(t, ada.IsHTML)
}

func TestMergeOrganizationFilterIgnoresCase(t *testing.T) {
	sender := &recordingSender{}
	h := New(seededRepo(t), sender, zerolog.Nop())

	res, err := h.Merge(context.Background(), command.SendMailMerge{TemplateName: "Welcome Contact", OrganizationFilter: "analytical"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
	for _, m := range sender.msgs {
		assert.Contains(t, m.To, "@analytical.test")
	}
}

func TestMergeCountsSendFailures(t *testing.T) {
	sender := &recordingSender{failTo: map[string]bool{"grace@navy.test": true}}
	h := New(seededRepo(t), sender, zerolog.Nop())

	res, err := h.Merge(context.Background(), command.SendMailMerge{TemplateName: "Welcome Contact"})
	require.NoError(t, err)
	assert.Equal(t, Result{Sent: 2, Failed: 1, Skipped: 1}, res)
}

func TestMergeMissingTemplate(t *testing.T) {
	h := New(seededRepo(t), &recordingSender{}, zerolog.Nop())
	err := h.Execute(context.Background(), command.SendMailMerge{TemplateName: "Newsletter"})
	assert.ErrorIs(t, err, ErrTemplateNotFound)
	assert.Contains(t, err.Error(), "Newsletter")
}

func TestMergeCancelled(t *testing.T) {
	h := New(seededRepo(t), &recordingSender{}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.Merge(ctx, command.SendMailMerge{TemplateName: "Welcome Contact"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReplacerWithoutOrganization(t *testing.T) {
	r := Replacer(domain.Contact{FirstName: "Solo"})
	assert.Equal(t, "Solo / ", r.Replace("{FullName} / {Organization.Name}"))
}
