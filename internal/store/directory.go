package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"jobflow/internal/domain"
)

func (r *SQLiteRepo) ListUsers(ctx context.Context, limit int) ([]domain.User, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id,user_name FROM users ORDER BY user_name LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.UserName); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *SQLiteRepo) FindUserByName(ctx context.Context, name string) (domain.User, error) {
	var u domain.User
	err := r.db.QueryRowContext(ctx, `SELECT id,user_name FROM users WHERE user_name=?`, name).Scan(&u.ID, &u.UserName)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, ErrNotFound
	}
	return u, err
}

func (r *SQLiteRepo) UpsertUser(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO users (id,user_name) VALUES (?,?) ON CONFLICT(user_name) DO NOTHING`, "usr_"+uuid.NewString(), name)
	return err
}

func (r *SQLiteRepo) UpsertOrganization(ctx context.Context, name string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM organizations WHERE name=?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	id = "org_" + uuid.NewString()
	if _, err := r.db.ExecContext(ctx, `INSERT INTO organizations (id,name) VALUES (?,?)`, id, name); err != nil {
		return "", err
	}
	return id, nil
}

// UpsertContact creates or updates a contact keyed by email.
func (r *SQLiteRepo) UpsertContact(ctx context.Context, c domain.Contact) error {
	var orgID any
	if c.OrganizationName != "" {
		id, err := r.UpsertOrganization(ctx, c.OrganizationName)
		if err != nil {
			return err
		}
		orgID = id
	}

	var id string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM contacts WHERE email=? AND email<>''`, c.Email).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = r.db.ExecContext(ctx, `
INSERT INTO contacts (id,first_name,last_name,email,job_title,organization_id) VALUES (?,?,?,?,?,?)`,
			"con_"+uuid.NewString(), c.FirstName, c.LastName, c.Email, c.JobTitle, orgID)
		return err
	case err != nil:
		return err
	}
	_, err = r.db.ExecContext(ctx, `
UPDATE contacts SET first_name=?, last_name=?, job_title=?, organization_id=? WHERE id=?`,
		c.FirstName, c.LastName, c.JobTitle, orgID, id)
	return err
}

func (r *SQLiteRepo) ListContacts(ctx context.Context) ([]domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT c.id, c.first_name, c.last_name, c.email, c.job_title, COALESCE(o.name, '')
FROM contacts c LEFT JOIN organizations o ON o.id = c.organization_id
ORDER BY c.last_name, c.first_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []domain.Contact
	for rows.Next() {
		var c domain.Contact
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.JobTitle, &c.OrganizationName); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (r *SQLiteRepo) TemplateByName(ctx context.Context, name string) (domain.EmailTemplate, error) {
	var t domain.EmailTemplate
	err := r.db.QueryRowContext(ctx, `SELECT id,name,subject,body_html FROM email_templates WHERE name=?`, name).
		Scan(&t.ID, &t.Name, &t.Subject, &t.BodyHTML)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.EmailTemplate{}, ErrNotFound
	}
	return t, err
}

func (r *SQLiteRepo) ListTemplateNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT name FROM email_templates ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (r *SQLiteRepo) UpsertTemplate(ctx context.Context, t domain.EmailTemplate) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO email_templates (id,name,subject,body_html) VALUES (?,?,?,?)
ON CONFLICT(name) DO UPDATE SET subject=excluded.subject, body_html=excluded.body_html`,
		"tpl_"+uuid.NewString(), t.Name, t.Subject, t.BodyHTML)
	return err
}
