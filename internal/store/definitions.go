package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"jobflow/internal/domain"
)

const definitionColumns = `id,name,job_type_name,parameters_json,cron_expression,enabled,last_run_at,next_run_at,last_run_status,last_run_message,consecutive_failures,created_at,updated_at`

func scanDefinition(row scanner) (domain.JobDefinition, error) {
	var (
		d                domain.JobDefinition
		status           string
		lastRun, nextRun sql.NullTime
	)
	err := row.Scan(&d.ID, &d.Name, &d.JobTypeName, &d.ParametersJSON, &d.CronExpression, &d.Enabled,
		&lastRun, &nextRun, &status, &d.LastRunMessage, &d.ConsecutiveFailures, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.JobDefinition{}, ErrNotFound
	}
	if err != nil {
		return domain.JobDefinition{}, err
	}
	d.LastRunStatus = domain.RunStatus(status)
	if lastRun.Valid {
		t := lastRun.Time
		d.LastRunAt = &t
	}
	if nextRun.Valid {
		t := nextRun.Time
		d.NextRunAt = &t
	}
	return d, nil
}

func scanDefinitions(rows *sql.Rows) ([]domain.JobDefinition, error) {
	defer rows.Close()
	var out []domain.JobDefinition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (t *Tx) DefinitionByName(ctx context.Context, name string) (domain.JobDefinition, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM job_definitions WHERE name=?`, name)
	return scanDefinition(row)
}

func (t *Tx) GetDefinition(ctx context.Context, id uuid.UUID) (domain.JobDefinition, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM job_definitions WHERE id=?`, id)
	return scanDefinition(row)
}

// UpdateDefinitionRun stores the last-run summary and failure counter.
func (t *Tx) UpdateDefinitionRun(ctx context.Context, d domain.JobDefinition) error {
	_, err := t.tx.ExecContext(ctx, `
UPDATE job_definitions
SET last_run_at=?, last_run_status=?, last_run_message=?, consecutive_failures=?, updated_at=CURRENT_TIMESTAMP
WHERE id=?`, nullTime(d.LastRunAt), string(d.LastRunStatus), d.LastRunMessage, d.ConsecutiveFailures, d.ID)
	return err
}

func (r *SQLiteRepo) CreateDefinition(ctx context.Context, d domain.JobDefinition) (uuid.UUID, error) {
	id := d.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	if d.LastRunStatus == "" {
		d.LastRunStatus = domain.StatusNeverRun
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO job_definitions (id,name,job_type_name,parameters_json,cron_expression,enabled,next_run_at,last_run_status,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)`,
		id, d.Name, d.JobTypeName, d.ParametersJSON, d.CronExpression, d.Enabled, nullTime(d.NextRunAt), string(d.LastRunStatus))
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *SQLiteRepo) GetDefinition(ctx context.Context, id uuid.UUID) (domain.JobDefinition, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM job_definitions WHERE id=?`, id)
	return scanDefinition(row)
}

func (r *SQLiteRepo) GetDefinitionByName(ctx context.Context, name string) (domain.JobDefinition, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+definitionColumns+` FROM job_definitions WHERE name=?`, name)
	return scanDefinition(row)
}

func (r *SQLiteRepo) ListDefinitions(ctx context.Context) ([]domain.JobDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+definitionColumns+` FROM job_definitions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return scanDefinitions(rows)
}

// ListSchedulableDefinitions returns enabled definitions that carry a
// non-blank cron expression.
func (r *SQLiteRepo) ListSchedulableDefinitions(ctx context.Context) ([]domain.JobDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+definitionColumns+` FROM job_definitions
WHERE enabled=1 AND trim(cron_expression) <> '' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return scanDefinitions(rows)
}

// UpdateDefinition saves the administrator-editable fields.
func (r *SQLiteRepo) UpdateDefinition(ctx context.Context, d domain.JobDefinition) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE job_definitions
SET name=?, job_type_name=?, parameters_json=?, cron_expression=?, enabled=?, next_run_at=?, updated_at=CURRENT_TIMESTAMP
WHERE id=?`, d.Name, d.JobTypeName, d.ParametersJSON, d.CronExpression, d.Enabled, nullTime(d.NextRunAt), d.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepo) UpdateDefinitionNextRun(ctx context.Context, id uuid.UUID, next *time.Time) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE job_definitions SET next_run_at=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`, nullTime(next), id)
	return err
}

func (r *SQLiteRepo) DeleteDefinition(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM job_definitions WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertDefinition creates the definition or updates the one with the same
// name, leaving its run history alone.
func (r *SQLiteRepo) UpsertDefinition(ctx context.Context, d domain.JobDefinition) (uuid.UUID, error) {
	existing, err := r.GetDefinitionByName(ctx, d.Name)
	if errors.Is(err, ErrNotFound) {
		return r.CreateDefinition(ctx, d)
	}
	if err != nil {
		return uuid.Nil, err
	}
	d.ID = existing.ID
	d.NextRunAt = existing.NextRunAt
	return d.ID, r.UpdateDefinition(ctx, d)
}
