package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"jobflow/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Open opens the SQLite database at path and ensures the schema. An empty
// path or ":memory:" opens a private in-memory database.
func Open(path string) (*sql.DB, error) {
	var dsn string
	if path == "" || path == ":memory:" {
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	} else {
		dsn = fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite single writer
	if err := EnsureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS job_definitions (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  job_type_name TEXT NOT NULL,
  parameters_json TEXT NOT NULL DEFAULT '',
  cron_expression TEXT NOT NULL DEFAULT '',
  enabled INTEGER NOT NULL DEFAULT 1,
  last_run_at DATETIME,
  next_run_at DATETIME,
  last_run_status TEXT NOT NULL CHECK(last_run_status IN ('never_run','running','success','failed')) DEFAULT 'never_run',
  last_run_message TEXT NOT NULL DEFAULT '',
  consecutive_failures INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS execution_records (
  id TEXT PRIMARY KEY,
  job_name TEXT NOT NULL,
  job_type_name TEXT NOT NULL,
  started_at DATETIME NOT NULL,
  completed_at DATETIME,
  status TEXT NOT NULL CHECK(status IN ('running','success','failed')) DEFAULT 'running',
  duration_ms INTEGER NOT NULL DEFAULT 0,
  error_message TEXT NOT NULL DEFAULT '',
  progress_percent INTEGER NOT NULL DEFAULT 0,
  progress_message TEXT NOT NULL DEFAULT '',
  parameters_json TEXT NOT NULL DEFAULT '',
  job_definition_id TEXT REFERENCES job_definitions(id) ON DELETE SET NULL
);
CREATE INDEX IF NOT EXISTS idx_exec_started ON execution_records(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_exec_definition ON execution_records(job_definition_id, started_at DESC);
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  user_name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS organizations (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS contacts (
  id TEXT PRIMARY KEY,
  first_name TEXT NOT NULL DEFAULT '',
  last_name TEXT NOT NULL DEFAULT '',
  email TEXT NOT NULL DEFAULT '',
  job_title TEXT NOT NULL DEFAULT '',
  organization_id TEXT REFERENCES organizations(id)
);
CREATE TABLE IF NOT EXISTS email_templates (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  subject TEXT NOT NULL DEFAULT '',
  body_html TEXT NOT NULL DEFAULT ''
);
`
	_, err := db.Exec(schema)
	return err
}

// SQLiteRepo is the SQLite-backed store for execution history, job
// definitions and the directory data handlers read.
type SQLiteRepo struct{ db *sql.DB }

func NewSQLiteRepo(db *sql.DB) *SQLiteRepo { return &SQLiteRepo{db: db} }

// DB returns the underlying database connection.
func (r *SQLiteRepo) DB() *sql.DB { return r.db }

func (r *SQLiteRepo) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

// Tx is one unit of work. It must not outlive the InTx callback.
type Tx struct{ tx *sql.Tx }

// InTx runs fn in a transaction, committing when fn returns nil.
func (r *SQLiteRepo) InTx(ctx context.Context, fn func(*Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(&Tx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

const executionColumns = `id,job_name,job_type_name,started_at,completed_at,status,duration_ms,error_message,progress_percent,progress_message,parameters_json,job_definition_id`

func scanExecution(row scanner) (domain.ExecutionRecord, error) {
	var (
		e         domain.ExecutionRecord
		status    string
		completed sql.NullTime
		defID     uuid.NullUUID
	)
	err := row.Scan(&e.ID, &e.JobName, &e.JobTypeName, &e.StartedAt, &completed, &status, &e.DurationMs,
		&e.ErrorMessage, &e.ProgressPercent, &e.ProgressMessage, &e.ParametersJSON, &defID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ExecutionRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.ExecutionRecord{}, err
	}
	e.Status = domain.RunStatus(status)
	if completed.Valid {
		t := completed.Time
		e.CompletedAt = &t
	}
	if defID.Valid {
		id := defID.UUID
		e.JobDefinitionID = &id
	}
	return e, nil
}

func (t *Tx) InsertExecution(ctx context.Context, e domain.ExecutionRecord) error {
	var defID uuid.NullUUID
	if e.JobDefinitionID != nil {
		defID = uuid.NullUUID{UUID: *e.JobDefinitionID, Valid: true}
	}
	_, err := t.tx.ExecContext(ctx, `
INSERT INTO execution_records (id,job_name,job_type_name,started_at,status,parameters_json,job_definition_id)
VALUES (?,?,?,?,?,?,?)`,
		e.ID, e.JobName, e.JobTypeName, e.StartedAt.UTC(), string(e.Status), e.ParametersJSON, defID)
	return err
}

func (t *Tx) GetExecution(ctx context.Context, id uuid.UUID) (domain.ExecutionRecord, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM execution_records WHERE id=?`, id)
	return scanExecution(row)
}

// FinishExecution writes the terminal state. Records that already left
// running are not touched, so status never moves backwards.
func (t *Tx) FinishExecution(ctx context.Context, e domain.ExecutionRecord) error {
	res, err := t.tx.ExecContext(ctx, `
UPDATE execution_records SET completed_at=?, status=?, duration_ms=?, error_message=?
WHERE id=? AND status='running'`,
		nullTime(e.CompletedAt), string(e.Status), e.DurationMs, e.ErrorMessage, e.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("execution %s is not running: %w", e.ID, ErrNotFound)
	}
	return nil
}

// UpdateProgress stores progress for a running record.
func (r *SQLiteRepo) UpdateProgress(ctx context.Context, id uuid.UUID, percent int, message string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE execution_records SET progress_percent=?, progress_message=? WHERE id=?`, percent, message, id)
	return err
}

// InterruptedMessage is the error stored on records recovered at startup.
const InterruptedMessage = "interrupted: process stopped while running"

// RecoverStale fails records left running by a previous process, along
// with the running status of their definitions. Call it before any job
// starts.
func (r *SQLiteRepo) RecoverStale(ctx context.Context, now time.Time) (int, error) {
	var n int64
	err := r.InTx(ctx, func(tx *Tx) error {
		res, err := tx.tx.ExecContext(ctx, `
UPDATE execution_records SET status='failed', completed_at=?, error_message=?
WHERE status='running'`, now.UTC(), InterruptedMessage)
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		_, err = tx.tx.ExecContext(ctx, `
UPDATE job_definitions SET last_run_status='failed', last_run_message=?, updated_at=CURRENT_TIMESTAMP
WHERE last_run_status='running'`, InterruptedMessage)
		return err
	})
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *SQLiteRepo) GetExecution(ctx context.Context, id uuid.UUID) (domain.ExecutionRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM execution_records WHERE id=?`, id)
	return scanExecution(row)
}

// ExecutionFilter narrows ListExecutions. Zero values match everything.
type ExecutionFilter struct {
	JobName      string
	DefinitionID *uuid.UUID
	Status       domain.RunStatus
	Limit        int
}

func (r *SQLiteRepo) ListExecutions(ctx context.Context, f ExecutionFilter) ([]domain.ExecutionRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.JobName != "" {
		where = append(where, "job_name=?")
		args = append(args, f.JobName)
	}
	if f.DefinitionID != nil {
		where = append(where, "job_definition_id=?")
		args = append(args, *f.DefinitionID)
	}
	if f.Status != "" {
		where = append(where, "status=?")
		args = append(args, string(f.Status))
	}
	q := `SELECT ` + executionColumns + ` FROM execution_records`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	if f.Limit <= 0 {
		f.Limit = 50
	}
	q += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ExecutionRecord
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// nullTime converts an optional time for storage.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
