package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state shared by execution records and the
// last-run summary on a job definition.
type RunStatus string

const (
	StatusNeverRun RunStatus = "never_run"
	StatusRunning  RunStatus = "running"
	StatusSuccess  RunStatus = "success"
	StatusFailed   RunStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s RunStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// ExecutionRecord is one dispatch attempt.
type ExecutionRecord struct {
	ID              uuid.UUID  `json:"id"`
	JobName         string     `json:"job_name"`
	JobTypeName     string     `json:"job_type_name"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Status          RunStatus  `json:"status"`
	DurationMs      int64      `json:"duration_ms"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	ProgressPercent int        `json:"progress_percent"`
	ProgressMessage string     `json:"progress_message,omitempty"`
	ParametersJSON  string     `json:"parameters_json,omitempty"`
	JobDefinitionID *uuid.UUID `json:"job_definition_id,omitempty"`
}

// JobDefinition is an administrator-configured named job.
type JobDefinition struct {
	ID                  uuid.UUID  `json:"id"`
	Name                string     `json:"name"`
	JobTypeName         string     `json:"job_type_name"`
	ParametersJSON      string     `json:"parameters_json,omitempty"`
	CronExpression      string     `json:"cron_expression,omitempty"`
	Enabled             bool       `json:"enabled"`
	LastRunAt           *time.Time `json:"last_run_at,omitempty"`
	NextRunAt           *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus       RunStatus  `json:"last_run_status"`
	LastRunMessage      string     `json:"last_run_message,omitempty"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type User struct {
	ID       string `json:"id"`
	UserName string `json:"user_name"`
}

type Contact struct {
	ID               string `json:"id"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Email            string `json:"email"`
	JobTitle         string `json:"job_title"`
	OrganizationName string `json:"organization_name"`
}

func (c Contact) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

type EmailTemplate struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
}
