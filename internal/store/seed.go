package store

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"jobflow/internal/domain"
)

// Seed is the YAML shape accepted by ImportSeed.
type Seed struct {
	Definitions []SeedDefinition `yaml:"definitions"`
	Users       []string         `yaml:"users"`
	Contacts    []SeedContact    `yaml:"contacts"`
	Templates   []SeedTemplate   `yaml:"templates"`
}

type SeedDefinition struct {
	Name       string `yaml:"name"`
	JobType    string `yaml:"job_type"`
	Parameters string `yaml:"parameters"`
	Cron       string `yaml:"cron"`
	Enabled    *bool  `yaml:"enabled"`
}

type SeedContact struct {
	FirstName    string `yaml:"first_name"`
	LastName     string `yaml:"last_name"`
	Email        string `yaml:"email"`
	JobTitle     string `yaml:"job_title"`
	Organization string `yaml:"organization"`
}

type SeedTemplate struct {
	Name    string `yaml:"name"`
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

// SeedResult counts what an import touched.
type SeedResult struct {
	Definitions int
	Users       int
	Contacts    int
	Templates   int
}

func LoadSeedFile(path string) (Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed: %w", err)
	}
	return ParseSeed(raw)
}

func ParseSeed(raw []byte) (Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return Seed{}, fmt.Errorf("parse seed: %w", err)
	}
	for i, d := range s.Definitions {
		if d.Name == "" || d.JobType == "" {
			return Seed{}, fmt.Errorf("seed definition %d: name and job_type are required", i)
		}
	}
	return s, nil
}

// ImportSeed upserts everything in s. Running it twice leaves the same
// rows behind.
func (r *SQLiteRepo) ImportSeed(ctx context.Context, s Seed) (SeedResult, error) {
	var res SeedResult
	for _, name := range s.Users {
		if err := r.UpsertUser(ctx, name); err != nil {
			return res, fmt.Errorf("seed user %q: %w", name, err)
		}
		res.Users++
	}
	for _, c := range s.Contacts {
		err := r.UpsertContact(ctx, domain.Contact{
			FirstName:        c.FirstName,
			LastName:         c.LastName,
			Email:            c.Email,
			JobTitle:         c.JobTitle,
			OrganizationName: c.Organization,
		})
		if err != nil {
			return res, fmt.Errorf("seed contact %q: %w", c.Email, err)
		}
		res.Contacts++
	}
	for _, t := range s.Templates {
		if err := r.UpsertTemplate(ctx, domain.EmailTemplate{Name: t.Name, Subject: t.Subject, BodyHTML: t.Body}); err != nil {
			return res, fmt.Errorf("seed template %q: %w", t.Name, err)
		}
		res.Templates++
	}
	for _, d := range s.Definitions {
		enabled := true
		if d.Enabled != nil {
			enabled = *d.Enabled
		}
		_, err := r.UpsertDefinition(ctx, domain.JobDefinition{
			Name:           d.Name,
			JobTypeName:    d.JobType,
			ParametersJSON: d.Parameters,
			CronExpression: d.Cron,
			Enabled:        enabled,
		})
		if err != nil {
			return res, fmt.Errorf("seed definition %q: %w", d.Name, err)
		}
		res.Definitions++
	}
	return res, nil
}
