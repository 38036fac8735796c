// Package reporting handles GenerateReportCommand and
// SendReportEmailCommand.
package reporting

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"jobflow/internal/command"
	"jobflow/internal/email"
	"jobflow/internal/job"
	"jobflow/internal/report"
)

// Generator exports reports into a directory.
type Generator struct {
	exporter report.Exporter
	dir      string
	now      func() time.Time
	logger   zerolog.Logger
}

func NewGenerator(exporter report.Exporter, dir string, logger zerolog.Logger) *Generator {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &Generator{exporter: exporter, dir: dir, now: time.Now, logger: logger}
}

// Generate exports name and returns the written path. outputPath, when
// set, overrides the default "<dir>/<name>.<ext>".
func (g *Generator) Generate(ctx context.Context, name, format, outputPath string, params map[string]string) (string, error) {
	f, err := report.ParseFormat(format)
	if err != nil {
		return "", err
	}
	path := report.OutputPath(g.dir, outputPath, name, f)
	req := report.Request{
		ReportName: name,
		Format:     f,
		Parameters: report.ResolveParameters(params, g.now(), g.logger),
	}
	job.ReportProgress(ctx, 10, "exporting "+name)
	if err := report.ExportFile(ctx, g.exporter, req, path); err != nil {
		return "", err
	}
	return path, nil
}

type GenerateHandler struct {
	gen    *Generator
	logger zerolog.Logger
}

func NewGenerateHandler(gen *Generator, logger zerolog.Logger) *GenerateHandler {
	return &GenerateHandler{gen: gen, logger: logger}
}

func (h *GenerateHandler) Execute(ctx context.Context, cmd command.GenerateReport) error {
	h.logger.Info().Str("report", cmd.ReportName).Str("format", cmd.OutputFormat).Msg("generating report")
	path, err := h.gen.Generate(ctx, cmd.ReportName, cmd.OutputFormat, cmd.OutputPath, cmd.ReportParameters)
	if err != nil {
		return err
	}
	job.ReportProgress(ctx, 100, "exported to "+path)
	h.logger.Info().Str("report", cmd.ReportName).Str("path", path).Msg("report exported")
	return nil
}

// EmailHandler exports a report and mails it to every recipient.
type EmailHandler struct {
	gen    *Generator
	sender email.Sender
	logger zerolog.Logger
}

func NewEmailHandler(gen *Generator, sender email.Sender, logger zerolog.Logger) *EmailHandler {
	return &EmailHandler{gen: gen, sender: sender, logger: logger}
}

func (h *EmailHandler) Execute(ctx context.Context, cmd command.SendReportEmail) error {
	recipients := SplitRecipients(cmd.Recipients)
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients for report %q", cmd.ReportName)
	}
	h.logger.Info().Str("report", cmd.ReportName).Strs("recipients", recipients).Msg("generating report for email")

	path, err := h.gen.Generate(ctx, cmd.ReportName, cmd.OutputFormat, "", cmd.ReportParameters)
	if err != nil {
		return err
	}

	subject := cmd.Subject
	if subject == "" {
		subject = "Report: " + cmd.ReportName
	}
	body := cmd.BodyText
	if body == "" {
		body = fmt.Sprintf("<p>Please find the attached report: <strong>%s</strong></p>", cmd.ReportName)
	}

	for i, to := range recipients {
		err := h.sender.Send(ctx, email.Message{
			To:          to,
			Subject:     subject,
			Body:        body,
			IsHTML:      true,
			Attachments: []string{path},
		})
		if err != nil {
			return fmt.Errorf("send report to %q: %w", to, err)
		}
		job.ReportProgress(ctx, 10+90*(i+1)/len(recipients), "sent to "+to)
	}
	h.logger.Info().Str("report", cmd.ReportName).Int("recipients", len(recipients)).Msg("report emailed")
	return nil
}

// SplitRecipients splits a ';'-separated list, dropping blanks.
func SplitRecipients(s string) []string {
	var out []string
	for _, r := range strings.Split(s, ";") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
