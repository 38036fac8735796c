// Package report exports named reports to files. Rendering is behind the
// Exporter interface; the bundled ManifestExporter writes a JSON document
// describing the export.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported output format")
	ErrUnknownReport     = errors.New("unknown report")
)

type Format string

const (
	PDF  Format = "Pdf"
	XLSX Format = "Xlsx"
)

// ParseFormat accepts pdf or xlsx in any case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pdf":
		return PDF, nil
	case "xlsx":
		return XLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

func (f Format) Extension() string { return strings.ToLower(string(f)) }

const (
	ProjectStatus    = "Project Status Report"
	ContactListByOrg = "Contact List by Organization"
)

var names = []string{ProjectStatus, ContactListByOrg}

// Names lists the reports that can be exported.
func Names() []string {
	out := make([]string, len(names))
	copy(out, names)
	return out
}

func Known(name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// Request is one export.
type Request struct {
	ReportName string
	Format     Format
	Parameters map[string]any
}

type Exporter interface {
	Export(ctx context.Context, req Request, w io.Writer) error
}

// ManifestExporter writes a JSON manifest in place of a rendered document.
type ManifestExporter struct {
	Now func() time.Time
}

type manifest struct {
	Report      string         `json:"report"`
	Format      Format         `json:"format"`
	GeneratedAt time.Time      `json:"generated_at"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

func (e ManifestExporter) Export(ctx context.Context, req Request, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !Known(req.ReportName) {
		return fmt.Errorf("%w: %q", ErrUnknownReport, req.ReportName)
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(manifest{
		Report:      req.ReportName,
		Format:      req.Format,
		GeneratedAt: now().UTC(),
		Parameters:  req.Parameters,
	})
}

// OutputPath returns explicit when set, otherwise "<dir>/<report>.<ext>".
func OutputPath(dir, explicit, reportName string, f Format) string {
	if explicit != "" {
		return explicit
	}
	return filepath.Join(dir, reportName+"."+f.Extension())
}

// ExportFile exports req to path, creating parent directories. A failed
// export removes the partial file.
func ExportFile(ctx context.Context, exp Exporter, req Request, path string) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()
	if err := exp.Export(ctx, req, f); err != nil {
		return fmt.Errorf("export %s: %w", req.ReportName, err)
	}
	return nil
}
