package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ref = time.Date(2026, 3, 18, 14, 30, 0, 0, time.UTC)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"Pdf": PDF, "pdf": PDF, " PDF ": PDF, "Xlsx": XLSX, "XLSX": XLSX} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("docx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Equal(t, "xlsx", XLSX.Extension())
}

func TestResolveParameters(t *testing.T) {
	id := uuid.New()
	got := ResolveParameters(map[string]string{
		"StartDate":  "last-month",
		"EndDate":    "last-month",
		"DateFrom":   "this-year",
		"DateTo":     "this-year",
		"Cutoff":     "2026-01-15",
		"MaxRows":    "25",
		"Threshold":  "0.75",
		"Active":     "True",
		"OrgID":      id.String(),
		"Title":      "Weekly",
		"Unresolved": "last-fortnight",
	}, ref, zerolog.Nop())

	assert.Equal(t, day(2026, 2, 1), got["StartDate"])
	assert.Equal(t, day(2026, 2, 28), got["EndDate"])
	assert.Equal(t, day(2026, 1, 1), got["DateFrom"])
	assert.Equal(t, day(2026, 12, 31), got["DateTo"])
	assert.Equal(t, day(2026, 1, 15), got["Cutoff"])
	assert.Equal(t, 25, got["MaxRows"])
	assert.Equal(t, 0.75, got["Threshold"])
	assert.Equal(t, true, got["Active"])
	assert.Equal(t, id, got["OrgID"])
	assert.Equal(t, "Weekly", got["Title"])
	assert.Equal(t, "last-fortnight", got["Unresolved"])
}

func TestResolveParametersEmpty(t *testing.T) {
	assert.Nil(t, ResolveParameters(nil, ref, zerolog.Nop()))
}

func TestManifestExporter(t *testing.T) {
	exp := ManifestExporter{Now: func() time.Time { return ref }}
	var buf bytes.Buffer
	err := exp.Export(context.Background(), Request{
		ReportName: ProjectStatus,
		Format:     PDF,
		Parameters: map[string]any{"StartDate": day(2026, 2, 1)},
	}, &buf)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, ProjectStatus, m["report"])
	assert.Equal(t, "Pdf", m["format"])
	assert.Equal(t, "2026-03-18T14:30:00Z", m["generated_at"])

	err = exp.Export(context.Background(), Request{ReportName: "Nope", Format: PDF}, &buf)
	assert.ErrorIs(t, err, ErrUnknownReport)
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "Project Status Report.pdf"), OutputPath("out", "", ProjectStatus, PDF))
	assert.Equal(t, "/tmp/x.bin", OutputPath("out", "/tmp/x.bin", ProjectStatus, PDF))
}

type failingExporter struct{}

func (failingExporter) Export(_ context.Context, _ Request, w io.Writer) error {
	_, _ = w.Write([]byte("partial"))
	return errors.New("renderer crashed")
}

func TestExportFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "report.xlsx")

	require.NoError(t, ExportFile(context.Background(), ManifestExporter{}, Request{ReportName: ContactListByOrg, Format: XLSX}, path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), ContactListByOrg)

	bad := filepath.Join(dir, "bad.pdf")
	err = ExportFile(context.Background(), failingExporter{}, Request{ReportName: ProjectStatus, Format: PDF}, bad)
	assert.ErrorContains(t, err, "renderer crashed")
	assert.NoFileExists(t, bad)
}

func TestNames(t *testing.T) {
	n := Names()
	assert.Equal(t, []string{ProjectStatus, ContactListByOrg}, n)
	n[0] = "mutated"
	assert.True(t, Known(ProjectStatus))
	assert.False(t, Known("mutated"))
}
