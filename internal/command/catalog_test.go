package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMetadata_DemoLog(t *testing.T) {
	md, ok := GetMetadata(DemoLogName)
	require.True(t, ok)
	require.Len(t, md, 2)

	assert.Equal(t, "Message", md[0].Name)
	assert.Equal(t, TypeString, md[0].Type)
	assert.True(t, md[0].Required)
	assert.Nil(t, md[0].Default)

	assert.Equal(t, "DelaySeconds", md[1].Name)
	assert.Equal(t, TypeInt, md[1].Type)
	assert.False(t, md[1].Required)
	assert.Equal(t, 3, md[1].Default)

	for _, m := range md {
		assert.Empty(t, m.DataSourceHint, m.Name)
	}
}

func TestGetMetadata_ListUsers(t *testing.T) {
	md, ok := GetMetadata(ListUsersName)
	require.True(t, ok)
	require.Len(t, md, 1)
	assert.Equal(t, "MaxResults", md[0].Name)
	assert.Equal(t, 10, md[0].Default)
}

func TestGetMetadata_Hints(t *testing.T) {
	tests := []struct {
		command string
		param   string
		hint    string
	}{
		{GenerateReportName, "ReportName", HintReports},
		{GenerateReportName, "OutputFormat", HintOutputFormats},
		{GenerateReportName, "ReportParameters", HintKeyValue},
		{GenerateReportName, "OutputPath", ""},
		{SendReportEmailName, "ReportName", HintReports},
		{SendReportEmailName, "ReportParameters", HintKeyValue},
		{SendReportEmailName, "Recipients", ""},
		{SendMailMergeName, "TemplateName", HintEmailTemplates},
		{SendEmailName, "To", ""},
	}
	for _, tt := range tests {
		t.Run(tt.command+"/"+tt.param, func(t *testing.T) {
			md, ok := GetMetadata(tt.command)
			require.True(t, ok)
			m := find(t, md, tt.param)
			assert.Equal(t, tt.hint, m.DataSourceHint)
		})
	}
}

func TestGetMetadata_RequiredIsInverseOfDefault(t *testing.T) {
	for _, name := range RegisteredNames() {
		d, ok := Lookup(name)
		require.True(t, ok)
		md, ok := GetMetadata(name)
		require.True(t, ok)
		require.Len(t, md, len(d.Params))
		for i, p := range d.Params {
			assert.Equal(t, p.Name, md[i].Name, "order for %s", name)
			assert.Equal(t, !p.HasDefault, md[i].Required, "%s.%s", name, p.Name)
		}
	}
}

func TestGetMetadata_SendEmailRequiredFields(t *testing.T) {
	md, ok := GetMetadata(SendEmailName)
	require.True(t, ok)
	to := find(t, md, "To")
	assert.True(t, to.Required)
	assert.Equal(t, TypeString, to.Type)
	assert.False(t, find(t, md, "IsHtml").Required)
}

func TestGetMetadata_Unknown(t *testing.T) {
	md, ok := GetMetadata("NonExistentCommand")
	assert.False(t, ok)
	assert.Nil(t, md)
}

func TestGetMetadata_ReturnsCopy(t *testing.T) {
	md, _ := GetMetadata(DemoLogName)
	md[0].Name = "mutated"

	again, _ := GetMetadata(DemoLogName)
	assert.Equal(t, "Message", again[0].Name)
}

func TestRegisteredNames(t *testing.T) {
	assert.Equal(t, []string{
		DemoLogName,
		ListUsersName,
		GenerateReportName,
		SendEmailName,
		SendReportEmailName,
		SendMailMergeName,
	}, RegisteredNames())
}

func TestDescriptor_DecodeKeepsOptionalDefaults(t *testing.T) {
	d, ok := Lookup(SendEmailName)
	require.True(t, ok)

	c, err := d.Decode([]byte(`{"To":"test@example.com","Subject":"Hi","Body":"Hello"}`))
	require.NoError(t, err)

	cmd, ok := c.(SendEmail)
	require.True(t, ok)
	assert.Equal(t, "test@example.com", cmd.To)
	assert.True(t, cmd.IsHTML)
}

func TestDescriptor_DecodeOverridesDefaults(t *testing.T) {
	d, _ := Lookup(DemoLogName)

	c, err := d.Decode([]byte(`{"Message":"Custom","DelaySeconds":5}`))
	require.NoError(t, err)
	assert.Equal(t, DemoLog{Message: "Custom", DelaySeconds: 5}, c)
}

func TestDescriptor_DecodeMalformed(t *testing.T) {
	d, _ := Lookup(DemoLogName)

	_, err := d.Decode([]byte(`{"Message":`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), DemoLogName)
}

func TestDescriptor_DefaultByOrigin(t *testing.T) {
	d, _ := Lookup(DemoLogName)
	assert.Equal(t, DemoLog{Message: "Manual run", DelaySeconds: 3}, d.Default(Manual))
	assert.Equal(t, DemoLog{Message: "Scheduled run", DelaySeconds: 3}, d.Default(Scheduled))

	r, _ := Lookup(SendReportEmailName)
	cmd := r.Default(Manual).(SendReportEmail)
	assert.Equal(t, "Project Status Report", cmd.ReportName)
	assert.Equal(t, "admin@example.com", cmd.Recipients)
	assert.Equal(t, "Pdf", cmd.OutputFormat)
}

func find(t *testing.T, md []Metadata, name string) Metadata {
	t.Helper()
	for _, m := range md {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("parameter %q not found", name)
	return Metadata{}
}
