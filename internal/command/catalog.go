package command

import (
	"encoding/json"
	"fmt"
)

// ParamType is the declared type of a command parameter.
type ParamType string

const (
	TypeString     ParamType = "string"
	TypeInt        ParamType = "int"
	TypeBool       ParamType = "bool"
	TypeStringList ParamType = "[]string"
	TypeStringMap  ParamType = "map[string]string"
)

// Data source hints tell a UI what kind of value a parameter expects.
const (
	HintReports        = "Reports"
	HintOutputFormats  = "Pdf,Xlsx"
	HintKeyValue       = "KeyValue"
	HintEmailTemplates = "EmailTemplates"
)

// Origin selects which name-specific default a command falls back to.
type Origin int

const (
	Manual Origin = iota
	Scheduled
)

// Param declares one parameter in declaration order. A parameter without a
// default is required.
type Param struct {
	Name       string
	Type       ParamType
	HasDefault bool
	Default    any
}

// Metadata describes a parameter to callers that build parameter blobs.
type Metadata struct {
	Name           string    `json:"name"`
	Type           ParamType `json:"type"`
	Required       bool      `json:"required"`
	Default        any       `json:"default,omitempty"`
	DataSourceHint string    `json:"data_source_hint,omitempty"`
}

// Descriptor ties a command name to its parameters and constructors.
type Descriptor struct {
	Name     string
	Params   []Param
	fallback func(Origin) Command
	decode   func([]byte) (Command, error)
}

// Default returns the command used when no parameters were supplied.
func (d Descriptor) Default(origin Origin) Command {
	return d.fallback(origin)
}

// Decode unmarshals a parameter blob on top of the command's optional
// defaults, so absent optional keys keep their default values.
func (d Descriptor) Decode(data []byte) (Command, error) {
	c, err := d.decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s parameters: %w", d.Name, err)
	}
	return c, nil
}

func describe[C Command](name string, params []Param, defaults func() C, fallback func(Origin) C) Descriptor {
	return Descriptor{
		Name:     name,
		Params:   params,
		fallback: func(o Origin) Command { return fallback(o) },
		decode: func(data []byte) (Command, error) {
			c := defaults()
			if err := json.Unmarshal(data, &c); err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}

type hintKey struct{ command, param string }

var hints = map[hintKey]string{
	{GenerateReportName, "ReportName"}:        HintReports,
	{GenerateReportName, "OutputFormat"}:      HintOutputFormats,
	{GenerateReportName, "ReportParameters"}:  HintKeyValue,
	{SendReportEmailName, "ReportName"}:       HintReports,
	{SendReportEmailName, "OutputFormat"}:     HintOutputFormats,
	{SendReportEmailName, "ReportParameters"}: HintKeyValue,
	{SendMailMergeName, "TemplateName"}:       HintEmailTemplates,
}

const (
	defaultReportName = "Project Status Report"
	defaultFormat     = "Pdf"
)

var descriptors = []Descriptor{
	describe(DemoLogName,
		[]Param{
			{Name: "Message", Type: TypeString},
			{Name: "DelaySeconds", Type: TypeInt, HasDefault: true, Default: 3},
		},
		func() DemoLog { return DemoLog{DelaySeconds: 3} },
		func(o Origin) DemoLog {
			if o == Scheduled {
				return DemoLog{Message: "Scheduled run", DelaySeconds: 3}
			}
			return DemoLog{Message: "Manual run", DelaySeconds: 3}
		},
	),
	describe(ListUsersName,
		[]Param{
			{Name: "MaxResults", Type: TypeInt, HasDefault: true, Default: 10},
		},
		func() ListUsers { return ListUsers{MaxResults: 10} },
		func(Origin) ListUsers { return ListUsers{MaxResults: 10} },
	),
	describe(GenerateReportName,
		[]Param{
			{Name: "ReportName", Type: TypeString},
			{Name: "OutputFormat", Type: TypeString, HasDefault: true, Default: defaultFormat},
			{Name: "OutputPath", Type: TypeString, HasDefault: true},
			{Name: "ReportParameters", Type: TypeStringMap, HasDefault: true},
		},
		func() GenerateReport { return GenerateReport{OutputFormat: defaultFormat} },
		func(Origin) GenerateReport {
			return GenerateReport{ReportName: defaultReportName, OutputFormat: defaultFormat}
		},
	),
	describe(SendEmailName,
		[]Param{
			{Name: "To", Type: TypeString},
			{Name: "Subject", Type: TypeString},
			{Name: "Body", Type: TypeString},
			{Name: "IsHtml", Type: TypeBool, HasDefault: true, Default: true},
			{Name: "AttachmentPaths", Type: TypeStringList, HasDefault: true},
		},
		func() SendEmail { return SendEmail{IsHTML: true} },
		func(Origin) SendEmail {
			return SendEmail{To: "", Subject: "Test", Body: "Test email", IsHTML: true}
		},
	),
	describe(SendReportEmailName,
		[]Param{
			{Name: "ReportName", Type: TypeString},
			{Name: "Recipients", Type: TypeString},
			{Name: "OutputFormat", Type: TypeString, HasDefault: true, Default: defaultFormat},
			{Name: "Subject", Type: TypeString, HasDefault: true},
			{Name: "BodyText", Type: TypeString, HasDefault: true},
			{Name: "ReportParameters", Type: TypeStringMap, HasDefault: true},
		},
		func() SendReportEmail { return SendReportEmail{OutputFormat: defaultFormat} },
		func(Origin) SendReportEmail {
			return SendReportEmail{
				ReportName:   defaultReportName,
				Recipients:   "admin@example.com",
				OutputFormat: defaultFormat,
			}
		},
	),
	describe(SendMailMergeName,
		[]Param{
			{Name: "TemplateName", Type: TypeString},
			{Name: "OrganizationFilter", Type: TypeString, HasDefault: true},
		},
		func() SendMailMerge { return SendMailMerge{} },
		func(Origin) SendMailMerge { return SendMailMerge{TemplateName: "Welcome Contact"} },
	),
}

// catalog is built once at init and only read afterwards.
var catalog = newCatalog(descriptors)

type catalogIndex struct {
	names    []string
	byName   map[string]Descriptor
	metadata map[string][]Metadata
}

func newCatalog(ds []Descriptor) catalogIndex {
	c := catalogIndex{
		names:    make([]string, 0, len(ds)),
		byName:   make(map[string]Descriptor, len(ds)),
		metadata: make(map[string][]Metadata, len(ds)),
	}
	for _, d := range ds {
		c.names = append(c.names, d.Name)
		c.byName[d.Name] = d
		md := make([]Metadata, 0, len(d.Params))
		for _, p := range d.Params {
			md = append(md, Metadata{
				Name:           p.Name,
				Type:           p.Type,
				Required:       !p.HasDefault,
				Default:        p.Default,
				DataSourceHint: hints[hintKey{d.Name, p.Name}],
			})
		}
		c.metadata[d.Name] = md
	}
	return c
}

// Lookup returns the descriptor registered under name.
func Lookup(name string) (Descriptor, bool) {
	d, ok := catalog.byName[name]
	return d, ok
}

// GetMetadata returns the ordered parameter metadata for a command type.
// The second result is false for unknown names.
func GetMetadata(name string) ([]Metadata, bool) {
	md, ok := catalog.metadata[name]
	if !ok {
		return nil, false
	}
	out := make([]Metadata, len(md))
	copy(out, md)
	return out, true
}

// RegisteredNames returns every command type name in registration order.
func RegisteredNames() []string {
	out := make([]string, len(catalog.names))
	copy(out, catalog.names)
	return out
}
