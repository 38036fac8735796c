// Package command holds the fixed catalog of typed commands that jobflow can
// dispatch, together with their parameter metadata.
//
// JSON keys of every command match its parameter names, so a stored
// parameter blob such as {"Message":"hi","DelaySeconds":5} decodes directly
// into DemoLog.
package command

// Command is a named, immutable unit of work.
type Command interface {
	CommandName() string
}

const (
	DemoLogName         = "DemoLogCommand"
	ListUsersName       = "ListUsersCommand"
	GenerateReportName  = "GenerateReportCommand"
	SendEmailName       = "SendEmailCommand"
	SendReportEmailName = "SendReportEmailCommand"
	SendMailMergeName   = "SendMailMergeCommand"
)

// DemoLog logs a message and then ticks once per second for DelaySeconds.
type DemoLog struct {
	Message      string `json:"Message"`
	DelaySeconds int    `json:"DelaySeconds"`
}

func (DemoLog) CommandName() string { return DemoLogName }

// ListUsers logs up to MaxResults user names.
type ListUsers struct {
	MaxResults int `json:"MaxResults"`
}

func (ListUsers) CommandName() string { return ListUsersName }

// GenerateReport exports a named report to disk.
type GenerateReport struct {
	ReportName       string            `json:"ReportName"`
	OutputFormat     string            `json:"OutputFormat"`
	OutputPath       string            `json:"OutputPath,omitempty"`
	ReportParameters map[string]string `json:"ReportParameters,omitempty"`
}

func (GenerateReport) CommandName() string { return GenerateReportName }

type SendEmail struct {
	To              string   `json:"To"`
	Subject         string   `json:"Subject"`
	Body            string   `json:"Body"`
	IsHTML          bool     `json:"IsHtml"`
	AttachmentPaths []string `json:"AttachmentPaths,omitempty"`
}

func (SendEmail) CommandName() string { return SendEmailName }

// SendReportEmail exports a report and mails it to each ';'-separated
// recipient.
type SendReportEmail struct {
	ReportName       string            `json:"ReportName"`
	Recipients       string            `json:"Recipients"`
	OutputFormat     string            `json:"OutputFormat"`
	Subject          string            `json:"Subject,omitempty"`
	BodyText         string            `json:"BodyText,omitempty"`
	ReportParameters map[string]string `json:"ReportParameters,omitempty"`
}

func (SendReportEmail) CommandName() string { return SendReportEmailName }

type SendMailMerge struct {
	TemplateName       string `json:"TemplateName"`
	OrganizationFilter string `json:"OrganizationFilter,omitempty"`
}

func (SendMailMerge) CommandName() string { return SendMailMergeName }
