// Copyright 2023 The ppacer Authors.
// Licensed under the Apache License, Version 2.0.
// See LICENSE file in the project root for full license information.

// Package notify provides a way to send external notifications about throttle
// runs.
package notify

import (
	"context"
	"io"
	"text/template"
)

// Template represents a message template. Go standard text/template.Template
// and html/template.Template satisfy this interface.
type Template interface {
	Execute(io.Writer, any) error
}

// Sender sends a notification. Usually onto an external channel of
// communication. Template should be already parsed text template which can use
// additional information from MsgData.
type Sender interface {
	Send(context.Context, Template, MsgData) error
}

// MsgData contains a run contextual information.
type MsgData struct {
	RunName     string
	RunId       string
	Discipline  string
	Iterations  int
	RunError    error
	RuntimeInfo map[string]any
}

// RunFailedTemplate is the default template for notifications about failed
// runs.
func RunFailedTemplate() *template.Template {
	s := `Run {{.RunName}} [{{.RunId}}] ({{.Discipline}}) failed after {{.Iterations}} iteration(s)
{{- if .RunError}}: {{.RunError.Error}}{{end}}`
	return template.Must(template.New("run_failed").Parse(s))
}

// MockTemplate returns a simple template which uses every field of MsgData
// except RuntimeInfo.
func MockTemplate(name string) *template.Template {
	s := `
[{{.RunName}}] [{{.RunId}}] [{{.Iterations}}]:
	Mock message!
	{{- if .RunError}}
	Got error: {{.RunError.Error}}
	{{- end}}
`
	return template.Must(template.New(name).Parse(s))
}
