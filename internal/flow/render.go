package flow

import (
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/BTreeMap/LeadPipe/internal/models"
)

// templates caches parsed reply templates keyed by their source text.
type templates map[string]*template.Template

// add parses src once. Plain strings without actions are skipped.
func (t templates) add(src string) error {
	if !strings.Contains(src, "{{") {
		return nil
	}
	if _, ok := t[src]; ok {
		return nil
	}
	tmpl, err := template.New("reply").Option("missingkey=zero").Parse(src)
	if err != nil {
		return fmt.Errorf("invalid template %q: %w", src, err)
	}
	t[src] = tmpl
	return nil
}

// render substitutes data into src. Missing keys render as empty text.
func (t templates) render(src string, data map[string]string) string {
	tmpl, ok := t[src]
	if !ok {
		return src
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		slog.Warn("templates.render: execution failed, sending raw text", "error", err)
		return src
	}
	return strings.ReplaceAll(b.String(), "<no value>", "")
}

// outbound renders the textual parts of a message.
func (t templates) outbound(m models.Outbound, data map[string]string) models.Outbound {
	m.Body = t.render(m.Body, data)
	m.Caption = t.render(m.Caption, data)
	m.Address = t.render(m.Address, data)
	return m
}
