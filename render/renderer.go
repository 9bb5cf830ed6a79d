// Package render produces printable documents: HTML sheets and their PDF form.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"optica/model"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"power": formatPower,
	"mm":    formatMillimetres,
	"dict":  dict,
}).ParseFS(templateFS, "templates/*.html"))

// PrescriptionSheet is everything printed on a prescription.
type PrescriptionSheet struct {
	ClinicName   string
	Customer     model.Customer
	Prescription model.Prescription
	PrintedOn    string
}

// CustomerName is "Last First", trimmed when either is missing.
func (s PrescriptionSheet) CustomerName() string {
	return strings.TrimSpace(s.Customer.LastName + " " + s.Customer.FirstName)
}

// RenderPrescriptionHTML renders the sheet as a standalone HTML document.
func RenderPrescriptionHTML(sheet PrescriptionSheet) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "prescription.html", sheet); err != nil {
		return nil, fmt.Errorf("failed to render prescription %d: %w", sheet.Prescription.ID, err)
	}
	return buf.Bytes(), nil
}

// formatPower prints dioptres with an explicit sign, e.g. +1.25 or -0.50.
// The output is digits and a sign only, so it bypasses escaping of "+".
func formatPower(d float64) template.HTML {
	if d == 0 {
		return "0.00"
	}
	return template.HTML(fmt.Sprintf("%+.2f", d))
}

func formatMillimetres(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}

// dict builds a map from alternating keys and values for sub-templates.
func dict(kv ...any) (map[string]any, error) {
	if len(kv)%2 != 0 {
		return nil, fmt.Errorf("dict needs key/value pairs")
	}
	m := make(map[string]any, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict key %v is not a string", kv[i])
		}
		m[k] = kv[i+1]
	}
	return m, nil
}
