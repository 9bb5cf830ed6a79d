package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optica/model"
)

func f(v float64) *float64 { return &v }

func TestRenderPrescriptionHTML(t *testing.T) {
	sheet := PrescriptionSheet{
		ClinicName: "Clear View <Optics>",
		Customer:   model.Customer{Code: "CU00007", FirstName: "Jane", LastName: "Doe"},
		Prescription: model.Prescription{
			ID:                7,
			Kind:              model.PrescriptionGlasses,
			ExamDate:          "2026-01-10",
			ExpiresOn:         "2028-01-10",
			Prescriber:        "Dr. Ito",
			RightEye:          model.Eye{Sphere: 1.25, Cylinder: -0.5, Axis: 90},
			LeftEye:           model.Eye{Sphere: -2, Add: 1.5, Prism: 1, Base: "in"},
			PupillaryDistance: 63,
		},
		PrintedOn: "2026-02-01",
	}
	out, err := RenderPrescriptionHTML(sheet)
	require.NoError(t, err)
	html := string(out)

	assert.Contains(t, html, "Clear View &lt;Optics&gt;", "clinic names are escaped")
	assert.Contains(t, html, "Doe Jane (CU00007)")
	assert.Contains(t, html, "Spectacle prescription")
	assert.Contains(t, html, "+1.25")
	assert.Contains(t, html, "-0.50")
	assert.Contains(t, html, "90&deg;")
	assert.Contains(t, html, "-2.00")
	assert.Contains(t, html, "63.0 mm")
	assert.NotContains(t, html, "Base curve")
}

func TestRenderContactsSheet(t *testing.T) {
	sheet := PrescriptionSheet{
		ClinicName: "Clear View",
		Customer:   model.Customer{FirstName: "Ana"},
		Prescription: model.Prescription{
			Kind:     model.PrescriptionContacts,
			RightEye: model.Eye{Sphere: -3, BaseCurve: f(8.6), Diameter: f(14.2)},
			LeftEye:  model.Eye{Sphere: -3.25, BaseCurve: f(8.6), Diameter: f(14.2)},
		},
	}
	out, err := RenderPrescriptionHTML(sheet)
	require.NoError(t, err)
	html := string(out)
	assert.Contains(t, html, "Contact lens prescription")
	assert.Contains(t, html, "Base curve")
	assert.Contains(t, html, "8.6")
	assert.Contains(t, html, "14.2")
	assert.Contains(t, html, "Signature")
}

func TestFormatPower(t *testing.T) {
	assert.Equal(t, "0.00", string(formatPower(0)))
	assert.Equal(t, "+0.25", string(formatPower(0.25)))
	assert.Equal(t, "-10.00", string(formatPower(-10)))
}
