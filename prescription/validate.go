// Package prescription keeps refraction records and prints prescription sheets.
package prescription

import (
	"fmt"
	"math"
	"strings"
	"time"

	"optica/model"
)

const dateLayout = "2006-01-02"

// Default validity of a prescription after the exam.
const (
	GlassesValidityMonths  = 24
	ContactsValidityMonths = 12
)

var validBases = map[string]bool{"in": true, "out": true, "up": true, "down": true}

// quarterStep reports whether x is a multiple of 0.25 dioptres.
func quarterStep(x float64) bool {
	return math.Abs(x*4-math.Round(x*4)) < 1e-9
}

func inRange(x, lo, hi float64) bool {
	return !math.IsNaN(x) && x >= lo && x <= hi
}

func validateEye(v *model.ValidationError, field string, e *model.Eye, kind model.PrescriptionKind) {
	if !inRange(e.Sphere, -30, 30) || !quarterStep(e.Sphere) {
		v.Add(field+".sphere", "must be between -30 and +30 in 0.25 steps")
	}
	if !inRange(e.Cylinder, -10, 10) || !quarterStep(e.Cylinder) {
		v.Add(field+".cylinder", "must be between -10 and +10 in 0.25 steps")
	}
	if e.Cylinder != 0 {
		if e.Axis < 1 || e.Axis > 180 {
			v.Add(field+".axis", "must be 1-180 when a cylinder is given")
		}
	} else if e.Axis != 0 {
		v.Add(field+".axis", "must be empty without a cylinder")
	}
	if !inRange(e.Add, 0, 4) || !quarterStep(e.Add) {
		v.Add(field+".add", "must be between 0 and +4 in 0.25 steps")
	}
	if !inRange(e.Prism, 0, 10) {
		v.Add(field+".prism", "must be between 0 and 10")
	}
	e.Base = strings.ToLower(strings.TrimSpace(e.Base))
	if e.Prism > 0 {
		if !validBases[e.Base] {
			v.Add(field+".base", "must be in, out, up or down")
		}
	} else {
		e.Base = ""
	}

	if kind != model.PrescriptionContacts {
		e.BaseCurve, e.Diameter = nil, nil
		return
	}
	if e.BaseCurve == nil || !inRange(*e.BaseCurve, 7.0, 10.0) {
		v.Add(field+".baseCurve", "contacts need a base curve between 7.0 and 10.0")
	}
	if e.Diameter == nil || !inRange(*e.Diameter, 12.0, 16.0) {
		v.Add(field+".diameter", "contacts need a diameter between 12.0 and 16.0")
	}
}

// Validate normalises in, filling ExpiresOn from the exam date when empty.
func Validate(in *model.PrescriptionInput, today time.Time) error {
	in.Prescriber = strings.TrimSpace(in.Prescriber)
	in.Notes = strings.TrimSpace(in.Notes)
	in.ExpiresOn = strings.TrimSpace(in.ExpiresOn)
	v := &model.ValidationError{}

	if in.CustomerID <= 0 {
		v.Add("customerId", "required")
	}
	if in.Kind == "" {
		in.Kind = model.PrescriptionGlasses
	}
	if in.Kind != model.PrescriptionGlasses && in.Kind != model.PrescriptionContacts {
		v.Add("kind", "must be glasses or contacts")
	}

	exam, err := time.Parse(dateLayout, in.ExamDate)
	if err != nil {
		v.Add("examDate", "must be YYYY-MM-DD")
	} else if exam.After(today) {
		v.Add("examDate", "cannot be in the future")
	} else {
		if in.ExpiresOn == "" {
			months := GlassesValidityMonths
			if in.Kind == model.PrescriptionContacts {
				months = ContactsValidityMonths
			}
			in.ExpiresOn = exam.AddDate(0, months, 0).Format(dateLayout)
		}
		expires, err := time.Parse(dateLayout, in.ExpiresOn)
		if err != nil {
			v.Add("expiresOn", "must be YYYY-MM-DD")
		} else if !expires.After(exam) {
			v.Add("expiresOn", "must be after the exam date")
		}
	}

	validateEye(v, "rightEye", &in.RightEye, in.Kind)
	validateEye(v, "leftEye", &in.LeftEye, in.Kind)

	switch {
	case in.Kind == model.PrescriptionGlasses && in.PupillaryDistance == 0:
		v.Add("pupillaryDistance", "required for glasses")
	case in.PupillaryDistance != 0 && !inRange(in.PupillaryDistance, 40, 80):
		v.Add("pupillaryDistance", fmt.Sprintf("must be between 40 and 80 mm, got %g", in.PupillaryDistance))
	}
	return v.Err()
}
