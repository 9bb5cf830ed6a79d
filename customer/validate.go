// Package customer serves customer records, their CSV import/export and history.
package customer

import (
	"strings"
	"time"

	"optica/model"
)

const dateLayout = "2006-01-02"

// Normalize trims every field of in.
func Normalize(in *model.CustomerInput) {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.BirthDate = strings.TrimSpace(in.BirthDate)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Address = strings.TrimSpace(in.Address)
	in.Notes = strings.TrimSpace(in.Notes)
}

// Validate normalises in and checks it against today's date.
func Validate(in *model.CustomerInput, today time.Time) error {
	Normalize(in)
	v := &model.ValidationError{}
	if in.FirstName == "" && in.LastName == "" {
		v.Add("lastName", "first or last name is required")
	}
	if in.Email != "" && !validEmail(in.Email) {
		v.Add("email", "must be a valid email address")
	}
	if in.BirthDate != "" {
		d, err := time.Parse(dateLayout, in.BirthDate)
		if err != nil {
			v.Add("birthDate", "must be YYYY-MM-DD")
		} else if d.After(today) {
			v.Add("birthDate", "cannot be in the future")
		}
	}
	return v.Err()
}

func validEmail(s string) bool {
	at := strings.LastIndex(s, "@")
	if at <= 0 || at == len(s)-1 {
		return false
	}
	domain := s[at+1:]
	dot := strings.Index(domain, ".")
	return dot > 0 && dot < len(domain)-1 && !strings.ContainsAny(s, " \t")
}
