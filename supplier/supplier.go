// Package supplier serves the suppliers products are bought from.
package supplier

import (
	"net/mail"
	"strings"

	"optica/model"
)

const maxLeadTimeDays = 365

// Validate trims s and checks the editable fields.
func Validate(s *model.Supplier) error {
	s.Code = strings.ToUpper(strings.TrimSpace(s.Code))
	s.Name = strings.TrimSpace(s.Name)
	s.ContactName = strings.TrimSpace(s.ContactName)
	s.Phone = strings.TrimSpace(s.Phone)
	s.Email = strings.ToLower(strings.TrimSpace(s.Email))
	s.Address = strings.TrimSpace(s.Address)
	s.Notes = strings.TrimSpace(s.Notes)

	v := &model.ValidationError{}
	if s.Name == "" {
		v.Add("name", "required")
	}
	if s.LeadTimeDays < 0 || s.LeadTimeDays > maxLeadTimeDays {
		v.Add("leadTimeDays", "must be between 0 and 365")
	}
	if s.Email != "" {
		if a, err := mail.ParseAddress(s.Email); err != nil || a.Address != s.Email {
			v.Add("email", "must be a valid email address")
		}
	}
	return v.Err()
}
