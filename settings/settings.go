// Package settings serves the per-clinic configuration stored in the database.
package settings

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"optica/database"
	"optica/model"
)

const clockLayout = "15:04"

func parseClock(s string) (time.Time, bool) {
	t, err := time.Parse(clockLayout, s)
	return t, err == nil && len(s) == 5
}

// Validate normalises s and checks every field.
func Validate(s *model.ClinicSettings) error {
	s.ClinicName = strings.TrimSpace(s.ClinicName)
	s.Timezone = strings.TrimSpace(s.Timezone)
	v := &model.ValidationError{}

	open, okOpen := parseClock(s.OpenTime)
	if !okOpen {
		v.Add("openTime", "must be HH:MM")
	}
	closing, okClose := parseClock(s.CloseTime)
	if !okClose {
		v.Add("closeTime", "must be HH:MM")
	}
	if okOpen && okClose && !open.Before(closing) {
		v.Add("closeTime", "must be after the opening time")
	}

	switch {
	case s.BreakStart == "" && s.BreakEnd == "":
	case s.BreakStart == "" || s.BreakEnd == "":
		v.Add("breakStart", "set both break start and end, or neither")
	default:
		bs, okBS := parseClock(s.BreakStart)
		be, okBE := parseClock(s.BreakEnd)
		if !okBS || !okBE {
			v.Add("breakStart", "must be HH:MM")
		} else if !bs.Before(be) {
			v.Add("breakEnd", "must be after the break start")
		} else if okOpen && okClose && (bs.Before(open) || be.After(closing)) {
			v.Add("breakStart", "must lie within opening hours")
		}
	}

	if s.SlotMinutes < 5 || s.SlotMinutes > 240 || s.SlotMinutes%5 != 0 {
		v.Add("slotMinutes", "must be a multiple of 5 between 5 and 240")
	}
	if s.Timezone == "" {
		s.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		v.Add("timezone", fmt.Sprintf("unknown timezone %q", s.Timezone))
	}

	seen := map[time.Weekday]bool{}
	days := s.WorkingDays[:0]
	for _, d := range s.WorkingDays {
		if d < time.Sunday || d > time.Saturday {
			v.Add("workingDays", "days are 0 (Sunday) to 6 (Saturday)")
			continue
		}
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	s.WorkingDays = days
	if len(s.WorkingDays) == 0 {
		v.Add("workingDays", "at least one working day is required")
	}

	if math.IsNaN(s.ReorderCoefficient) || s.ReorderCoefficient < 1 || s.ReorderCoefficient > 5 {
		v.Add("reorderCoefficient", "must be between 1 and 5")
	}
	return v.Err()
}

// Today returns the current calendar date of the clinic in scope, as a UTC
// midnight. The all-tenant scope uses UTC.
func Today(ctx context.Context, db database.DBTX, scope model.Scope, now time.Time) (time.Time, error) {
	loc := time.UTC
	if !scope.All && scope.TenantID > 0 {
		s, err := database.GetClinicSettings(ctx, db, scope.TenantID)
		if err != nil {
			return time.Time{}, err
		}
		loc = s.Location()
	}
	y, m, d := now.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}
