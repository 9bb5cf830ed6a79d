// Package appointment books clinic appointments against opening hours.
package appointment

import (
	"fmt"
	"time"

	"optica/model"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// ParseClock converts HH:MM into minutes after midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse(clockLayout, s)
	if err != nil || len(s) != 5 {
		return 0, fmt.Errorf("time %q must be HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func formatClock(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

type interval struct{ start, end int }

func (a interval) overlaps(b interval) bool { return a.start < b.end && b.start < a.end }

// hours holds the clinic's opening hours for one day in minutes.
type hours struct {
	open, close int
	brk         *interval
}

func openingHours(s model.ClinicSettings) (hours, error) {
	var h hours
	var err error
	if h.open, err = ParseClock(s.OpenTime); err != nil {
		return h, err
	}
	if h.close, err = ParseClock(s.CloseTime); err != nil {
		return h, err
	}
	if s.BreakStart != "" && s.BreakEnd != "" {
		var b interval
		if b.start, err = ParseClock(s.BreakStart); err != nil {
			return h, err
		}
		if b.end, err = ParseClock(s.BreakEnd); err != nil {
			return h, err
		}
		h.brk = &b
	}
	return h, nil
}

func (h hours) workingMinutes() int {
	m := h.close - h.open
	if h.brk != nil {
		m -= h.brk.end - h.brk.start
	}
	return m
}

func appointmentInterval(a model.Appointment) (interval, bool) {
	start, err := ParseClock(a.StartTime)
	if err != nil {
		return interval{}, false
	}
	return interval{start, start + a.DurationMinutes}, true
}

// sameStaff matches two optional staff ids. Two unassigned appointments share
// the unassigned calendar.
func sameStaff(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Slots lays out the bookable slots of date. A slot is unavailable when it
// overlaps an active appointment of staff; with staff nil any active
// appointment blocks it.
func Slots(s model.ClinicSettings, date time.Time, booked []model.Appointment, staff *int64) (model.DaySchedule, error) {
	day := model.DaySchedule{Date: date.Format(dateLayout), Slots: []model.Slot{}}
	if !s.IsWorkingDay(date.Weekday()) {
		return day, nil
	}
	h, err := openingHours(s)
	if err != nil {
		return day, err
	}
	if s.SlotMinutes <= 0 {
		return day, fmt.Errorf("slot length must be positive, got %d", s.SlotMinutes)
	}
	day.WorkingDay = true
	day.WorkingMinutes = h.workingMinutes()

	var busy []interval
	for _, a := range booked {
		if !a.Status.Active() || (staff != nil && !sameStaff(a.StaffUserID, staff)) {
			continue
		}
		if iv, ok := appointmentInterval(a); ok {
			busy = append(busy, iv)
		}
	}

	for start := h.open; start+s.SlotMinutes <= h.close; start += s.SlotMinutes {
		slot := interval{start, start + s.SlotMinutes}
		if h.brk != nil && slot.overlaps(*h.brk) {
			continue
		}
		available := true
		for _, b := range busy {
			if slot.overlaps(b) {
				available = false
				break
			}
		}
		day.Slots = append(day.Slots, model.Slot{
			Start:     formatClock(slot.start),
			End:       formatClock(slot.end),
			Available: available,
		})
	}
	return day, nil
}

// ValidateInput normalises in and checks it against the clinic's hours.
func ValidateInput(in *model.AppointmentInput, s model.ClinicSettings) error {
	v := &model.ValidationError{}
	if in.CustomerID <= 0 {
		v.Add("customerId", "required")
	}
	if in.Kind == "" {
		in.Kind = model.KindEyeExam
	}
	if !in.Kind.Valid() {
		v.Add("kind", "must be eye_exam, contact_fitting, pickup, repair or other")
	}
	if in.DurationMinutes == 0 {
		in.DurationMinutes = s.SlotMinutes
	}
	if in.DurationMinutes <= 0 || in.DurationMinutes%5 != 0 {
		v.Add("durationMinutes", "must be a positive multiple of 5")
	}

	date, err := time.Parse(dateLayout, in.Date)
	if err != nil {
		v.Add("date", "must be YYYY-MM-DD")
	}
	start, err := ParseClock(in.StartTime)
	if err != nil {
		v.Add("startTime", "must be HH:MM")
	}
	if len(v.Fields) > 0 {
		return v.Err()
	}

	if !s.IsWorkingDay(date.Weekday()) {
		v.Add("date", fmt.Sprintf("the clinic is closed on %s", date.Weekday()))
		return v.Err()
	}
	h, err := openingHours(s)
	if err != nil {
		return fmt.Errorf("clinic settings are invalid: %w", err)
	}
	iv := interval{start, start + in.DurationMinutes}
	if iv.start < h.open || iv.end > h.close {
		v.Add("startTime", fmt.Sprintf("must be within opening hours %s-%s", s.OpenTime, s.CloseTime))
	} else if h.brk != nil && iv.overlaps(*h.brk) {
		v.Add("startTime", fmt.Sprintf("overlaps the break %s-%s", s.BreakStart, s.BreakEnd))
	}
	return v.Err()
}

// CheckOverlap reports a conflict when in collides with an active appointment
// of the same staff member.
func CheckOverlap(in model.AppointmentInput, existing []model.Appointment) error {
	start, err := ParseClock(in.StartTime)
	if err != nil {
		return err
	}
	iv := interval{start, start + in.DurationMinutes}
	for _, a := range existing {
		if !a.Status.Active() || a.Date != in.Date || !sameStaff(a.StaffUserID, in.StaffUserID) {
			continue
		}
		other, ok := appointmentInterval(a)
		if ok && iv.overlaps(other) {
			return model.Conflictf("overlaps appointment %d at %s", a.ID, a.StartTime)
		}
	}
	return nil
}
