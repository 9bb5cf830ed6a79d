package model

import "time"

type AppointmentKind string

const (
	KindEyeExam        AppointmentKind = "eye_exam"
	KindContactFitting AppointmentKind = "contact_fitting"
	KindPickup         AppointmentKind = "pickup"
	KindRepair         AppointmentKind = "repair"
	KindOther          AppointmentKind = "other"
)

func (k AppointmentKind) Valid() bool {
	switch k {
	case KindEyeExam, KindContactFitting, KindPickup, KindRepair, KindOther:
		return true
	}
	return false
}

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no_show"
)

var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusScheduled: {StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
}

// CanTransition reports whether an appointment may move from s to next.
func (s AppointmentStatus) CanTransition(next AppointmentStatus) bool {
	for _, allowed := range appointmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Active appointments occupy their time slot.
func (s AppointmentStatus) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed || s == StatusCompleted
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Appointment dates are YYYY-MM-DD and times HH:MM in the clinic's timezone.
type Appointment struct {
	ID              int64             `db:"id" json:"id"`
	TenantID        int64             `db:"tenant_id" json:"tenantId"`
	CustomerID      int64             `db:"customer_id" json:"customerId"`
	StaffUserID     *int64            `db:"staff_user_id" json:"staffUserId,omitempty"`
	Date            string            `db:"appointment_date" json:"date"`
	StartTime       string            `db:"start_time" json:"startTime"`
	DurationMinutes int               `db:"duration_minutes" json:"durationMinutes"`
	Kind            AppointmentKind   `db:"kind" json:"kind"`
	Status          AppointmentStatus `db:"status" json:"status"`
	Notes           string            `db:"notes" json:"notes"`
	CreatedAt       time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updatedAt"`

	CustomerName string `db:"customer_name" json:"customerName,omitempty"`
}

type AppointmentInput struct {
	CustomerID      int64           `json:"customerId"`
	StaffUserID     *int64          `json:"staffUserId"`
	Date            string          `json:"date"`
	StartTime       string          `json:"startTime"`
	DurationMinutes int             `json:"durationMinutes"`
	Kind            AppointmentKind `json:"kind"`
	Notes           string          `json:"notes"`
}

type AppointmentFilter struct {
	From       string
	To         string
	StaffID    *int64
	CustomerID int64
	Status     AppointmentStatus
}

// Slot is one bookable interval of a calendar day.
type Slot struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Available bool   `json:"available"`
}

type DaySchedule struct {
	Date           string `json:"date"`
	WorkingDay     bool   `json:"workingDay"`
	WorkingMinutes int    `json:"workingMinutes"`
	Slots          []Slot `json:"slots"`
}

type ClinicSettings struct {
	TenantID           int64          `json:"tenantId"`
	ClinicName         string         `json:"clinicName"`
	OpenTime           string         `json:"openTime"`
	CloseTime          string         `json:"closeTime"`
	BreakStart         string         `json:"breakStart"`
	BreakEnd           string         `json:"breakEnd"`
	SlotMinutes        int            `json:"slotMinutes"`
	WorkingDays        []time.Weekday `json:"workingDays"`
	Timezone           string         `json:"timezone"`
	ReorderCoefficient float64        `json:"reorderCoefficient"`
}

// DefaultClinicSettings is used until a clinic saves its own.
func DefaultClinicSettings(tenantID int64) ClinicSettings {
	return ClinicSettings{
		TenantID:    tenantID,
		OpenTime:    "09:00",
		CloseTime:   "18:00",
		SlotMinutes: 30,
		WorkingDays: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday,
		},
		Timezone:           "UTC",
		ReorderCoefficient: 1.5,
	}
}

// IsWorkingDay reports whether d is one of the clinic's opening weekdays.
func (c ClinicSettings) IsWorkingDay(d time.Weekday) bool {
	for _, w := range c.WorkingDays {
		if w == d {
			return true
		}
	}
	return false
}

// Location resolves the clinic timezone, falling back to UTC.
func (c ClinicSettings) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
