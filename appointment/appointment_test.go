package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optica/database"
	"optica/model"
	"optica/testutil"
)

var (
	monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	sunday = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
)

func clinic() model.ClinicSettings {
	s := model.DefaultClinicSettings(1)
	s.OpenTime, s.CloseTime = "09:00", "12:00"
	s.BreakStart, s.BreakEnd = "10:30", "11:00"
	s.SlotMinutes = 30
	return s
}

func ptr(v int64) *int64 { return &v }

func TestSlots(t *testing.T) {
	day, err := Slots(clinic(), monday, nil, nil)
	require.NoError(t, err)
	assert.True(t, day.WorkingDay)
	assert.Equal(t, 150, day.WorkingMinutes)

	starts := make([]string, 0, len(day.Slots))
	for _, s := range day.Slots {
		starts = append(starts, s.Start)
		assert.True(t, s.Available)
	}
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "11:00", "11:30"}, starts)
	assert.Equal(t, "12:00", day.Slots[len(day.Slots)-1].End)
}

func TestSlotsClosedDay(t *testing.T) {
	day, err := Slots(clinic(), sunday, nil, nil)
	require.NoError(t, err)
	assert.False(t, day.WorkingDay)
	assert.Empty(t, day.Slots)
	assert.Zero(t, day.WorkingMinutes)
}

func TestSlotsDropsTrailingPartialSlot(t *testing.T) {
	s := clinic()
	s.BreakStart, s.BreakEnd = "", ""
	s.SlotMinutes = 45
	day, err := Slots(s, monday, nil, nil)
	require.NoError(t, err)
	require.Len(t, day.Slots, 4)
	assert.Equal(t, "11:15", day.Slots[3].Start)
	assert.Equal(t, "12:00", day.Slots[3].End)
}

func TestSlotsAvailability(t *testing.T) {
	booked := []model.Appointment{
		{ID: 1, Date: "2026-03-02", StartTime: "09:15", DurationMinutes: 30, Status: model.StatusScheduled, StaffUserID: ptr(7)},
		{ID: 2, Date: "2026-03-02", StartTime: "11:00", DurationMinutes: 30, Status: model.StatusCancelled, StaffUserID: ptr(7)},
		{ID: 3, Date: "2026-03-02", StartTime: "11:30", DurationMinutes: 30, Status: model.StatusConfirmed, StaffUserID: ptr(8)},
	}
	available := func(day model.DaySchedule) map[string]bool {
		out := map[string]bool{}
		for _, s := range day.Slots {
			out[s.Start] = s.Available
		}
		return out
	}

	day, err := Slots(clinic(), monday, booked, ptr(7))
	require.NoError(t, err)
	got := available(day)
	assert.False(t, got["09:00"])
	assert.False(t, got["09:30"])
	assert.True(t, got["10:00"])
	assert.True(t, got["11:00"], "cancelled appointments free their slot")
	assert.True(t, got["11:30"], "other staff members do not block")

	day, err = Slots(clinic(), monday, booked, nil)
	require.NoError(t, err)
	assert.False(t, available(day)["11:30"], "without staff any active appointment blocks")
}

func TestValidateInput(t *testing.T) {
	base := func() model.AppointmentInput {
		return model.AppointmentInput{CustomerID: 1, Date: "2026-03-02", StartTime: "09:00"}
	}
	tests := []struct {
		name   string
		mutate func(*model.AppointmentInput)
		field  string
	}{
		{"ok", func(*model.AppointmentInput) {}, ""},
		{"closed day", func(in *model.AppointmentInput) { in.Date = "2026-03-01" }, "date"},
		{"bad date", func(in *model.AppointmentInput) { in.Date = "2026-3-2" }, "date"},
		{"before opening", func(in *model.AppointmentInput) { in.StartTime = "08:30" }, "startTime"},
		{"runs past closing", func(in *model.AppointmentInput) { in.StartTime = "11:45" }, "startTime"},
		{"overlaps break", func(in *model.AppointmentInput) { in.StartTime = "10:15" }, "startTime"},
		{"odd duration", func(in *model.AppointmentInput) { in.DurationMinutes = 22 }, "durationMinutes"},
		{"negative duration", func(in *model.AppointmentInput) { in.DurationMinutes = -5 }, "durationMinutes"},
		{"bad kind", func(in *model.AppointmentInput) { in.Kind = "surgery" }, "kind"},
		{"no customer", func(in *model.AppointmentInput) { in.CustomerID = 0 }, "customerId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base()
			tt.mutate(&in)
			err := ValidateInput(&in, clinic())
			if tt.field == "" {
				require.NoError(t, err)
				assert.Equal(t, 30, in.DurationMinutes)
				assert.Equal(t, model.KindEyeExam, in.Kind)
				return
			}
			var verr *model.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestCheckOverlap(t *testing.T) {
	existing := []model.Appointment{
		{ID: 1, Date: "2026-03-02", StartTime: "09:00", DurationMinutes: 30, Status: model.StatusScheduled},
		{ID: 2, Date: "2026-03-02", StartTime: "10:00", DurationMinutes: 30, Status: model.StatusScheduled, StaffUserID: ptr(5)},
	}
	in := model.AppointmentInput{Date: "2026-03-02", StartTime: "09:15", DurationMinutes: 30}
	assert.ErrorIs(t, CheckOverlap(in, existing), model.ErrConflict, "unassigned appointments collide")

	in.StaffUserID = ptr(5)
	assert.NoError(t, CheckOverlap(in, existing))

	in.StartTime = "09:45"
	assert.ErrorIs(t, CheckOverlap(in, existing), model.ErrConflict)

	in.StartTime = "10:30"
	assert.NoError(t, CheckOverlap(in, existing), "back to back is fine")
}

func TestBookAndReschedule(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	a := testutil.Tenant(t, db, "alpha")
	b := testutil.Tenant(t, db, "beta")
	staff := testutil.User(t, db, a.ID, "opt@alpha.test", model.RoleStaff, false)
	foreignStaff := testutil.User(t, db, b.ID, "opt@beta.test", model.RoleStaff, false)
	cust := testutil.Customer(t, db, a.ID, "Jane", "Doe")
	foreign := testutil.Customer(t, db, b.ID, "Ana", "Silva")

	in := model.AppointmentInput{CustomerID: cust.ID, StaffUserID: &staff.ID, Date: "2026-03-02", StartTime: "09:00"}
	first, err := Book(ctx, db, a.ID, in)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, first.Status)
	assert.Equal(t, 30, first.DurationMinutes)

	in.StartTime = "09:15"
	_, err = Book(ctx, db, a.ID, in)
	assert.ErrorIs(t, err, model.ErrConflict)

	unassigned := model.AppointmentInput{CustomerID: cust.ID, Date: "2026-03-02", StartTime: "09:15"}
	_, err = Book(ctx, db, a.ID, unassigned)
	assert.NoError(t, err, "a different calendar than the staff member's")

	var verr *model.ValidationError
	_, err = Book(ctx, db, a.ID, model.AppointmentInput{CustomerID: foreign.ID, Date: "2026-03-02", StartTime: "11:00"})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "customerId")

	_, err = Book(ctx, db, a.ID, model.AppointmentInput{CustomerID: cust.ID, StaffUserID: &foreignStaff.ID, Date: "2026-03-02", StartTime: "11:00"})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "staffUserId")

	moved, err := Reschedule(ctx, db, a.ID, first.ID, model.AppointmentInput{
		CustomerID: cust.ID, StaffUserID: &staff.ID, Date: "2026-03-02", StartTime: "09:10", DurationMinutes: 20,
	})
	require.NoError(t, err, "an appointment does not conflict with itself")
	assert.Equal(t, "09:10", moved.StartTime)

	_, err = Reschedule(ctx, db, b.ID, first.ID, in)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestChangeStatus(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	a := testutil.Tenant(t, db, "alpha")
	cust := testutil.Customer(t, db, a.ID, "Jane", "Doe")

	appt, err := Book(ctx, db, a.ID, model.AppointmentInput{CustomerID: cust.ID, Date: "2026-03-02", StartTime: "09:00"})
	require.NoError(t, err)

	appt, err = ChangeStatus(ctx, db, a.ID, appt.ID, model.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, appt.Status)

	_, err = ChangeStatus(ctx, db, a.ID, appt.ID, model.StatusScheduled)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	appt, err = ChangeStatus(ctx, db, a.ID, appt.ID, model.StatusCancelled)
	require.NoError(t, err)

	_, err = ChangeStatus(ctx, db, a.ID, appt.ID, model.StatusCompleted)
	assert.ErrorIs(t, err, model.ErrInvalidTransition, "cancelled is final")

	_, err = Reschedule(ctx, db, a.ID, appt.ID, model.AppointmentInput{CustomerID: cust.ID, Date: "2026-03-02", StartTime: "10:00"})
	assert.ErrorIs(t, err, model.ErrConflict)

	again, err := Book(ctx, db, a.ID, model.AppointmentInput{CustomerID: cust.ID, Date: "2026-03-02", StartTime: "09:00"})
	require.NoError(t, err, "a cancelled appointment frees its slot")

	booked, err := database.ListActiveAppointmentsOnDate(ctx, db, a.ID, "2026-03-02", 0)
	require.NoError(t, err)
	require.Len(t, booked, 1)
	assert.Equal(t, again.ID, booked[0].ID)
}
