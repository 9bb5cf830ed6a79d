package settings

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

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.ClinicSettings)
		field  string
	}{
		{"defaults", func(*model.ClinicSettings) {}, ""},
		{"with break", func(s *model.ClinicSettings) { s.BreakStart, s.BreakEnd = "12:00", "13:00" }, ""},
		{"bad open", func(s *model.ClinicSettings) { s.OpenTime = "9:00" }, "openTime"},
		{"close before open", func(s *model.ClinicSettings) { s.CloseTime = "08:00" }, "closeTime"},
		{"half a break", func(s *model.ClinicSettings) { s.BreakStart = "12:00" }, "breakStart"},
		{"inverted break", func(s *model.ClinicSettings) { s.BreakStart, s.BreakEnd = "13:00", "12:00" }, "breakEnd"},
		{"break outside hours", func(s *model.ClinicSettings) { s.BreakStart, s.BreakEnd = "18:00", "19:00" }, "breakStart"},
		{"slot not multiple of 5", func(s *model.ClinicSettings) { s.SlotMinutes = 22 }, "slotMinutes"},
		{"slot too long", func(s *model.ClinicSettings) { s.SlotMinutes = 245 }, "slotMinutes"},
		{"bad timezone", func(s *model.ClinicSettings) { s.Timezone = "Mars/Olympus" }, "timezone"},
		{"no working days", func(s *model.ClinicSettings) { s.WorkingDays = nil }, "workingDays"},
		{"weekday out of range", func(s *model.ClinicSettings) { s.WorkingDays = []time.Weekday{9} }, "workingDays"},
		{"coefficient too low", func(s *model.ClinicSettings) { s.ReorderCoefficient = 0.5 }, "reorderCoefficient"},
		{"coefficient too high", func(s *model.ClinicSettings) { s.ReorderCoefficient = 5.5 }, "reorderCoefficient"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := model.DefaultClinicSettings(1)
			tt.mutate(&s)
			err := Validate(&s)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *model.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
		})
	}
}

func TestValidateDeduplicatesDays(t *testing.T) {
	s := model.DefaultClinicSettings(1)
	s.WorkingDays = []time.Weekday{time.Monday, time.Monday, time.Friday}
	s.Timezone = ""
	require.NoError(t, Validate(&s))
	assert.Equal(t, []time.Weekday{time.Monday, time.Friday}, s.WorkingDays)
	assert.Equal(t, "UTC", s.Timezone)
}

func TestToday(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	tn := testutil.Tenant(t, db, "tokyo")

	s := model.DefaultClinicSettings(tn.ID)
	s.Timezone = "Asia/Tokyo"
	require.NoError(t, database.SaveClinicSettings(ctx, db, s))

	now := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
	got, err := Today(ctx, db, model.TenantScope(tn.ID), now)
	require.NoError(t, err)
	assert.Equal(t, "2026-05-02", got.Format("2006-01-02"))

	got, err = Today(ctx, db, model.Scope{All: true}, now)
	require.NoError(t, err)
	assert.Equal(t, "2026-05-01", got.Format("2006-01-02"))
}
