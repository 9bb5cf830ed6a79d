package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"optica/model"
)

type settingsRow struct {
	TenantID           int64   `db:"tenant_id"`
	ClinicName         string  `db:"clinic_name"`
	OpenTime           string  `db:"open_time"`
	CloseTime          string  `db:"close_time"`
	BreakStart         string  `db:"break_start"`
	BreakEnd           string  `db:"break_end"`
	SlotMinutes        int     `db:"slot_minutes"`
	WorkingDays        string  `db:"working_days"`
	Timezone           string  `db:"timezone"`
	ReorderCoefficient float64 `db:"reorder_coefficient"`
}

// encodeWeekdays stores weekdays as a comma separated list of 0 (Sunday) .. 6.
func encodeWeekdays(days []time.Weekday) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(int(d))
	}
	return strings.Join(parts, ",")
}

func decodeWeekdays(s string) []time.Weekday {
	days := []time.Weekday{}
	for _, p := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 || n > 6 {
			continue
		}
		days = append(days, time.Weekday(n))
	}
	return days
}

// GetClinicSettings returns the saved settings of a tenant or the defaults.
func GetClinicSettings(ctx context.Context, db DBTX, tenantID int64) (model.ClinicSettings, error) {
	var row settingsRow
	err := db.GetContext(ctx, &row, db.Rebind(`
		SELECT tenant_id, clinic_name, open_time, close_time, break_start, break_end,
		       slot_minutes, working_days, timezone, reorder_coefficient
		FROM clinic_settings WHERE tenant_id = ?`), tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		s := model.DefaultClinicSettings(tenantID)
		if t, terr := GetTenant(ctx, db, tenantID); terr == nil {
			s.ClinicName = t.Name
		}
		return s, nil
	}
	if err != nil {
		return model.ClinicSettings{}, fmt.Errorf("GetClinicSettings (Tenant: %d) failed: %w", tenantID, err)
	}
	return model.ClinicSettings{
		TenantID:           row.TenantID,
		ClinicName:         row.ClinicName,
		OpenTime:           row.OpenTime,
		CloseTime:          row.CloseTime,
		BreakStart:         row.BreakStart,
		BreakEnd:           row.BreakEnd,
		SlotMinutes:        row.SlotMinutes,
		WorkingDays:        decodeWeekdays(row.WorkingDays),
		Timezone:           row.Timezone,
		ReorderCoefficient: row.ReorderCoefficient,
	}, nil
}

func SaveClinicSettings(ctx context.Context, db DBTX, s model.ClinicSettings) error {
	_, err := db.ExecContext(ctx, db.Rebind(`
		INSERT INTO clinic_settings (tenant_id, clinic_name, open_time, close_time, break_start, break_end,
			slot_minutes, working_days, timezone, reorder_coefficient)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id) DO UPDATE SET
			clinic_name = excluded.clinic_name,
			open_time = excluded.open_time,
			close_time = excluded.close_time,
			break_start = excluded.break_start,
			break_end = excluded.break_end,
			slot_minutes = excluded.slot_minutes,
			working_days = excluded.working_days,
			timezone = excluded.timezone,
			reorder_coefficient = excluded.reorder_coefficient`),
		s.TenantID, s.ClinicName, s.OpenTime, s.CloseTime, s.BreakStart, s.BreakEnd,
		s.SlotMinutes, encodeWeekdays(s.WorkingDays), s.Timezone, s.ReorderCoefficient)
	if err != nil {
		return fmt.Errorf("SaveClinicSettings (Tenant: %d) failed: %w", s.TenantID, err)
	}
	return nil
}
