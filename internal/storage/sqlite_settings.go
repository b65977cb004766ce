package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/Tiliavir/quarter-tracker/internal/model"
)

type sqliteSettingsRepo struct {
	db     *sql.DB
	userID string
}

func (r *sqliteSettingsRepo) GetSettings(ctx context.Context) (model.UserSettings, error) {
	query := `
		SELECT id, day_start_hour, day_end_hour, time_increment, stats_start_date, stats_end_date
		FROM user_settings WHERE user_id = ?
	`
	var (
		s          model.UserSettings
		start, end sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, r.userID).Scan(
		&s.ID, &s.DayStartHour, &s.DayEndHour, &s.TimeIncrement, &start, &end,
	)
	if err == sql.ErrNoRows {
		return model.UserSettings{}, fmt.Errorf("settings: %w", ErrNotFound)
	}
	if err != nil {
		return model.UserSettings{}, fmt.Errorf("get settings: %w", err)
	}
	if start.Valid {
		s.StatsStartDate = model.StringPtr(start.String)
	}
	if end.Valid {
		s.StatsEndDate = model.StringPtr(end.String)
	}
	return s, nil
}

func (r *sqliteSettingsRepo) InsertSettings(ctx context.Context, s model.UserSettings) (model.UserSettings, error) {
	s.ID = uuid.NewString()
	query := `
		INSERT INTO user_settings (id, user_id, day_start_hour, day_end_hour, time_increment, stats_start_date, stats_end_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, r.userID, s.DayStartHour, s.DayEndHour, s.TimeIncrement, s.StatsStartDate, s.StatsEndDate,
	)
	if isSQLiteUnique(err) {
		return model.UserSettings{}, fmt.Errorf("insert settings: %w", ErrDuplicate)
	}
	if err != nil {
		return model.UserSettings{}, fmt.Errorf("insert settings: %w", err)
	}
	return s, nil
}

func (r *sqliteSettingsRepo) UpdateSettings(ctx context.Context, id string, patch SettingsPatch) (model.UserSettings, error) {
	current, err := r.GetSettings(ctx)
	if err != nil {
		return model.UserSettings{}, err
	}
	if current.ID != id {
		return model.UserSettings{}, fmt.Errorf("update settings %s: %w", id, ErrNotFound)
	}
	s := patch.Apply(current)

	query := `
		UPDATE user_settings
		SET day_start_hour = ?, day_end_hour = ?, time_increment = ?, stats_start_date = ?, stats_end_date = ?
		WHERE id = ? AND user_id = ?
	`
	_, err = r.db.ExecContext(ctx, query,
		s.DayStartHour, s.DayEndHour, s.TimeIncrement, s.StatsStartDate, s.StatsEndDate,
		id, r.userID,
	)
	if err != nil {
		return model.UserSettings{}, fmt.Errorf("update settings: %w", err)
	}
	return s, nil
}
