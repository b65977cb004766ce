package model

// UserSettings is the per-user singleton of display preferences.
type UserSettings struct {
	ID             string  `json:"id"`
	DayStartHour   int     `json:"day_start_hour"`
	DayEndHour     int     `json:"day_end_hour"`
	TimeIncrement  int     `json:"time_increment"`
	StatsStartDate *string `json:"stats_start_date"`
	StatsEndDate   *string `json:"stats_end_date"`
}

// Settings defaults applied when a user has none stored yet.
const (
	DefaultDayStartHour  = 0
	DefaultDayEndHour    = 24
	DefaultTimeIncrement = 60
)

// DefaultSettings returns settings with the built-in defaults and no id.
func DefaultSettings() UserSettings {
	return UserSettings{
		DayStartHour:  DefaultDayStartHour,
		DayEndHour:    DefaultDayEndHour,
		TimeIncrement: DefaultTimeIncrement,
	}
}

// ValidIncrement reports whether minutes is an allowed grid increment.
func ValidIncrement(minutes int) bool {
	return minutes == 15 || minutes == 30 || minutes == 60
}
