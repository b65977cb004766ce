package timecalc

import (
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const (
	// SlotHours is the length of one slot in hours.
	SlotHours = 0.25
	// SlotsPerDay is the number of quarter hours in a day.
	SlotsPerDay = 96
	// LastTick is the offset of the final quarter hour of a day.
	LastTick = 23.75
	// DateLayout is the calendar-day format used for slot dates.
	DateLayout = "2006-01-02"
)

// GenerateID creates a unique id based on timestamp and random suffix. It is
// used for records that have not been confirmed by the store yet.
func GenerateID(t time.Time) string {
	const chars = "abcdefghijklmnopqrstuvwxyz0123456789"
	suffix := make([]byte, 5)
	for i := range suffix {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		suffix[i] = chars[n.Int64()]
	}
	return fmt.Sprintf("%s-%s", t.Format("20060102-150405"), string(suffix))
}

// Snap rounds an hour offset to the nearest quarter hour.
func Snap(h float64) float64 {
	return math.Round(h*4) / 4
}

// ValidTick reports whether h is a quarter-hour offset inside a day.
func ValidTick(h float64) bool {
	return h >= 0 && h <= LastTick && Snap(h) == h
}

// ValidBoundary reports whether h can start or end a half-open range.
func ValidBoundary(h float64) bool {
	return h >= 0 && h <= 24 && Snap(h) == h
}

// Ticks expands the half-open range [start, end) into quarter-hour offsets.
func Ticks(start, end float64) []float64 {
	var out []float64
	for t := start; t < end; t += SlotHours {
		out = append(out, t)
	}
	return out
}

// TickAt returns the quarter hour containing t.
func TickAt(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute()/15)*SlotHours
}

// FormatTick formats an hour offset as HH:MM.
func FormatTick(h float64) string {
	hours := int(math.Floor(h))
	minutes := int(math.Round((h - float64(hours)) * 60))
	return fmt.Sprintf("%02d:%02d", hours, minutes)
}

// ParseTick parses "HH:MM" or a decimal hour ("9.25") and snaps the result
// to the nearest quarter hour. 24:00 is accepted as an end boundary.
func ParseTick(s string) (float64, error) {
	s = strings.TrimSpace(s)
	var h float64
	if hh, mm, ok := strings.Cut(s, ":"); ok {
		hours, err := strconv.Atoi(hh)
		if err != nil {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		minutes, err := strconv.Atoi(mm)
		if err != nil || minutes < 0 || minutes > 59 {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		h = float64(hours) + float64(minutes)/60
	} else {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid time %q", s)
		}
		h = v
	}
	h = Snap(h)
	if !ValidBoundary(h) {
		return 0, fmt.Errorf("time %q is outside the day", s)
	}
	return h, nil
}

// FormatDuration formats seconds as a human-readable string like "1h 40m" or "45m" or "30s".
func FormatDuration(seconds int64) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%ds", s)
}

// FormatHours formats fractional hours like FormatDuration.
func FormatHours(hours float64) string {
	if hours == 0 {
		return "0m"
	}
	return FormatDuration(int64(math.Round(hours * 3600)))
}

// WeekRange returns the dates of the Monday and Sunday of the ISO week
// containing t.
func WeekRange(t time.Time) (from, to string) {
	offset := (int(t.Weekday()) + 6) % 7
	monday := StartOfDay(t).AddDate(0, 0, -offset)
	return DateString(monday), DateString(monday.AddDate(0, 0, 6))
}

// ISOWeekLabel returns a label like "2026-W09".
func ISOWeekLabel(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// StartOfDay returns 00:00:00 of the same day.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDay reports whether two times fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// DateString formats t as a slot date.
func DateString(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a slot date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

// ValidDate reports whether s is a well-formed slot date.
func ValidDate(s string) bool {
	_, err := time.Parse(DateLayout, s)
	return err == nil
}
