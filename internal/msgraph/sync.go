package msgraph

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/mutation"
	"github.com/Tiliavir/quarter-tracker/internal/timecalc"
)

// Claimer is the part of the mutation engine a sync needs.
type Claimer interface {
	Claim(ctx context.Context, projectID, date string, start, end float64, policy mutation.ClaimPolicy, confirm mutation.Confirmer) mutation.Result
	UpdateNote(ctx context.Context, id model.SlotID, text string) mutation.Result
}

// SyncResult holds counters for a sync operation.
type SyncResult struct {
	Imported  int
	Unchanged int
	Skipped   int
	Errors    int
}

// SyncOptions configures a sync run.
type SyncOptions struct {
	ProjectID string
	Timezone  string
	DryRun    bool
	// Out receives one progress line per planned range.
	Out io.Writer
}

// Range is a quarter-hour range on one date derived from an event.
type Range struct {
	EventID string
	Subject string
	Date    string
	Start   float64
	End     float64
}

func (r Range) String() string {
	return fmt.Sprintf("%s %s-%s %s", r.Date, timecalc.FormatTick(r.Start), timecalc.FormatTick(r.End), r.Subject)
}

// parseGraphTime parses a Graph API dateTime string in the given timezone.
// Graph returns times like "2026-02-27T09:00:00.0000000" without a zone suffix
// when a Prefer: outlook.timezone header is set.
func parseGraphTime(dt string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, dt); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range []string{
		"2006-01-02T15:04:05.0000000",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.ParseInLocation(layout, dt, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse graph time %q", dt)
}

func location(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", tz, err)
	}
	return loc, nil
}

// shouldSkip returns true if the event should not be imported.
func shouldSkip(event CalendarEvent) bool {
	if event.IsCancelled {
		return true
	}
	if event.IsAllDay {
		return true
	}
	if event.Sensitivity == "private" {
		return true
	}
	if event.ShowAs == "free" {
		return true
	}
	if event.Start.DateTime == "" || event.End.DateTime == "" {
		return true
	}
	return false
}

// MapEvent converts an event into per-day ranges, widening its start and end
// outward to quarter hours. Events crossing midnight yield one range per day.
func MapEvent(event CalendarEvent, loc *time.Location) ([]Range, error) {
	start, err := parseGraphTime(event.Start.DateTime, loc)
	if err != nil {
		return nil, fmt.Errorf("parsing start time: %w", err)
	}
	end, err := parseGraphTime(event.End.DateTime, loc)
	if err != nil {
		return nil, fmt.Errorf("parsing end time: %w", err)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("event ends at %s before it starts at %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	subject := strings.TrimSpace(event.Subject)
	var out []Range
	for day := timecalc.StartOfDay(start); day.Before(end); day = day.AddDate(0, 0, 1) {
		next := day.AddDate(0, 0, 1)
		from, to := 0.0, 24.0
		if start.After(day) {
			from = floorQuarter(hoursSince(day, start))
		}
		if end.Before(next) {
			to = ceilQuarter(hoursSince(day, end))
		}
		if from >= to {
			continue
		}
		out = append(out, Range{
			EventID: event.ID,
			Subject: subject,
			Date:    timecalc.DateString(day),
			Start:   from,
			End:     to,
		})
	}
	return out, nil
}

// hoursSince uses wall-clock fields so DST days still map onto 0-24.
func hoursSince(day, t time.Time) float64 {
	if !timecalc.SameDay(day, t) {
		return 24
	}
	return float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
}

func floorQuarter(h float64) float64 { return math.Floor(h/timecalc.SlotHours) * timecalc.SlotHours }

func ceilQuarter(h float64) float64 {
	return math.Min(24, math.Ceil(h/timecalc.SlotHours)*timecalc.SlotHours)
}

// Plan maps every importable event to ranges. Events that are skipped or
// cannot be parsed are counted in the result.
func Plan(events []CalendarEvent, timezone string) ([]Range, SyncResult, error) {
	var result SyncResult
	loc, err := location(timezone)
	if err != nil {
		return nil, result, err
	}
	var ranges []Range
	for _, event := range events {
		if shouldSkip(event) {
			result.Skipped++
			continue
		}
		rs, err := MapEvent(event, loc)
		if err != nil {
			result.Errors++
			continue
		}
		ranges = append(ranges, rs...)
	}
	return ranges, result, nil
}

// SyncEvents claims the free quarter hours of every event for the target
// project. Quarter hours owned by other projects are left alone, so running
// it twice changes nothing. The subject becomes the note of the first slot
// each range inserts.
func SyncEvents(ctx context.Context, c Claimer, events []CalendarEvent, opts SyncOptions) (SyncResult, error) {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	ranges, result, err := Plan(events, opts.Timezone)
	if err != nil {
		return result, err
	}

	for _, r := range ranges {
		if opts.DryRun {
			fmt.Fprintf(out, "  ~ Would import: %s\n", r)
			result.Imported++
			continue
		}

		res := c.Claim(ctx, opts.ProjectID, r.Date, r.Start, r.End, mutation.SkipOccupied, nil)
		switch res.Outcome {
		case mutation.Unchanged:
			fmt.Fprintf(out, "  – Skipped:  %s (already tracked or occupied)\n", r)
			result.Unchanged++
			continue
		case mutation.Committed:
		default:
			fmt.Fprintf(out, "  ! Error importing %s: %v\n", r, res.Err)
			result.Errors++
			continue
		}

		if len(res.Slots) > 0 && r.Subject != "" && !res.Slots[0].HasNote() {
			if nr := c.UpdateNote(ctx, res.Slots[0].ID, r.Subject); !nr.OK() {
				fmt.Fprintf(out, "  ! Imported %s but could not set its note: %v\n", r, nr.Err)
			}
		}
		fmt.Fprintf(out, "  ✓ Imported: %s (%d slots)\n", r, len(res.Slots))
		result.Imported++
	}
	return result, nil
}
