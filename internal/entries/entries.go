// Package entries derives time entries (maximal runs of consecutive
// same-project slots on one date) from a slot set.
package entries

import (
	"sort"

	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/timecalc"
)

// Reduce groups slots into entries. The input may span several dates and is
// not modified. Output is ordered by date, then start time.
//
// An entry carries the note of its first slot only; notes on later slots of
// the same run stay on the slots.
func Reduce(slots []model.TimeSlot) []model.TimeEntry {
	sorted := make([]model.TimeSlot, len(slots))
	copy(sorted, slots)
	sort.SliceStable(sorted, func(i, j int) bool { return model.Less(sorted[i], sorted[j]) })

	out := []model.TimeEntry{}
	var cur *model.TimeEntry
	for _, slot := range sorted {
		if cur != nil && cur.Date == slot.Date && cur.ProjectID == slot.ProjectID && cur.EndTime == slot.TimeSlot {
			cur.EndTime += timecalc.SlotHours
			cur.SlotIDs = append(cur.SlotIDs, slot.ID)
			continue
		}
		if cur != nil {
			out = append(out, *cur)
		}
		cur = &model.TimeEntry{
			ID:        slot.ID,
			ProjectID: slot.ProjectID,
			Date:      slot.Date,
			StartTime: slot.TimeSlot,
			EndTime:   slot.TimeSlot + timecalc.SlotHours,
			SlotIDs:   []model.SlotID{slot.ID},
			Note:      slot.Clone().Note,
		}
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out
}

// ByDate keeps the entries of one date.
func ByDate(entries []model.TimeEntry, date string) []model.TimeEntry {
	out := []model.TimeEntry{}
	for _, e := range entries {
		if e.Date == date {
			out = append(out, e)
		}
	}
	return out
}

// Find returns the entry with the given id.
func Find(entries []model.TimeEntry, id model.SlotID) (model.TimeEntry, bool) {
	for _, e := range entries {
		if e.ID == id {
			return e, true
		}
	}
	return model.TimeEntry{}, false
}

// Containing returns the entry of date that covers tick.
func Containing(entries []model.TimeEntry, date string, tick float64) (model.TimeEntry, bool) {
	for _, e := range entries {
		if e.Date == date && e.Covers(tick) {
			return e, true
		}
	}
	return model.TimeEntry{}, false
}

// TotalHours sums the durations of entries.
func TotalHours(entries []model.TimeEntry) float64 {
	var total float64
	for _, e := range entries {
		total += e.Hours()
	}
	return total
}
