// Package stats aggregates slots and entries into per-project hour totals and
// flat export rows.
package stats

import (
	"sort"

	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/timecalc"
)

// Filter restricts aggregation to an inclusive date range. Empty bounds are
// open. Archived projects, and slots whose project no longer exists, are left
// out of totals unless IncludeArchived is set.
type Filter struct {
	From            string
	To              string
	IncludeArchived bool
}

// InRange reports whether date lies inside the filter's date range.
func (f Filter) InRange(date string) bool {
	if f.From != "" && date < f.From {
		return false
	}
	if f.To != "" && date > f.To {
		return false
	}
	return true
}

// ProjectTotal is the tracked time of one project.
type ProjectTotal struct {
	ProjectID string  `json:"project_id"`
	Name      string  `json:"name"`
	Color     string  `json:"color"`
	Archived  bool    `json:"archived"`
	Known     bool    `json:"known"`
	Hours     float64 `json:"hours"`
}

// Totals sums a quarter hour per slot. Every known project appears, with 0
// hours if it has no slots in range. Results are ordered by hours descending;
// equal totals keep project order, unknown projects last.
func Totals(projects []model.Project, slots []model.TimeSlot, f Filter) []ProjectTotal {
	acc := newAccumulator(projects)
	for _, s := range slots {
		if f.InRange(s.Date) {
			acc.add(s.ProjectID, timecalc.SlotHours)
		}
	}
	return acc.result(f)
}

// EntryTotals is Totals over entries, using each entry's duration.
func EntryTotals(projects []model.Project, entries []model.TimeEntry, f Filter) []ProjectTotal {
	acc := newAccumulator(projects)
	for _, e := range entries {
		if f.InRange(e.Date) {
			acc.add(e.ProjectID, e.Hours())
		}
	}
	return acc.result(f)
}

// Sum adds up the hours of totals.
func Sum(totals []ProjectTotal) float64 {
	var sum float64
	for _, t := range totals {
		sum += t.Hours
	}
	return sum
}

// Bounds returns the earliest and latest date that has slots.
func Bounds(slots []model.TimeSlot) (earliest, latest string, ok bool) {
	for _, s := range slots {
		if !ok || s.Date < earliest {
			earliest = s.Date
		}
		if !ok || s.Date > latest {
			latest = s.Date
		}
		ok = true
	}
	return earliest, latest, ok
}

type accumulator struct {
	order  []string
	totals map[string]*ProjectTotal
}

func newAccumulator(projects []model.Project) *accumulator {
	acc := &accumulator{totals: make(map[string]*ProjectTotal, len(projects))}
	for _, p := range projects {
		if _, dup := acc.totals[p.ID]; dup {
			continue
		}
		acc.order = append(acc.order, p.ID)
		acc.totals[p.ID] = &ProjectTotal{
			ProjectID: p.ID,
			Name:      p.Name,
			Color:     colorOrDefault(p.Color),
			Archived:  p.Archived,
			Known:     true,
		}
	}
	return acc
}

func (a *accumulator) add(projectID string, hours float64) {
	t, ok := a.totals[projectID]
	if !ok {
		t = &ProjectTotal{ProjectID: projectID, Name: model.UnknownProjectName, Color: model.DefaultProjectColor}
		a.totals[projectID] = t
		a.order = append(a.order, projectID)
	}
	t.Hours += hours
}

func (a *accumulator) result(f Filter) []ProjectTotal {
	out := make([]ProjectTotal, 0, len(a.order))
	for _, id := range a.order {
		t := a.totals[id]
		if !f.IncludeArchived && (t.Archived || !t.Known) {
			continue
		}
		out = append(out, *t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Hours > out[j].Hours })
	return out
}

func colorOrDefault(c string) string {
	if c == "" {
		return model.DefaultProjectColor
	}
	return c
}
