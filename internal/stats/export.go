package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/timecalc"
)

// SummaryRow aggregates one project on one date.
type SummaryRow struct {
	Date      string  `json:"date"`
	ProjectID string  `json:"project_id"`
	Project   string  `json:"project"`
	Hours     float64 `json:"hours"`
	Notes     string  `json:"notes"`
}

// DetailedRow is one slot.
type DetailedRow struct {
	Date      string  `json:"date"`
	ProjectID string  `json:"project_id"`
	Project   string  `json:"project"`
	Color     string  `json:"color"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	TimeSlot  float64 `json:"time_slot"`
	Note      string  `json:"note"`
}

type catalogue map[string]model.Project

func newCatalogue(projects []model.Project) catalogue {
	c := make(catalogue, len(projects))
	for _, p := range projects {
		c[p.ID] = p
	}
	return c
}

func (c catalogue) name(id string) string {
	if p, ok := c[id]; ok {
		return p.Name
	}
	return model.UnknownProjectName
}

func (c catalogue) color(id string) string {
	if p, ok := c[id]; ok {
		return colorOrDefault(p.Color)
	}
	return model.DefaultProjectColor
}

// inScope returns the slots within f's date range, ordered by date and
// time_slot. Exports always include archived projects.
func inScope(slots []model.TimeSlot, f Filter) []model.TimeSlot {
	out := make([]model.TimeSlot, 0, len(slots))
	for _, s := range slots {
		if f.InRange(s.Date) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return model.Less(out[i], out[j]) })
	return out
}

// SummaryRows groups slots by date and project. Within a date, projects
// appear in the order of their first slot; notes are joined with "; ".
func SummaryRows(projects []model.Project, slots []model.TimeSlot, f Filter) []SummaryRow {
	cat := newCatalogue(projects)
	var (
		rows  []SummaryRow
		index = map[[2]string]int{}
		notes = map[int][]string{}
	)
	for _, s := range inScope(slots, f) {
		key := [2]string{s.Date, s.ProjectID}
		i, ok := index[key]
		if !ok {
			i = len(rows)
			index[key] = i
			rows = append(rows, SummaryRow{Date: s.Date, ProjectID: s.ProjectID, Project: cat.name(s.ProjectID)})
		}
		rows[i].Hours += timecalc.SlotHours
		if s.NoteText() != "" {
			notes[i] = append(notes[i], s.NoteText())
		}
	}
	for i := range rows {
		rows[i].Notes = strings.Join(notes[i], "; ")
	}
	return rows
}

// DetailedRows returns one row per slot. With notesOnly, slots without a
// note are dropped.
func DetailedRows(projects []model.Project, slots []model.TimeSlot, f Filter, notesOnly bool) []DetailedRow {
	cat := newCatalogue(projects)
	var rows []DetailedRow
	for _, s := range inScope(slots, f) {
		if notesOnly && !s.HasNote() {
			continue
		}
		rows = append(rows, DetailedRow{
			Date:      s.Date,
			ProjectID: s.ProjectID,
			Project:   cat.name(s.ProjectID),
			Color:     cat.color(s.ProjectID),
			StartTime: timecalc.FormatTick(s.TimeSlot),
			EndTime:   timecalc.FormatTick(s.TimeSlot + timecalc.SlotHours),
			TimeSlot:  s.TimeSlot,
			Note:      s.NoteText(),
		})
	}
	return rows
}

func formatHours(h float64) string {
	return strconv.FormatFloat(h, 'f', -1, 64)
}

// WriteSummaryCSV writes summary rows with a header line.
func WriteSummaryCSV(w io.Writer, rows []SummaryRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Date", "Project", "Hours", "Notes"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Date, r.Project, formatHours(r.Hours), r.Notes}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDetailedCSV writes detailed rows with a header line.
func WriteDetailedCSV(w io.Writer, rows []DetailedRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Date", "Project", "Start Time", "End Time", "Note"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Date, r.Project, r.StartTime, r.EndTime, r.Note}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type jsonProject struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type jsonSlot struct {
	Date      string      `json:"date"`
	Project   jsonProject `json:"project"`
	StartTime string      `json:"start_time"`
	EndTime   string      `json:"end_time"`
	TimeSlot  float64     `json:"time_slot"`
	Hours     float64     `json:"hours"`
	Note      *string     `json:"note"`
}

type jsonExport struct {
	ExportDate string     `json:"export_date"`
	TotalSlots int        `json:"total_slots"`
	TotalHours float64    `json:"total_hours"`
	Slots      []jsonSlot `json:"slots"`
}

// WriteJSON writes detailed rows inside an envelope carrying the export time
// and totals.
func WriteJSON(w io.Writer, rows []DetailedRow, now time.Time) error {
	out := jsonExport{
		ExportDate: now.UTC().Format(time.RFC3339),
		TotalSlots: len(rows),
		TotalHours: float64(len(rows)) * timecalc.SlotHours,
		Slots:      make([]jsonSlot, 0, len(rows)),
	}
	for _, r := range rows {
		var note *string
		if r.Note != "" {
			note = model.StringPtr(r.Note)
		}
		out.Slots = append(out.Slots, jsonSlot{
			Date:      r.Date,
			Project:   jsonProject{ID: r.ProjectID, Name: r.Project, Color: r.Color},
			StartTime: r.StartTime,
			EndTime:   r.EndTime,
			TimeSlot:  r.TimeSlot,
			Hours:     timecalc.SlotHours,
			Note:      note,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("error encoding JSON: %w", err)
	}
	return nil
}

// FileName returns the default export file name, e.g.
// time-tracking-summary-2026-02-27.csv.
func FileName(kind, ext string, now time.Time) string {
	return fmt.Sprintf("time-tracking-%s-%s.%s", kind, timecalc.DateString(now), ext)
}
