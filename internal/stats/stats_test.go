package stats_test

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Tiliavir/quarter-tracker/internal/entries"
	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/stats"
)

var projects = []model.Project{
	{ID: "a", Name: "Alpha", Color: "#ff0000"},
	{ID: "b", Name: "Beta", Color: "#00ff00"},
	{ID: "c", Name: "Gamma", Color: "#0000ff", Archived: true},
	{ID: "d", Name: "Delta"},
}

func slot(project, date string, tick float64, note ...string) model.TimeSlot {
	s := model.TimeSlot{ID: model.PersistedID(project + date), ProjectID: project, Date: date, TimeSlot: tick}
	if len(note) > 0 {
		s.Note = model.StringPtr(note[0])
	}
	return s
}

var sample = []model.TimeSlot{
	slot("a", "2026-02-27", 9),
	slot("a", "2026-02-27", 9.25, "standup"),
	slot("b", "2026-02-27", 10, "review"),
	slot("c", "2026-02-26", 8),
	slot("c", "2026-02-26", 8.25),
	slot("c", "2026-02-26", 8.5),
	slot("x", "2026-02-28", 11),
}

func hours(totals []stats.ProjectTotal) map[string]float64 {
	out := map[string]float64{}
	for _, t := range totals {
		out[t.ProjectID] = t.Hours
	}
	return out
}

func TestTotals(t *testing.T) {
	got := stats.Totals(projects, sample, stats.Filter{})
	want := map[string]float64{"a": 0.5, "b": 0.25, "d": 0}
	if diff := cmp.Diff(want, hours(got)); diff != "" {
		t.Errorf("Totals() mismatch (-want +got):\n%s", diff)
	}
	if got[0].ProjectID != "a" {
		t.Errorf("Totals()[0] = %s, want a", got[0].ProjectID)
	}
}

func TestTotalsIncludeArchived(t *testing.T) {
	got := stats.Totals(projects, sample, stats.Filter{IncludeArchived: true})
	require.Equal(t, map[string]float64{"a": 0.5, "b": 0.25, "c": 0.75, "d": 0, "x": 0.25}, hours(got))
	require.Equal(t, "c", got[0].ProjectID)
	require.Equal(t, float64(len(sample))*0.25, stats.Sum(got))

	for _, tt := range got {
		if tt.ProjectID == "x" {
			require.Equal(t, model.UnknownProjectName, tt.Name)
			require.False(t, tt.Known)
		}
		if tt.ProjectID == "d" {
			require.Equal(t, model.DefaultProjectColor, tt.Color)
		}
	}
}

func TestTotalsArchivedExclusionNeverIncreasesSum(t *testing.T) {
	for _, f := range []stats.Filter{{}, {From: "2026-02-27"}, {To: "2026-02-26"}, {From: "2026-02-27", To: "2026-02-27"}} {
		with := f
		with.IncludeArchived = true
		require.LessOrEqual(t, stats.Sum(stats.Totals(projects, sample, f)), stats.Sum(stats.Totals(projects, sample, with)))
	}
}

func TestTotalsDateRange(t *testing.T) {
	got := stats.Totals(projects, sample, stats.Filter{From: "2026-02-27", To: "2026-02-27", IncludeArchived: true})
	require.Equal(t, map[string]float64{"a": 0.5, "b": 0.25, "c": 0, "d": 0}, hours(got))
}

func TestTotalsStableOnTies(t *testing.T) {
	tied := []model.TimeSlot{slot("b", "2026-02-27", 9), slot("a", "2026-02-27", 10)}
	got := stats.Totals(projects, tied, stats.Filter{})
	order := []string{}
	for _, tt := range got {
		order = append(order, tt.ProjectID)
	}
	require.Equal(t, []string{"a", "b", "d"}, order)
}

func TestEntryTotalsMatchSlotTotals(t *testing.T) {
	f := stats.Filter{IncludeArchived: true}
	require.Equal(t,
		stats.Totals(projects, sample, f),
		stats.EntryTotals(projects, entries.Reduce(sample), f))
}

func TestBounds(t *testing.T) {
	from, to, ok := stats.Bounds(sample)
	require.True(t, ok)
	require.Equal(t, "2026-02-26", from)
	require.Equal(t, "2026-02-28", to)

	_, _, ok = stats.Bounds(nil)
	require.False(t, ok)
}

func TestSummaryRows(t *testing.T) {
	extra := append([]model.TimeSlot{slot("a", "2026-02-27", 11, "wrap-up")}, sample...)
	got := stats.SummaryRows(projects, extra, stats.Filter{From: "2026-02-27"})
	want := []stats.SummaryRow{
		{Date: "2026-02-27", ProjectID: "a", Project: "Alpha", Hours: 0.75, Notes: "standup; wrap-up"},
		{Date: "2026-02-27", ProjectID: "b", Project: "Beta", Hours: 0.25, Notes: "review"},
		{Date: "2026-02-28", ProjectID: "x", Project: "Unknown Project", Hours: 0.25},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SummaryRows() mismatch (-want +got):\n%s", diff)
	}
}

func TestDetailedRows(t *testing.T) {
	got := stats.DetailedRows(projects, sample, stats.Filter{From: "2026-02-27", To: "2026-02-27"}, false)
	require.Len(t, got, 3)
	require.Equal(t, stats.DetailedRow{
		Date: "2026-02-27", ProjectID: "a", Project: "Alpha", Color: "#ff0000",
		StartTime: "09:00", EndTime: "09:15", TimeSlot: 9,
	}, got[0])

	notes := stats.DetailedRows(projects, sample, stats.Filter{}, true)
	require.Len(t, notes, 2)
	require.Equal(t, "standup", notes[0].Note)
	require.Equal(t, "review", notes[1].Note)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := stats.WriteSummaryCSV(&buf, []stats.SummaryRow{
		{Date: "2026-02-27", Project: "Alpha, Inc", Hours: 1.5, Notes: `said "hi"`},
	})
	require.NoError(t, err)
	require.Equal(t, "Date,Project,Hours,Notes\n2026-02-27,\"Alpha, Inc\",1.5,\"said \"\"hi\"\"\"\n", buf.String())

	buf.Reset()
	err = stats.WriteDetailedCSV(&buf, stats.DetailedRows(projects, sample[:1], stats.Filter{}, false))
	require.NoError(t, err)
	require.Equal(t, "Date,Project,Start Time,End Time,Note\n2026-02-27,Alpha,09:00,09:15,\n", buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	now := time.Date(2026, 2, 27, 18, 0, 0, 0, time.UTC)
	rows := stats.DetailedRows(projects, sample, stats.Filter{}, false)
	require.NoError(t, stats.WriteJSON(&buf, rows, now))

	var got struct {
		ExportDate string  `json:"export_date"`
		TotalSlots int     `json:"total_slots"`
		TotalHours float64 `json:"total_hours"`
		Slots      []struct {
			Date    string `json:"date"`
			Project struct {
				Name string `json:"name"`
			} `json:"project"`
			StartTime string  `json:"start_time"`
			Note      *string `json:"note"`
		} `json:"slots"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Equal(t, "2026-02-27T18:00:00Z", got.ExportDate)
	require.Equal(t, 7, got.TotalSlots)
	require.Equal(t, 1.75, got.TotalHours)
	require.Equal(t, "2026-02-26", got.Slots[0].Date)
	require.Equal(t, "Gamma", got.Slots[0].Project.Name)
	require.Nil(t, got.Slots[0].Note)
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	summary := stats.SummaryRows(projects, sample, stats.Filter{})
	detail := stats.DetailedRows(projects, sample, stats.Filter{}, false)
	require.NoError(t, stats.WriteXLSX(&buf, summary, detail))

	wb, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer wb.Close()

	require.Equal(t, []string{"Summary", "Detail"}, wb.GetSheetList())

	rows, err := wb.GetRows("Summary")
	require.NoError(t, err)
	require.Len(t, rows, len(summary)+1)
	require.Equal(t, []string{"Date", "Project", "Hours", "Notes"}, rows[0])

	v, err := wb.GetCellValue("Detail", "C2")
	require.NoError(t, err)
	require.Equal(t, "08:00", v)
}

func TestFileName(t *testing.T) {
	now := time.Date(2026, 2, 27, 18, 0, 0, 0, time.UTC)
	require.Equal(t, "time-tracking-summary-2026-02-27.csv", stats.FileName("summary", "csv", now))
}
