package cmd

import (
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/quarter-tracker/internal/entries"
	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/settings"
	"github.com/Tiliavir/quarter-tracker/internal/stats"
	"github.com/Tiliavir/quarter-tracker/internal/timecalc"
)

var dayDate string

var dayCmd = &cobra.Command{
	Use:   "day",
	Short: "Show the entries and quarter-hour grid of a day",
	Args:  cobra.NoArgs,
	RunE:  runDay,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current quarter hour and today's total",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	dayCmd.Flags().StringVar(&dayDate, "date", "", "Day to show (YYYY-MM-DD), defaults to today")
}

func runDay(cmd *cobra.Command, args []string) error {
	date, err := dateArg(dayDate)
	if err != nil {
		return err
	}
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	if err := s.loadDay(ctx, date); err != nil {
		return err
	}
	day := entries.Reduce(s.slots.ForDate(date))

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, date)
	printEntries(out, s, day)
	fmt.Fprintln(out)
	printGrid(out, s, date, s.settings.Get(ctx), day)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	t := now()
	date := timecalc.DateString(t)
	tick := timecalc.TickAt(t)

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.loadDay(cmd.Context(), date); err != nil {
		return err
	}
	day := entries.Reduce(s.slots.ForDate(date))

	out := cmd.OutOrStdout()
	if e, ok := entries.Containing(day, date, tick); ok {
		fmt.Fprintf(out, "Now %s: %s (%s–%s)\n", timecalc.FormatTick(tick), s.projectName(e.ProjectID),
			timecalc.FormatTick(e.StartTime), timecalc.FormatTick(e.EndTime))
	} else {
		fmt.Fprintf(out, "Now %s: nothing tracked.\n", timecalc.FormatTick(tick))
	}
	fmt.Fprintf(out, "Today: %s logged.\n", timecalc.FormatHours(entries.TotalHours(day)))
	return nil
}

// printEntries lists a day's entries followed by the total and, when more
// than one project was tracked, the hours per project.
func printEntries(w io.Writer, s *session, day []model.TimeEntry) {
	if len(day) == 0 {
		fmt.Fprintln(w, "No entries found.")
		return
	}
	for _, e := range day {
		note := ""
		if e.Note != nil {
			note = "  " + *e.Note
		}
		fmt.Fprintf(w, "%s–%s  %-20s %7s%s\n",
			timecalc.FormatTick(e.StartTime), timecalc.FormatTick(e.EndTime),
			s.projectName(e.ProjectID), timecalc.FormatHours(e.Hours()), note)
	}
	fmt.Fprintf(w, "%-33s %7s\n", "Total", timecalc.FormatHours(entries.TotalHours(day)))

	var tracked []stats.ProjectTotal
	for _, t := range stats.EntryTotals(s.projects.All(), day, stats.Filter{IncludeArchived: true}) {
		if t.Hours > 0 {
			tracked = append(tracked, t)
		}
	}
	if len(tracked) < 2 {
		return
	}
	for _, t := range tracked {
		fmt.Fprintf(w, "  %-31s %7s\n", t.Name, timecalc.FormatHours(t.Hours))
	}
}

// printGrid draws one row per time increment with a cell per quarter hour.
// Cells show the initial of the owning project, lower-cased when the quarter
// hour has a note.
func printGrid(w io.Writer, s *session, date string, st model.UserSettings, day []model.TimeEntry) {
	start, end := settings.DisplayRange(st, day)
	perRow := st.TimeIncrement / 15
	if perRow < 1 {
		perRow = 1
	}
	step := float64(perRow) * timecalc.SlotHours

	legend := map[string]rune{}
	var order []string
	for h := float64(start); h < float64(end); h += step {
		var cells []string
		for i := 0; i < perRow; i++ {
			tick := h + float64(i)*timecalc.SlotHours
			slot, ok := s.slots.FindAt(date, tick)
			if !ok {
				cells = append(cells, ".")
				continue
			}
			mark, seen := legend[slot.ProjectID]
			if !seen {
				mark = initial(s.projectName(slot.ProjectID))
				legend[slot.ProjectID] = mark
				order = append(order, slot.ProjectID)
			}
			if slot.HasNote() {
				mark = unicode.ToLower(mark)
			}
			cells = append(cells, string(mark))
		}
		fmt.Fprintf(w, "%s  %s\n", timecalc.FormatTick(h), strings.Join(cells, " "))
	}
	for _, id := range order {
		fmt.Fprintf(w, "  %c = %s\n", legend[id], s.projectName(id))
	}
}

func initial(name string) rune {
	r, _ := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return '?'
	}
	return unicode.ToUpper(r)
}
