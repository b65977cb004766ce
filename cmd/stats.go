package cmd

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/stats"
	"github.com/Tiliavir/quarter-tracker/internal/storage"
	"github.com/Tiliavir/quarter-tracker/internal/timecalc"
)

var (
	statsFrom     string
	statsTo       string
	statsWeek     bool
	statsArchived bool
	statsSave     bool
	statsFormat   string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show hours per project",
	Long: `Show hours per project for a date range. Without --from/--to the range
saved in settings is used; an empty bound is open.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsFrom, "from", "", "First day (YYYY-MM-DD)")
	statsCmd.Flags().StringVar(&statsTo, "to", "", "Last day (YYYY-MM-DD)")
	statsCmd.Flags().BoolVar(&statsWeek, "week", false, "Use the current week")
	statsCmd.Flags().BoolVar(&statsArchived, "archived", false, "Include archived and deleted projects")
	statsCmd.Flags().BoolVar(&statsSave, "save", false, "Remember --from/--to in settings")
	statsCmd.Flags().StringVar(&statsFormat, "format", "md", "Output format: md, csv, json")
}

// dateRange validates an optional inclusive range.
func dateRange(from, to string) error {
	for _, d := range []string{from, to} {
		if d != "" && !timecalc.ValidDate(d) {
			return usageErrorf("invalid date %q, expected YYYY-MM-DD", d)
		}
	}
	if from != "" && to != "" && from > to {
		return usageErrorf("--from %s is after --to %s", from, to)
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	switch statsFormat {
	case "md", "csv", "json":
	default:
		return usageErrorf("unknown format %q", statsFormat)
	}
	flags := cmd.Flags()
	if statsWeek && (flags.Changed("from") || flags.Changed("to")) {
		return usageErrorf("--week cannot be combined with --from or --to")
	}
	if err := dateRange(statsFrom, statsTo); err != nil {
		return err
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := cmd.Context()

	from, to := statsFrom, statsTo
	label := ""
	switch {
	case statsWeek:
		t := now()
		from, to = timecalc.WeekRange(t)
		label = timecalc.ISOWeekLabel(t) + " "
	case !flags.Changed("from") && !flags.Changed("to"):
		st := s.settings.Get(ctx)
		from, to = orEmpty(st.StatsStartDate), orEmpty(st.StatsEndDate)
	}

	if statsSave {
		patch := storage.SettingsPatch{StatsStartDate: &from, StatsEndDate: &to}
		if _, err := s.settings.Update(ctx, patch); err != nil {
			return settingsError(err)
		}
	}

	if err := s.slots.LoadRange(ctx, from, to); err != nil {
		return storeError(err)
	}
	slots := s.slots.All()
	f := stats.Filter{From: from, To: to, IncludeArchived: statsArchived}
	totals := stats.Totals(s.projects.All(), slots, f)

	out := cmd.OutOrStdout()
	switch statsFormat {
	case "csv":
		return writeTotalsCSV(out, totals)
	case "json":
		return writeTotalsJSON(out, f, totals)
	default:
		writeTotalsMarkdown(out, label+rangeLabel(f), slots, totals)
		return nil
	}
}

func orEmpty(d *string) string {
	if d == nil {
		return ""
	}
	return *d
}

func rangeLabel(f stats.Filter) string {
	switch {
	case f.From == "" && f.To == "":
		return "all time"
	case f.From == "":
		return "until " + f.To
	case f.To == "":
		return "since " + f.From
	default:
		return f.From + " → " + f.To
	}
}

func writeTotalsMarkdown(w io.Writer, label string, slots []model.TimeSlot, totals []stats.ProjectTotal) {
	fmt.Fprintf(w, "Stats %s\n", label)
	if first, last, ok := stats.Bounds(slots); ok {
		fmt.Fprintf(w, "Tracked %s → %s\n", first, last)
	}
	fmt.Fprintln(w, "--------------------------------")
	for _, t := range totals {
		name := t.Name
		if t.Archived {
			name += " (archived)"
		}
		fmt.Fprintf(w, "%-24s%s\n", name, timecalc.FormatHours(t.Hours))
	}
	fmt.Fprintln(w, "--------------------------------")
	fmt.Fprintf(w, "%-24s%s\n", "Total", timecalc.FormatHours(stats.Sum(totals)))
}

func writeTotalsCSV(w io.Writer, totals []stats.ProjectTotal) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"project", "hours"}); err != nil {
		return err
	}
	for _, t := range totals {
		if err := cw.Write([]string{t.Name, fmt.Sprintf("%.2f", t.Hours)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type totalsJSON struct {
	From            string               `json:"from,omitempty"`
	To              string               `json:"to,omitempty"`
	IncludeArchived bool                 `json:"include_archived"`
	Projects        []stats.ProjectTotal `json:"projects"`
	TotalHours      float64              `json:"total_hours"`
}

func writeTotalsJSON(w io.Writer, f stats.Filter, totals []stats.ProjectTotal) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(totalsJSON{
		From:            f.From,
		To:              f.To,
		IncludeArchived: f.IncludeArchived,
		Projects:        totals,
		TotalHours:      stats.Sum(totals),
	})
}
