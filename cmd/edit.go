package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/quarter-tracker/internal/entries"
	"github.com/Tiliavir/quarter-tracker/internal/mutation"
	"github.com/Tiliavir/quarter-tracker/internal/timecalc"
)

var (
	paintDate    string
	paintReplace bool
	paintYes     bool

	toggleDate    string
	toggleReplace bool
	toggleYes     bool

	clearDate   string
	rmEntryDate string
	noteDate    string
)

var paintCmd = &cobra.Command{
	Use:   "paint <project> <from> <to>",
	Short: "Assign the quarter hours in [from, to) to a project",
	Long: `Assign every quarter hour from <from> up to, but not including, <to>.
Times are HH:MM or decimal hours and are snapped to the quarter hour.
Quarter hours owned by other projects are skipped unless --replace is given.`,
	Args: cobra.ExactArgs(3),
	RunE: runPaint,
}

var toggleCmd = &cobra.Command{
	Use:   "toggle <project> <time>",
	Short: "Paint one quarter hour, or erase it if the project already owns it",
	Args:  cobra.ExactArgs(2),
	RunE:  runToggle,
}

var clearCmd = &cobra.Command{
	Use:   "clear <from> <to>",
	Short: "Erase the quarter hours in [from, to)",
	Args:  cobra.ExactArgs(2),
	RunE:  runClear,
}

var rmEntryCmd = &cobra.Command{
	Use:   "rm-entry <time>",
	Short: "Delete the whole entry covering a quarter hour",
	Args:  cobra.ExactArgs(1),
	RunE:  runRmEntry,
}

var noteCmd = &cobra.Command{
	Use:   "note <time> [text...]",
	Short: "Set the note of the entry covering a quarter hour; no text clears it",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runNote,
}

func init() {
	paintCmd.Flags().StringVar(&paintDate, "date", "", "Day to edit (YYYY-MM-DD), defaults to today")
	paintCmd.Flags().BoolVar(&paintReplace, "replace", false, "Take over quarter hours owned by other projects")
	paintCmd.Flags().BoolVarP(&paintYes, "yes", "y", false, "Do not ask before discarding notes")

	toggleCmd.Flags().StringVar(&toggleDate, "date", "", "Day to edit (YYYY-MM-DD), defaults to today")
	toggleCmd.Flags().BoolVar(&toggleReplace, "replace", false, "Take over the quarter hour if another project owns it")
	toggleCmd.Flags().BoolVarP(&toggleYes, "yes", "y", false, "Do not ask before discarding notes")

	clearCmd.Flags().StringVar(&clearDate, "date", "", "Day to edit (YYYY-MM-DD), defaults to today")
	rmEntryCmd.Flags().StringVar(&rmEntryDate, "date", "", "Day to edit (YYYY-MM-DD), defaults to today")
	noteCmd.Flags().StringVar(&noteDate, "date", "", "Day to edit (YYYY-MM-DD), defaults to today")
}

func policy(replace bool) mutation.ClaimPolicy {
	if replace {
		return mutation.Replace
	}
	return mutation.SkipOccupied
}

func runPaint(cmd *cobra.Command, args []string) error {
	date, err := dateArg(paintDate)
	if err != nil {
		return err
	}
	start, err := boundaryArg(args[1])
	if err != nil {
		return err
	}
	end, err := boundaryArg(args[2])
	if err != nil {
		return err
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := s.resolve(args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := s.loadDay(ctx, date); err != nil {
		return err
	}

	s.confirm.yes = paintYes
	res := s.engine.Claim(ctx, p.ID, date, start, end, policy(paintReplace), s.confirm)
	if err := resultError(res); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if res.Outcome == mutation.Unchanged {
		fmt.Fprintln(out, "Nothing to paint.")
		return nil
	}
	fmt.Fprintf(out, "%s: %s–%s %s (%d quarter hours)\n", date,
		timecalc.FormatTick(start), timecalc.FormatTick(end), p.Name, len(res.Slots))
	return nil
}

func runToggle(cmd *cobra.Command, args []string) error {
	date, err := dateArg(toggleDate)
	if err != nil {
		return err
	}
	tick, err := tickArg(args[1])
	if err != nil {
		return err
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	p, err := s.resolve(args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if err := s.loadDay(ctx, date); err != nil {
		return err
	}

	s.confirm.yes = toggleYes
	res := s.engine.Toggle(ctx, p.ID, date, tick, policy(toggleReplace), s.confirm)
	if err := resultError(res); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	cur, ok := s.slots.FindAt(date, tick)
	switch {
	case ok && cur.ProjectID == p.ID:
		fmt.Fprintf(out, "%s %s: %s\n", date, timecalc.FormatTick(tick), p.Name)
	case ok:
		fmt.Fprintf(out, "%s %s: kept %s\n", date, timecalc.FormatTick(tick), s.projectName(cur.ProjectID))
	default:
		fmt.Fprintf(out, "%s %s: cleared\n", date, timecalc.FormatTick(tick))
	}
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	date, err := dateArg(clearDate)
	if err != nil {
		return err
	}
	start, err := boundaryArg(args[0])
	if err != nil {
		return err
	}
	end, err := boundaryArg(args[1])
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
	res := s.engine.DeleteSlots(ctx, date, start, end)
	if err := resultError(res); err != nil {
		return err
	}
	if res.Outcome == mutation.Unchanged {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to clear.")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: cleared %s–%s\n", date, timecalc.FormatTick(start), timecalc.FormatTick(end))
	return nil
}

func runRmEntry(cmd *cobra.Command, args []string) error {
	date, err := dateArg(rmEntryDate)
	if err != nil {
		return err
	}
	tick, err := tickArg(args[0])
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
	e, ok := entries.Containing(entries.Reduce(s.slots.ForDate(date)), date, tick)
	if !ok {
		return usageErrorf("no entry at %s on %s", timecalc.FormatTick(tick), date)
	}
	if err := resultError(s.engine.DeleteEntry(ctx, e.ID)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s %s–%s (%s)\n", s.projectName(e.ProjectID),
		timecalc.FormatTick(e.StartTime), timecalc.FormatTick(e.EndTime), timecalc.FormatHours(e.Hours()))
	return nil
}

func runNote(cmd *cobra.Command, args []string) error {
	date, err := dateArg(noteDate)
	if err != nil {
		return err
	}
	tick, err := tickArg(args[0])
	if err != nil {
		return err
	}
	text := strings.Join(args[1:], " ")

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	if err := s.loadDay(ctx, date); err != nil {
		return err
	}
	e, ok := entries.Containing(entries.Reduce(s.slots.ForDate(date)), date, tick)
	if !ok {
		return usageErrorf("no entry at %s on %s", timecalc.FormatTick(tick), date)
	}
	if err := resultError(s.engine.UpdateNote(ctx, e.ID, text)); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared note of %s %s\n", s.projectName(e.ProjectID), timecalc.FormatTick(e.StartTime))
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Noted %s %s: %s\n", s.projectName(e.ProjectID), timecalc.FormatTick(e.StartTime), strings.TrimSpace(text))
	return nil
}
