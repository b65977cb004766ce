package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/quarter-tracker/internal/msgraph"
	"github.com/Tiliavir/quarter-tracker/internal/timecalc"
)

var (
	outlookSyncFrom    string
	outlookSyncTo      string
	outlookSyncDate    string
	outlookSyncDryRun  bool
	outlookSyncProject string
	outlookSyncTZ      string
)

var outlookCmd = &cobra.Command{
	Use:   "outlook",
	Short: "Outlook calendar integration",
}

var outlookSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Paint Outlook calendar events into quarter hours",
	Long: `Import calendar events as quarter hours of one project. Events are
widened to whole quarter hours; quarter hours already owned by any project
are left untouched, so syncing twice changes nothing.`,
	Args: cobra.NoArgs,
	RunE: runOutlookSync,
}

func init() {
	outlookSyncCmd.Flags().StringVar(&outlookSyncFrom, "from", "", "Start date (YYYY-MM-DD); required when --to is specified")
	outlookSyncCmd.Flags().StringVar(&outlookSyncTo, "to", "", "End date (YYYY-MM-DD); defaults to today")
	outlookSyncCmd.Flags().StringVar(&outlookSyncDate, "date", "", "Sync a specific date (YYYY-MM-DD), defaults to today")
	outlookSyncCmd.Flags().BoolVar(&outlookSyncDryRun, "dry-run", false, "Print planned imports without writing")
	outlookSyncCmd.Flags().StringVar(&outlookSyncProject, "project", "", "Project for imported events (default from config)")
	outlookSyncCmd.Flags().StringVar(&outlookSyncTZ, "timezone", "", "IANA timezone for event times (default from config)")
	outlookCmd.AddCommand(outlookSyncCmd)
}

// syncRange resolves the date flags into an inclusive range of days.
func syncRange(date, from, to string, today time.Time) (time.Time, time.Time, error) {
	parse := func(flag, v string) (time.Time, error) {
		d, err := timecalc.ParseDate(v)
		if err != nil {
			return time.Time{}, usageErrorf("invalid --%s value: %v", flag, err)
		}
		return d, nil
	}

	switch {
	case date != "":
		if from != "" || to != "" {
			return time.Time{}, time.Time{}, usageErrorf("--date cannot be combined with --from or --to")
		}
		d, err := parse("date", date)
		return d, d, err
	case from != "" || to != "":
		if from == "" {
			return time.Time{}, time.Time{}, usageErrorf("--from is required when --to is specified")
		}
		start, err := parse("from", from)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end := timecalc.StartOfDay(today)
		if to != "" {
			if end, err = parse("to", to); err != nil {
				return time.Time{}, time.Time{}, err
			}
		}
		if end.Before(start) {
			return time.Time{}, time.Time{}, usageErrorf("--from %s is after --to %s", from, timecalc.DateString(end))
		}
		return start, end, nil
	default:
		d := timecalc.StartOfDay(today)
		return d, d, nil
	}
}

func runOutlookSync(cmd *cobra.Command, args []string) error {
	from, to, err := syncRange(outlookSyncDate, outlookSyncFrom, outlookSyncTo, now())
	if err != nil {
		return err
	}
	timezone := outlookSyncTZ
	if timezone == "" {
		timezone = appCfg.Outlook.Timezone
	}
	loc := time.Local
	if timezone != "" {
		if loc, err = time.LoadLocation(timezone); err != nil {
			return usageErrorf("unknown timezone %q", timezone)
		}
	}
	projectRef := outlookSyncProject
	if projectRef == "" {
		projectRef = appCfg.Outlook.DefaultProject
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := cmd.Context()

	p, err := s.resolve(projectRef)
	if err != nil {
		return err
	}
	if err := s.slots.Load(ctx, timecalc.DateString(from), timecalc.DateString(to)); err != nil {
		return storeError(err)
	}

	out := cmd.OutOrStdout()
	dryTag := ""
	if outlookSyncDryRun {
		dryTag = " [dry-run]"
	}
	fmt.Fprintf(out, "Syncing Outlook events (%s → %s) into %s%s...\n\n",
		timecalc.DateString(from), timecalc.DateString(to), p.Name, dryTag)

	tokenPath, err := msgraph.TokenPath()
	if err != nil {
		return storeError(err)
	}
	tok, oauthCfg, err := msgraph.Authenticate(ctx, appCfg.Outlook.TenantID, appCfg.Outlook.ClientID, tokenPath, cmd.ErrOrStderr())
	if err != nil {
		return storeError(fmt.Errorf("authentication failed: %w", err))
	}
	client := msgraph.NewClient(ctx, tok, oauthCfg, tokenPath)

	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	events, err := client.GetCalendarView(ctx, start, end, timezone)
	if err != nil {
		return storeError(fmt.Errorf("failed to fetch calendar events: %w", err))
	}

	result, err := msgraph.SyncEvents(ctx, s.engine, events, msgraph.SyncOptions{
		ProjectID: p.ID,
		Timezone:  timezone,
		DryRun:    outlookSyncDryRun,
		Out:       out,
	})
	if err != nil {
		return &exitError{code: exitUsage, err: err}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Summary:")
	fmt.Fprintf(out, "  %d imported\n", result.Imported)
	fmt.Fprintf(out, "  %d already tracked\n", result.Unchanged)
	fmt.Fprintf(out, "  %d skipped\n", result.Skipped)
	if result.Errors > 0 {
		fmt.Fprintf(out, "  %d errors\n", result.Errors)
		return &exitError{code: exitStore, err: fmt.Errorf("%d events failed to import", result.Errors), reported: true}
	}
	return nil
}
