package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/settings"
	"github.com/Tiliavir/quarter-tracker/internal/storage"
)

var (
	settingsDayStart  int
	settingsDayEnd    int
	settingsIncrement int
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change display settings",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the visible day range or the grid increment",
	Args:  cobra.NoArgs,
	RunE:  runSettingsSet,
}

func init() {
	settingsSetCmd.Flags().IntVar(&settingsDayStart, "day-start", 0, "First visible hour (0-23)")
	settingsSetCmd.Flags().IntVar(&settingsDayEnd, "day-end", 24, "End of the visible day (1-24)")
	settingsSetCmd.Flags().IntVar(&settingsIncrement, "increment", 60, "Grid row size in minutes: 15, 30 or 60")

	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	printSettings(cmd.OutOrStdout(), s.settings.Get(cmd.Context()))
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	var patch storage.SettingsPatch
	flags := cmd.Flags()
	if flags.Changed("day-start") {
		patch.DayStartHour = &settingsDayStart
	}
	if flags.Changed("day-end") {
		patch.DayEndHour = &settingsDayEnd
	}
	if flags.Changed("increment") {
		patch.TimeIncrement = &settingsIncrement
	}
	if patch == (storage.SettingsPatch{}) {
		return usageErrorf("nothing to change, pass --day-start, --day-end or --increment")
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	saved, err := s.settings.Update(cmd.Context(), patch)
	if err != nil {
		return settingsError(err)
	}
	printSettings(cmd.OutOrStdout(), saved)
	return nil
}

func printSettings(w io.Writer, st model.UserSettings) {
	fmt.Fprintf(w, "Day:        %02d:00–%02d:00\n", st.DayStartHour, st.DayEndHour)
	fmt.Fprintf(w, "Increment:  %d minutes\n", st.TimeIncrement)
	fmt.Fprintf(w, "Stats from: %s\n", orOpen(st.StatsStartDate))
	fmt.Fprintf(w, "Stats to:   %s\n", orOpen(st.StatsEndDate))
	if st.ID == settings.FallbackID {
		fmt.Fprintln(w, "(defaults, stored settings could not be loaded)")
	}
}

func orOpen(d *string) string {
	if d == nil {
		return "-"
	}
	return *d
}

func settingsError(err error) error {
	if errors.Is(err, settings.ErrInvalid) || errors.Is(err, settings.ErrBusy) {
		return &exitError{code: exitUsage, err: err}
	}
	return storeError(err)
}
