package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/quarter-tracker/internal/config"
)

var (
	rootVerbose bool
	rootStore   string
	rootUser    string

	appCfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "qt",
	Short: "Quarter Tracker – paint your day in quarter hours",
	Long: `qt tracks time as quarter-hour slots assigned to projects.
Consecutive slots of one project form an entry. Configuration lives in
~/.qt/config.json; data goes to the store configured there.`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Exit codes.
const (
	exitUsage = 1
	exitStore = 2
)

// exitError carries the process exit code for an error. Reported errors have
// already been shown to the user by a notifier.
type exitError struct {
	code     int
	err      error
	reported bool
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageErrorf(format string, args ...any) error {
	return &exitError{code: exitUsage, err: fmt.Errorf(format, args...)}
}

func storeError(err error) error {
	if err == nil {
		return nil
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return err
	}
	return &exitError{code: exitStore, err: err}
}

// Execute is the entry point called from main.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var ee *exitError
	if !errors.As(err, &ee) || !ee.reported {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(codeOf(err))
}

// codeOf returns the exit code for err. Errors raised by cobra itself, such
// as a wrong number of arguments, are usage errors.
func codeOf(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitUsage
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().StringVar(&rootStore, "store", "", "Override the store driver (sqlite, file, postgres, memory, http)")
	rootCmd.PersistentFlags().StringVar(&rootUser, "user", "", "Override the user id")

	rootCmd.AddCommand(dayCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(paintCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(rmEntryCmd)
	rootCmd.AddCommand(noteCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(outlookCmd)
}

// setup loads the configuration and installs the default logger.
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Warning:", err)
	}
	if rootStore != "" {
		cfg.Store.Driver = rootStore
	}
	if rootUser != "" {
		cfg.UserID = rootUser
	}
	if err := cfg.Validate(); err != nil {
		return &exitError{code: exitUsage, err: err}
	}
	appCfg = cfg

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelWarn
	}
	if rootVerbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
	return nil
}
