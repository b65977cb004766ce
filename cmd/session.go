package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/quarter-tracker/internal/client"
	"github.com/Tiliavir/quarter-tracker/internal/config"
	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/mutation"
	"github.com/Tiliavir/quarter-tracker/internal/projects"
	"github.com/Tiliavir/quarter-tracker/internal/settings"
	"github.com/Tiliavir/quarter-tracker/internal/slots"
	"github.com/Tiliavir/quarter-tracker/internal/storage"
	"github.com/Tiliavir/quarter-tracker/internal/timecalc"
)

// now is replaced in tests.
var now = time.Now

// openStore returns the user's store and a function releasing it.
var openStore = func(ctx context.Context, cfg config.Config) (storage.Store, func() error, error) {
	if cfg.Store.Driver == "http" {
		s, err := client.New(ctx, cfg.Store.URL, cfg.Store.Token, cfg.UserID)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil
	}
	b, err := storage.Open(ctx, storage.Options{
		Driver: cfg.Store.Driver,
		Path:   cfg.Store.Path,
		DSN:    cfg.Store.DSN,
	})
	if err != nil {
		return nil, nil, err
	}
	return b.ForUser(cfg.UserID), b.Close, nil
}

// session wires the services one command needs.
type session struct {
	remote   storage.Store
	close    func() error
	logger   *slog.Logger
	projects *projects.Service
	settings *settings.Service
	slots    *slots.Store
	engine   *mutation.Engine
	confirm  *promptConfirmer
}

func newSession(cmd *cobra.Command) (*session, error) {
	ctx := cmd.Context()
	remote, closeFn, err := openStore(ctx, appCfg)
	if err != nil {
		return nil, storeError(err)
	}

	logger := slog.Default()
	n := cliNotifier{w: cmd.ErrOrStderr()}
	store := slots.New(remote, logger)
	s := &session{
		remote:   remote,
		close:    closeFn,
		logger:   logger,
		projects: projects.New(remote, projects.WithNotifier(n), projects.WithLogger(logger)),
		settings: settings.New(remote, settings.WithNotifier(n), settings.WithLogger(logger)),
		slots:    store,
		engine:   mutation.New(store, remote, mutation.WithNotifier(n), mutation.WithLogger(logger)),
		confirm:  &promptConfirmer{in: bufio.NewReader(cmd.InOrStdin()), out: cmd.ErrOrStderr()},
	}
	if err := s.projects.Load(ctx); err != nil {
		_ = closeFn()
		return nil, &exitError{code: exitStore, err: err, reported: true}
	}
	return s, nil
}

func (s *session) Close() {
	if err := s.close(); err != nil {
		s.logger.Warn("closing store", slog.Any("error", err))
	}
}

// loadDay loads one date into the slot store.
func (s *session) loadDay(ctx context.Context, date string) error {
	if err := s.slots.Load(ctx, date, date); err != nil {
		return storeError(err)
	}
	return nil
}

// resolve finds a project by id or name. Archived projects cannot receive
// new time.
func (s *session) resolve(ref string) (model.Project, error) {
	p, err := s.projects.Resolve(ref)
	if err != nil {
		return model.Project{}, &exitError{code: exitUsage, err: err}
	}
	if p.Archived {
		return model.Project{}, usageErrorf("project %q is archived", p.Name)
	}
	return p, nil
}

func (s *session) projectName(id string) string {
	if p, ok := s.projects.ByID(id); ok {
		return p.Name
	}
	return model.UnknownProjectName
}

// resultError converts a mutation result into a command error. The engine's
// notifier has already shown the message.
func resultError(res mutation.Result) error {
	switch res.Outcome {
	case mutation.Committed, mutation.Unchanged:
		return nil
	case mutation.Rejected:
		return &exitError{code: exitUsage, err: res.Err, reported: true}
	default:
		return &exitError{code: exitStore, err: res.Err, reported: true}
	}
}

// cliNotifier prints service messages to stderr.
type cliNotifier struct {
	w io.Writer
}

func (n cliNotifier) Info(msg string)  { fmt.Fprintln(n.w, msg) }
func (n cliNotifier) Error(msg string) { fmt.Fprintln(n.w, "Error:", msg) }

// promptConfirmer asks on the terminal before a note is discarded.
type promptConfirmer struct {
	in  *bufio.Reader
	out io.Writer
	yes bool
}

func (c *promptConfirmer) ConfirmNoteLoss(slot model.TimeSlot) bool {
	if c.yes {
		return true
	}
	fmt.Fprintf(c.out, "%s %s has the note %q. Replace it? [y/N] ",
		slot.Date, timecalc.FormatTick(slot.TimeSlot), slot.NoteText())
	line, err := c.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// dateArg returns the --date value, defaulting to today.
func dateArg(value string) (string, error) {
	if value == "" {
		return timecalc.DateString(now()), nil
	}
	if !timecalc.ValidDate(value) {
		return "", usageErrorf("invalid date %q, expected YYYY-MM-DD", value)
	}
	return value, nil
}

// boundaryArg parses a range boundary; 24:00 is allowed.
func boundaryArg(value string) (float64, error) {
	h, err := timecalc.ParseTick(value)
	if err != nil {
		return 0, &exitError{code: exitUsage, err: err}
	}
	return h, nil
}

// tickArg parses a single quarter hour. "now" is the quarter hour containing
// the current time.
func tickArg(value string) (float64, error) {
	if strings.EqualFold(value, "now") {
		return timecalc.TickAt(now()), nil
	}
	h, err := timecalc.ParseTick(value)
	if err != nil {
		return 0, &exitError{code: exitUsage, err: err}
	}
	if !timecalc.ValidTick(h) {
		return 0, usageErrorf("time %q does not start a quarter hour of the day", value)
	}
	return h, nil
}
