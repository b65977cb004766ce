// Package settings holds the user's display preferences.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/storage"
	"github.com/Tiliavir/quarter-tracker/internal/timecalc"
)

// FallbackID marks settings that could not be loaded from the remote store.
const FallbackID = "fallback"

// Errors returned by Update.
var (
	ErrInvalid = errors.New("invalid settings")
	ErrBusy    = errors.New("a settings update is already pending")
)

// Notifier surfaces non-fatal messages to the user.
type Notifier interface {
	Info(msg string)
	Error(msg string)
}

type nopNotifier struct{}

func (nopNotifier) Info(string)  {}
func (nopNotifier) Error(string) {}

// Service caches the user's settings. It is safe for concurrent use.
type Service struct {
	remote   storage.SettingsStore
	logger   *slog.Logger
	notifier Notifier

	mu      sync.Mutex
	current model.UserSettings
	loaded  bool
	pending bool
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets where user-facing messages go.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New returns a Service backed by remote. Settings are read, and created with
// defaults when missing, on the first Load or Get.
func New(remote storage.SettingsStore, opts ...Option) *Service {
	s := &Service{remote: remote, notifier: nopNotifier{}}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With(slog.String("component", "settings"))
	return s
}

// Load reads the settings, creating the defaults if the user has none. Any
// other failure leaves the defaults in place under FallbackID and is
// returned.
func (s *Service) Load(ctx context.Context) (model.UserSettings, error) {
	got, err := s.remote.GetSettings(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		got, err = s.remote.InsertSettings(ctx, model.DefaultSettings())
		if err == nil {
			s.logger.Info("created default settings", slog.String("settings_id", got.ID))
		}
	}
	if err != nil {
		s.logger.Error("load settings", slog.Any("error", err))
		s.notifier.Error("Failed to load settings")
		got = model.DefaultSettings()
		got.ID = FallbackID
		err = fmt.Errorf("load settings: %w", err)
	}

	s.mu.Lock()
	s.current = got
	s.loaded = true
	s.mu.Unlock()
	return got, err
}

// Get returns the cached settings, loading them on first use. A load failure
// is logged and the fallback returned.
func (s *Service) Get(ctx context.Context) model.UserSettings {
	s.mu.Lock()
	if s.loaded {
		defer s.mu.Unlock()
		return s.current
	}
	s.mu.Unlock()
	got, _ := s.Load(ctx)
	return got
}

// Update validates the patched settings, applies them locally and writes
// them to the remote store. The previous settings are restored on failure.
func (s *Service) Update(ctx context.Context, patch storage.SettingsPatch) (model.UserSettings, error) {
	if cur := s.Get(ctx); cur.ID == FallbackID {
		if _, err := s.Load(ctx); err != nil {
			return cur, err
		}
	}

	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return model.UserSettings{}, ErrBusy
	}
	before := s.current
	next := patch.Apply(before)
	if err := Validate(next); err != nil {
		s.mu.Unlock()
		return before, err
	}
	s.current = next
	s.pending = true
	s.mu.Unlock()

	saved, err := s.remote.UpdateSettings(ctx, before.ID, patch)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = false
	if err != nil {
		s.current = before
		s.logger.Error("update settings", slog.Any("error", err))
		s.notifier.Error("Failed to update settings")
		return before, fmt.Errorf("update settings: %w", err)
	}
	s.current = saved
	s.notifier.Info("Settings updated")
	return saved, nil
}

// Validate checks hour bounds, the grid increment and the statistics range.
func Validate(s model.UserSettings) error {
	if s.DayStartHour < 0 || s.DayStartHour > 23 {
		return fmt.Errorf("%w: day start %d is not within 0-23", ErrInvalid, s.DayStartHour)
	}
	if s.DayEndHour < 1 || s.DayEndHour > 24 {
		return fmt.Errorf("%w: day end %d is not within 1-24", ErrInvalid, s.DayEndHour)
	}
	if s.DayStartHour >= s.DayEndHour {
		return fmt.Errorf("%w: day start %d must be before day end %d", ErrInvalid, s.DayStartHour, s.DayEndHour)
	}
	if !model.ValidIncrement(s.TimeIncrement) {
		return fmt.Errorf("%w: time increment must be 15, 30 or 60 minutes, got %d", ErrInvalid, s.TimeIncrement)
	}
	for _, d := range []*string{s.StatsStartDate, s.StatsEndDate} {
		if d != nil && !timecalc.ValidDate(*d) {
			return fmt.Errorf("%w: statistics date %q", ErrInvalid, *d)
		}
	}
	if s.StatsStartDate != nil && s.StatsEndDate != nil && *s.StatsStartDate > *s.StatsEndDate {
		return fmt.Errorf("%w: statistics range %s..%s is reversed", ErrInvalid, *s.StatsStartDate, *s.StatsEndDate)
	}
	return nil
}

// DisplayRange returns the hours to show for a day: the configured
// [start, end) widened to whole hours covering every entry.
func DisplayRange(s model.UserSettings, entries []model.TimeEntry) (start, end int) {
	start, end = s.DayStartHour, s.DayEndHour
	for _, e := range entries {
		if h := int(math.Floor(e.StartTime)); h < start {
			start = h
		}
		if h := int(math.Ceil(e.EndTime)); h > end {
			end = h
		}
	}
	return start, end
}
