// Package storage defines the remote store contract the tracker talks to and
// the backends that implement it.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Tiliavir/quarter-tracker/internal/model"
)

var (
	// ErrDuplicate is returned when an insert violates the one-slot-per-quarter
	// uniqueness rule (or a project name collision).
	ErrDuplicate = errors.New("unique constraint violation")
	// ErrNotFound is returned when a row addressed by id does not exist.
	ErrNotFound = errors.New("not found")
)

// BaseDir returns the root data directory (~/.qt).
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".qt"), nil
}

// SlotQuery selects slots by exact date or by an inclusive date range.
// An empty query selects everything.
type SlotQuery struct {
	Date string
	From string
	To   string
}

// Matches reports whether date satisfies the query.
func (q SlotQuery) Matches(date string) bool {
	if q.Date != "" {
		return date == q.Date
	}
	if q.From != "" && date < q.From {
		return false
	}
	if q.To != "" && date > q.To {
		return false
	}
	return true
}

// SlotPatch is a partial slot update. Note is only applied when SetNote is
// true; a nil Note clears it.
type SlotPatch struct {
	ProjectID *string `json:"project_id,omitempty"`
	SetNote   bool    `json:"set_note,omitempty"`
	Note      *string `json:"note,omitempty"`
}

// SettingsPatch is a partial settings update. An empty stats date clears it.
type SettingsPatch struct {
	DayStartHour   *int    `json:"day_start_hour,omitempty"`
	DayEndHour     *int    `json:"day_end_hour,omitempty"`
	TimeIncrement  *int    `json:"time_increment,omitempty"`
	StatsStartDate *string `json:"stats_start_date,omitempty"`
	StatsEndDate   *string `json:"stats_end_date,omitempty"`
}

// Apply returns s with the patch applied.
func (p SettingsPatch) Apply(s model.UserSettings) model.UserSettings {
	if p.DayStartHour != nil {
		s.DayStartHour = *p.DayStartHour
	}
	if p.DayEndHour != nil {
		s.DayEndHour = *p.DayEndHour
	}
	if p.TimeIncrement != nil {
		s.TimeIncrement = *p.TimeIncrement
	}
	if p.StatsStartDate != nil {
		s.StatsStartDate = nullIfEmpty(*p.StatsStartDate)
	}
	if p.StatsEndDate != nil {
		s.StatsEndDate = nullIfEmpty(*p.StatsEndDate)
	}
	return s
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// SlotStore is the row-level slot API.
type SlotStore interface {
	// SelectSlots returns matching slots ordered by date, then time_slot.
	SelectSlots(ctx context.Context, q SlotQuery) ([]model.TimeSlot, error)
	// InsertSlots inserts all slots or none and returns them with
	// server-assigned ids. Incoming ids are ignored.
	InsertSlots(ctx context.Context, slots []model.TimeSlot) ([]model.TimeSlot, error)
	UpdateSlot(ctx context.Context, id string, patch SlotPatch) (model.TimeSlot, error)
	// DeleteSlots removes the given ids. Unknown ids are ignored.
	DeleteSlots(ctx context.Context, ids []string) error
}

// ProjectStore is the row-level project API.
type ProjectStore interface {
	ListProjects(ctx context.Context) ([]model.Project, error)
	InsertProject(ctx context.Context, p model.Project) (model.Project, error)
	UpdateProject(ctx context.Context, p model.Project) (model.Project, error)
	// DeleteProject removes the project and its slots.
	DeleteProject(ctx context.Context, id string) error
}

// SettingsStore is the row-level settings API.
type SettingsStore interface {
	// GetSettings returns ErrNotFound when the user has no settings yet.
	GetSettings(ctx context.Context) (model.UserSettings, error)
	InsertSettings(ctx context.Context, s model.UserSettings) (model.UserSettings, error)
	UpdateSettings(ctx context.Context, id string, patch SettingsPatch) (model.UserSettings, error)
}

// Store is everything a single user can do against the remote store.
type Store interface {
	SlotStore
	ProjectStore
	SettingsStore
}

// Backend is a multi-user store.
type Backend interface {
	// ForUser returns a Store scoped to one user.
	ForUser(userID string) Store
	// Migrate prepares the schema.
	Migrate(ctx context.Context) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Driver string // file, sqlite, postgres, memory
	Path   string // file/sqlite location
	DSN    string // postgres connection string
}

// Open constructs and migrates the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch opts.Driver {
	case "memory":
		b = NewMemory()
	case "file":
		path := opts.Path
		if path == "" {
			if path, err = BaseDir(); err != nil {
				return nil, err
			}
		}
		b = NewFileBackend(path)
	case "", "sqlite":
		path := opts.Path
		if path == "" {
			base, err := BaseDir()
			if err != nil {
				return nil, err
			}
			if err := os.MkdirAll(base, 0o700); err != nil {
				return nil, fmt.Errorf("storage error creating directories: %w", err)
			}
			path = filepath.Join(base, "qt.db")
		}
		b, err = OpenSQLite(ctx, path)
	case "postgres":
		b, err = OpenPostgres(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := b.Migrate(ctx); err != nil {
		b.Close()
		return nil, fmt.Errorf("migrate %s store: %w", opts.Driver, err)
	}
	return b, nil
}
