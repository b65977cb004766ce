package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"

	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/timecalc"
)

// FileBackend stores every user's data as human-readable JSON files:
//
//	<base>/users/<user>/YYYY/MM/DD.json   slots of one day
//	<base>/users/<user>/projects.json
//	<base>/users/<user>/settings.json
//
// Slot ids embed their date so a slot can be found without scanning.
type FileBackend struct {
	base string
	mu   sync.Mutex
}

// DayFile is the top-level structure stored in each daily JSON file.
type DayFile struct {
	Date  string           `json:"date"`
	Slots []model.TimeSlot `json:"slots"`
}

// NewFileBackend returns a backend rooted at base.
func NewFileBackend(base string) *FileBackend {
	return &FileBackend{base: base}
}

// ForUser implements Backend.
func (b *FileBackend) ForUser(userID string) Store {
	return &fileStore{b: b, dir: filepath.Join(b.base, "users", userID)}
}

// Migrate implements Backend.
func (b *FileBackend) Migrate(context.Context) error {
	if err := os.MkdirAll(filepath.Join(b.base, "users"), 0o700); err != nil {
		return fmt.Errorf("storage error creating directories: %w", err)
	}
	return nil
}

// Close implements Backend.
func (b *FileBackend) Close() error { return nil }

type fileStore struct {
	b   *FileBackend
	dir string
}

// dayFilePath returns the path for the given date's JSON file.
func (s *fileStore) dayFilePath(date string) string {
	return filepath.Join(s.dir, date[0:4], date[5:7], date[8:10]+".json")
}

// loadDay loads the DayFile for the given date. Returns an empty DayFile if not found.
func (s *fileStore) loadDay(date string) (DayFile, error) {
	path := s.dayFilePath(date)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DayFile{Date: date, Slots: []model.TimeSlot{}}, nil
	}
	if err != nil {
		return DayFile{}, fmt.Errorf("storage error reading %s: %w", path, err)
	}

	var df DayFile
	if err := json.Unmarshal(data, &df); err != nil {
		// Back up corrupt file and abort.
		backupPath := path + ".corrupt"
		_ = os.Rename(path, backupPath)
		return DayFile{}, fmt.Errorf("corrupt JSON in %s (backed up to %s): %w", path, backupPath, err)
	}
	return df, nil
}

// saveDay atomically writes a DayFile; an empty day removes the file.
func (s *fileStore) saveDay(df DayFile) error {
	path := s.dayFilePath(df.Date)
	if len(df.Slots) == 0 {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("storage error removing %s: %w", path, err)
		}
		return nil
	}
	sort.Slice(df.Slots, func(i, j int) bool { return df.Slots[i].TimeSlot < df.Slots[j].TimeSlot })
	return s.writeJSON(path, df)
}

func (s *fileStore) writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("storage error creating directories: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("storage error marshalling JSON: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("storage error writing %s: %w", path, err)
	}
	return nil
}

func (s *fileStore) readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage error reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("corrupt JSON in %s: %w", path, err)
	}
	return true, nil
}

// dates lists the days that have a file, in order.
func (s *fileStore) dates() ([]string, error) {
	var dates []string
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) != 3 {
			return nil
		}
		date := parts[0] + "-" + parts[1] + "-" + strings.TrimSuffix(parts[2], ".json")
		if timecalc.ValidDate(date) {
			dates = append(dates, date)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage error listing %s: %w", s.dir, err)
	}
	sort.Strings(dates)
	return dates, nil
}

func (s *fileStore) SelectSlots(ctx context.Context, q SlotQuery) ([]model.TimeSlot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	var dates []string
	switch {
	case q.Date != "":
		dates = []string{q.Date}
	case q.From != "" && q.To != "":
		from, err := timecalc.ParseDate(q.From)
		if err != nil {
			return nil, err
		}
		to, err := timecalc.ParseDate(q.To)
		if err != nil {
			return nil, err
		}
		for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
			dates = append(dates, timecalc.DateString(d))
		}
	default:
		all, err := s.dates()
		if err != nil {
			return nil, err
		}
		for _, d := range all {
			if q.Matches(d) {
				dates = append(dates, d)
			}
		}
	}

	out := []model.TimeSlot{}
	for _, d := range dates {
		if !timecalc.ValidDate(d) {
			return nil, fmt.Errorf("invalid date %q", d)
		}
		df, err := s.loadDay(d)
		if err != nil {
			return nil, err
		}
		out = append(out, df.Slots...)
	}
	return out, nil
}

func (s *fileStore) InsertSlots(ctx context.Context, slots []model.TimeSlot) ([]model.TimeSlot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	days := map[string]*DayFile{}
	var order []string
	out := make([]model.TimeSlot, 0, len(slots))
	for _, slot := range slots {
		if !timecalc.ValidDate(slot.Date) {
			return nil, fmt.Errorf("invalid date %q", slot.Date)
		}
		df, ok := days[slot.Date]
		if !ok {
			loaded, err := s.loadDay(slot.Date)
			if err != nil {
				return nil, err
			}
			df = &loaded
			days[slot.Date] = df
			order = append(order, slot.Date)
		}
		for _, existing := range df.Slots {
			if existing.TimeSlot == slot.TimeSlot {
				return nil, fmt.Errorf("insert slot %s %s: %w", slot.Date, fmtTick(slot.TimeSlot), ErrDuplicate)
			}
		}
		slot = slot.Clone()
		slot.ID = model.PersistedID(strings.ReplaceAll(slot.Date, "-", "") + "-" + uuid.NewString())
		df.Slots = append(df.Slots, slot)
		out = append(out, slot)
	}
	for _, d := range order {
		if err := s.saveDay(*days[d]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// dateOfID recovers the date embedded in a slot id.
func dateOfID(id string) (string, bool) {
	if len(id) < 9 || id[8] != '-' {
		return "", false
	}
	date := id[0:4] + "-" + id[4:6] + "-" + id[6:8]
	return date, timecalc.ValidDate(date)
}

func (s *fileStore) UpdateSlot(ctx context.Context, id string, patch SlotPatch) (model.TimeSlot, error) {
	if err := ctx.Err(); err != nil {
		return model.TimeSlot{}, err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	date, ok := dateOfID(id)
	if !ok {
		return model.TimeSlot{}, fmt.Errorf("update slot %s: %w", id, ErrNotFound)
	}
	df, err := s.loadDay(date)
	if err != nil {
		return model.TimeSlot{}, err
	}
	for i, slot := range df.Slots {
		if slot.ID.String() != id {
			continue
		}
		if patch.ProjectID != nil {
			slot.ProjectID = *patch.ProjectID
		}
		if patch.SetNote {
			slot.Note = nil
			if patch.Note != nil {
				slot.Note = model.StringPtr(*patch.Note)
			}
		}
		df.Slots[i] = slot
		if err := s.saveDay(df); err != nil {
			return model.TimeSlot{}, err
		}
		return slot.Clone(), nil
	}
	return model.TimeSlot{}, fmt.Errorf("update slot %s: %w", id, ErrNotFound)
}

func (s *fileStore) DeleteSlots(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	byDate := map[string]map[string]bool{}
	for _, id := range ids {
		date, ok := dateOfID(id)
		if !ok {
			continue
		}
		if byDate[date] == nil {
			byDate[date] = map[string]bool{}
		}
		byDate[date][id] = true
	}
	for date, remove := range byDate {
		df, err := s.loadDay(date)
		if err != nil {
			return err
		}
		kept := df.Slots[:0]
		for _, slot := range df.Slots {
			if !remove[slot.ID.String()] {
				kept = append(kept, slot)
			}
		}
		df.Slots = kept
		if err := s.saveDay(df); err != nil {
			return err
		}
	}
	return nil
}

func (s *fileStore) projectsPath() string { return filepath.Join(s.dir, "projects.json") }
func (s *fileStore) settingsPath() string { return filepath.Join(s.dir, "settings.json") }

func (s *fileStore) loadProjects() ([]model.Project, error) {
	var projects []model.Project
	if _, err := s.readJSON(s.projectsPath(), &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

func (s *fileStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	projects, err := s.loadProjects()
	if err != nil {
		return nil, err
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	if projects == nil {
		projects = []model.Project{}
	}
	return projects, nil
}

func (s *fileStore) InsertProject(ctx context.Context, p model.Project) (model.Project, error) {
	if err := ctx.Err(); err != nil {
		return model.Project{}, err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	projects, err := s.loadProjects()
	if err != nil {
		return model.Project{}, err
	}
	for _, existing := range projects {
		if strings.EqualFold(existing.Name, p.Name) {
			return model.Project{}, fmt.Errorf("insert project %q: %w", p.Name, ErrDuplicate)
		}
	}
	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now
	projects = append(projects, p)
	if err := s.writeJSON(s.projectsPath(), projects); err != nil {
		return model.Project{}, err
	}
	return p, nil
}

func (s *fileStore) UpdateProject(ctx context.Context, p model.Project) (model.Project, error) {
	if err := ctx.Err(); err != nil {
		return model.Project{}, err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	projects, err := s.loadProjects()
	if err != nil {
		return model.Project{}, err
	}
	idx := -1
	for i, existing := range projects {
		if existing.ID == p.ID {
			idx = i
		} else if strings.EqualFold(existing.Name, p.Name) {
			return model.Project{}, fmt.Errorf("update project %q: %w", p.Name, ErrDuplicate)
		}
	}
	if idx < 0 {
		return model.Project{}, fmt.Errorf("update project %s: %w", p.ID, ErrNotFound)
	}
	updated := projects[idx]
	updated.Name = p.Name
	updated.Color = p.Color
	updated.Archived = p.Archived
	updated.UpdatedAt = time.Now().UTC()
	projects[idx] = updated
	if err := s.writeJSON(s.projectsPath(), projects); err != nil {
		return model.Project{}, err
	}
	return updated, nil
}

func (s *fileStore) DeleteProject(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	projects, err := s.loadProjects()
	if err != nil {
		return err
	}
	kept := projects[:0]
	for _, p := range projects {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(projects) {
		return fmt.Errorf("delete project %s: %w", id, ErrNotFound)
	}
	if err := s.writeJSON(s.projectsPath(), kept); err != nil {
		return err
	}

	dates, err := s.dates()
	if err != nil {
		return err
	}
	for _, d := range dates {
		df, err := s.loadDay(d)
		if err != nil {
			return err
		}
		slots := df.Slots[:0]
		for _, slot := range df.Slots {
			if slot.ProjectID != id {
				slots = append(slots, slot)
			}
		}
		if len(slots) != len(df.Slots) {
			df.Slots = slots
			if err := s.saveDay(df); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *fileStore) GetSettings(ctx context.Context) (model.UserSettings, error) {
	if err := ctx.Err(); err != nil {
		return model.UserSettings{}, err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	var settings model.UserSettings
	found, err := s.readJSON(s.settingsPath(), &settings)
	if err != nil {
		return model.UserSettings{}, err
	}
	if !found {
		return model.UserSettings{}, fmt.Errorf("settings: %w", ErrNotFound)
	}
	return settings, nil
}

func (s *fileStore) InsertSettings(ctx context.Context, settings model.UserSettings) (model.UserSettings, error) {
	if err := ctx.Err(); err != nil {
		return model.UserSettings{}, err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	var existing model.UserSettings
	found, err := s.readJSON(s.settingsPath(), &existing)
	if err != nil {
		return model.UserSettings{}, err
	}
	if found {
		return model.UserSettings{}, fmt.Errorf("insert settings: %w", ErrDuplicate)
	}
	settings.ID = uuid.NewString()
	if err := s.writeJSON(s.settingsPath(), settings); err != nil {
		return model.UserSettings{}, err
	}
	return settings, nil
}

func (s *fileStore) UpdateSettings(ctx context.Context, id string, patch SettingsPatch) (model.UserSettings, error) {
	if err := ctx.Err(); err != nil {
		return model.UserSettings{}, err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()

	var settings model.UserSettings
	found, err := s.readJSON(s.settingsPath(), &settings)
	if err != nil {
		return model.UserSettings{}, err
	}
	if !found || settings.ID != id {
		return model.UserSettings{}, fmt.Errorf("update settings %s: %w", id, ErrNotFound)
	}
	settings = patch.Apply(settings)
	if err := s.writeJSON(s.settingsPath(), settings); err != nil {
		return model.UserSettings{}, err
	}
	return settings, nil
}
