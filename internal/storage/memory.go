package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Tiliavir/quarter-tracker/internal/model"
)

// Memory is an in-process Backend. Data lives as long as the value does.
type Memory struct {
	mu    sync.Mutex
	users map[string]*memoryUser
}

type memoryUser struct {
	slots    map[string]model.TimeSlot
	keys     map[model.SlotKey]string
	projects map[string]model.Project
	settings *model.UserSettings
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{users: map[string]*memoryUser{}}
}

// ForUser implements Backend.
func (m *Memory) ForUser(userID string) Store {
	return &memoryStore{m: m, userID: userID}
}

// Migrate implements Backend.
func (m *Memory) Migrate(context.Context) error { return nil }

// Close implements Backend.
func (m *Memory) Close() error { return nil }

func (m *Memory) user(id string) *memoryUser {
	u, ok := m.users[id]
	if !ok {
		u = &memoryUser{
			slots:    map[string]model.TimeSlot{},
			keys:     map[model.SlotKey]string{},
			projects: map[string]model.Project{},
		}
		m.users[id] = u
	}
	return u
}

type memoryStore struct {
	m      *Memory
	userID string
}

func (s *memoryStore) SelectSlots(ctx context.Context, q SlotQuery) ([]model.TimeSlot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	u := s.m.user(s.userID)
	out := []model.TimeSlot{}
	for _, slot := range u.slots {
		if q.Matches(slot.Date) {
			out = append(out, slot.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return model.Less(out[i], out[j]) })
	return out, nil
}

func (s *memoryStore) InsertSlots(ctx context.Context, slots []model.TimeSlot) ([]model.TimeSlot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	u := s.m.user(s.userID)
	seen := map[model.SlotKey]bool{}
	for _, slot := range slots {
		k := slot.Key()
		if _, taken := u.keys[k]; taken || seen[k] {
			return nil, fmt.Errorf("insert slot %s %s: %w", slot.Date, fmtTick(slot.TimeSlot), ErrDuplicate)
		}
		seen[k] = true
	}
	out := make([]model.TimeSlot, 0, len(slots))
	for _, slot := range slots {
		slot = slot.Clone()
		slot.ID = model.PersistedID(uuid.NewString())
		u.slots[slot.ID.String()] = slot
		u.keys[slot.Key()] = slot.ID.String()
		out = append(out, slot.Clone())
	}
	return out, nil
}

func (s *memoryStore) UpdateSlot(ctx context.Context, id string, patch SlotPatch) (model.TimeSlot, error) {
	if err := ctx.Err(); err != nil {
		return model.TimeSlot{}, err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	u := s.m.user(s.userID)
	slot, ok := u.slots[id]
	if !ok {
		return model.TimeSlot{}, fmt.Errorf("update slot %s: %w", id, ErrNotFound)
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
	u.slots[id] = slot
	return slot.Clone(), nil
}

func (s *memoryStore) DeleteSlots(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	u := s.m.user(s.userID)
	for _, id := range ids {
		if slot, ok := u.slots[id]; ok {
			delete(u.keys, slot.Key())
			delete(u.slots, id)
		}
	}
	return nil
}

func (s *memoryStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	u := s.m.user(s.userID)
	out := make([]model.Project, 0, len(u.projects))
	for _, p := range u.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memoryStore) InsertProject(ctx context.Context, p model.Project) (model.Project, error) {
	if err := ctx.Err(); err != nil {
		return model.Project{}, err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	u := s.m.user(s.userID)
	for _, existing := range u.projects {
		if strings.EqualFold(existing.Name, p.Name) {
			return model.Project{}, fmt.Errorf("insert project %q: %w", p.Name, ErrDuplicate)
		}
	}
	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now
	u.projects[p.ID] = p
	return p, nil
}

func (s *memoryStore) UpdateProject(ctx context.Context, p model.Project) (model.Project, error) {
	if err := ctx.Err(); err != nil {
		return model.Project{}, err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	u := s.m.user(s.userID)
	existing, ok := u.projects[p.ID]
	if !ok {
		return model.Project{}, fmt.Errorf("update project %s: %w", p.ID, ErrNotFound)
	}
	for _, other := range u.projects {
		if other.ID != p.ID && strings.EqualFold(other.Name, p.Name) {
			return model.Project{}, fmt.Errorf("update project %q: %w", p.Name, ErrDuplicate)
		}
	}
	existing.Name = p.Name
	existing.Color = p.Color
	existing.Archived = p.Archived
	existing.UpdatedAt = time.Now().UTC()
	u.projects[p.ID] = existing
	return existing, nil
}

func (s *memoryStore) DeleteProject(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	u := s.m.user(s.userID)
	if _, ok := u.projects[id]; !ok {
		return fmt.Errorf("delete project %s: %w", id, ErrNotFound)
	}
	delete(u.projects, id)
	for sid, slot := range u.slots {
		if slot.ProjectID == id {
			delete(u.keys, slot.Key())
			delete(u.slots, sid)
		}
	}
	return nil
}

func (s *memoryStore) GetSettings(ctx context.Context) (model.UserSettings, error) {
	if err := ctx.Err(); err != nil {
		return model.UserSettings{}, err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	u := s.m.user(s.userID)
	if u.settings == nil {
		return model.UserSettings{}, fmt.Errorf("settings for %s: %w", s.userID, ErrNotFound)
	}
	return *u.settings, nil
}

func (s *memoryStore) InsertSettings(ctx context.Context, settings model.UserSettings) (model.UserSettings, error) {
	if err := ctx.Err(); err != nil {
		return model.UserSettings{}, err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	u := s.m.user(s.userID)
	if u.settings != nil {
		return model.UserSettings{}, fmt.Errorf("insert settings: %w", ErrDuplicate)
	}
	settings.ID = uuid.NewString()
	u.settings = &settings
	return settings, nil
}

func (s *memoryStore) UpdateSettings(ctx context.Context, id string, patch SettingsPatch) (model.UserSettings, error) {
	if err := ctx.Err(); err != nil {
		return model.UserSettings{}, err
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()

	u := s.m.user(s.userID)
	if u.settings == nil || u.settings.ID != id {
		return model.UserSettings{}, fmt.Errorf("update settings %s: %w", id, ErrNotFound)
	}
	updated := patch.Apply(*u.settings)
	u.settings = &updated
	return updated, nil
}

func fmtTick(h float64) string {
	return fmt.Sprintf("%05.2f", h)
}
