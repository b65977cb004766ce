package storage_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/storage"
)

// backends returns every backend that runs without external services.
func backends(t *testing.T) map[string]storage.Backend {
	t.Helper()
	ctx := context.Background()

	sqlite, err := storage.Open(ctx, storage.Options{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "qt.db")})
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	file, err := storage.Open(ctx, storage.Options{Driver: "file", Path: t.TempDir()})
	require.NoError(t, err)

	return map[string]storage.Backend{
		"memory": storage.NewMemory(),
		"file":   file,
		"sqlite": sqlite,
	}
}

func slot(project, date string, tick float64) model.TimeSlot {
	return model.TimeSlot{ProjectID: project, Date: date, TimeSlot: tick}
}

func TestSlotLifecycle(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := b.ForUser("alice")

			inserted, err := s.InsertSlots(ctx, []model.TimeSlot{
				slot("p1", "2026-02-27", 9.25),
				slot("p1", "2026-02-27", 9),
				slot("p2", "2026-02-28", 10),
			})
			require.NoError(t, err)
			require.Len(t, inserted, 3)
			for _, s := range inserted {
				require.False(t, s.ID.IsZero())
				require.False(t, s.ID.IsLocal())
			}

			day, err := s.SelectSlots(ctx, storage.SlotQuery{Date: "2026-02-27"})
			require.NoError(t, err)
			require.Len(t, day, 2)
			require.Equal(t, 9.0, day[0].TimeSlot)
			require.Equal(t, 9.25, day[1].TimeSlot)

			all, err := s.SelectSlots(ctx, storage.SlotQuery{})
			require.NoError(t, err)
			require.Len(t, all, 3)

			ranged, err := s.SelectSlots(ctx, storage.SlotQuery{From: "2026-02-28", To: "2026-03-01"})
			require.NoError(t, err)
			require.Len(t, ranged, 1)
			require.Equal(t, "p2", ranged[0].ProjectID)

			note := "standup"
			updated, err := s.UpdateSlot(ctx, day[0].ID.String(), storage.SlotPatch{SetNote: true, Note: &note})
			require.NoError(t, err)
			require.Equal(t, "standup", updated.NoteText())
			require.Equal(t, "p1", updated.ProjectID)

			other := "p3"
			updated, err = s.UpdateSlot(ctx, day[0].ID.String(), storage.SlotPatch{ProjectID: &other, SetNote: true})
			require.NoError(t, err)
			require.Equal(t, "p3", updated.ProjectID)
			require.Nil(t, updated.Note)

			require.NoError(t, s.DeleteSlots(ctx, []string{day[0].ID.String(), "missing"}))
			day, err = s.SelectSlots(ctx, storage.SlotQuery{Date: "2026-02-27"})
			require.NoError(t, err)
			require.Len(t, day, 1)
		})
	}
}

func TestInsertSlotsDuplicateIsAtomic(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := b.ForUser("alice")

			_, err := s.InsertSlots(ctx, []model.TimeSlot{slot("p1", "2026-02-27", 9)})
			require.NoError(t, err)

			_, err = s.InsertSlots(ctx, []model.TimeSlot{
				slot("p2", "2026-02-27", 8.75),
				slot("p2", "2026-02-27", 9),
			})
			require.ErrorIs(t, err, storage.ErrDuplicate)

			day, err := s.SelectSlots(ctx, storage.SlotQuery{Date: "2026-02-27"})
			require.NoError(t, err)
			require.Len(t, day, 1, "a failed batch must not leave partial rows")
			require.Equal(t, "p1", day[0].ProjectID)
		})
	}
}

func TestUsersAreIsolated(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := b.ForUser("alice").InsertSlots(ctx, []model.TimeSlot{slot("p1", "2026-02-27", 9)})
			require.NoError(t, err)

			// Same quarter hour for another user is not a conflict.
			_, err = b.ForUser("bob").InsertSlots(ctx, []model.TimeSlot{slot("p1", "2026-02-27", 9)})
			require.NoError(t, err)

			bob, err := b.ForUser("bob").SelectSlots(ctx, storage.SlotQuery{})
			require.NoError(t, err)
			require.Len(t, bob, 1)
		})
	}
}

func TestUpdateSlotNotFound(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			pid := "p1"
			_, err := b.ForUser("alice").UpdateSlot(context.Background(), "20260227-nope", storage.SlotPatch{ProjectID: &pid})
			require.ErrorIs(t, err, storage.ErrNotFound)
		})
	}
}

func TestProjects(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := b.ForUser("alice")

			p, err := s.InsertProject(ctx, model.Project{Name: "ECM", Color: "#ff0000"})
			require.NoError(t, err)
			require.NotEmpty(t, p.ID)

			_, err = s.InsertProject(ctx, model.Project{Name: "ecm", Color: "#00ff00"})
			require.ErrorIs(t, err, storage.ErrDuplicate)

			other, err := s.InsertProject(ctx, model.Project{Name: "Admin", Color: "#00ff00"})
			require.NoError(t, err)

			other.Name = "Ecm"
			_, err = s.UpdateProject(ctx, other)
			require.ErrorIs(t, err, storage.ErrDuplicate)

			p.Archived = true
			p, err = s.UpdateProject(ctx, p)
			require.NoError(t, err)
			require.True(t, p.Archived)

			list, err := s.ListProjects(ctx)
			require.NoError(t, err)
			require.Len(t, list, 2)
			require.Equal(t, "Admin", list[0].Name)

			_, err = s.InsertSlots(ctx, []model.TimeSlot{slot(p.ID, "2026-02-27", 9), slot(other.ID, "2026-02-27", 10)})
			require.NoError(t, err)

			require.NoError(t, s.DeleteProject(ctx, p.ID))
			slots, err := s.SelectSlots(ctx, storage.SlotQuery{})
			require.NoError(t, err)
			require.Len(t, slots, 1)
			require.Equal(t, other.ID, slots[0].ProjectID)

			require.ErrorIs(t, s.DeleteProject(ctx, p.ID), storage.ErrNotFound)
		})
	}
}

func TestSettings(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := b.ForUser("alice")

			_, err := s.GetSettings(ctx)
			require.ErrorIs(t, err, storage.ErrNotFound)

			created, err := s.InsertSettings(ctx, model.DefaultSettings())
			require.NoError(t, err)
			require.NotEmpty(t, created.ID)

			_, err = s.InsertSettings(ctx, model.DefaultSettings())
			require.ErrorIs(t, err, storage.ErrDuplicate)

			start, inc, from := 7, 15, "2026-01-01"
			updated, err := s.UpdateSettings(ctx, created.ID, storage.SettingsPatch{
				DayStartHour:   &start,
				TimeIncrement:  &inc,
				StatsStartDate: &from,
			})
			require.NoError(t, err)
			require.Equal(t, 7, updated.DayStartHour)
			require.Equal(t, 24, updated.DayEndHour)
			require.Equal(t, 15, updated.TimeIncrement)
			require.Equal(t, "2026-01-01", *updated.StatsStartDate)

			empty := ""
			updated, err = s.UpdateSettings(ctx, created.ID, storage.SettingsPatch{StatsStartDate: &empty})
			require.NoError(t, err)
			require.Nil(t, updated.StatsStartDate)

			got, err := s.GetSettings(ctx)
			require.NoError(t, err)
			require.Equal(t, updated, got)
		})
	}
}

func TestFileBackendCorruptDay(t *testing.T) {
	base := t.TempDir()
	b := storage.NewFileBackend(base)
	path := filepath.Join(base, "users", "alice", "2026", "02", "27.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := b.ForUser("alice").SelectSlots(context.Background(), storage.SlotQuery{Date: "2026-02-27"})
	if err == nil {
		t.Fatal("expected error for corrupt JSON, got nil")
	}
	if _, err2 := os.Stat(path + ".corrupt"); os.IsNotExist(err2) {
		t.Error("expected backup file to exist after corrupt JSON")
	}
}

func TestFileBackendRemovesEmptyDay(t *testing.T) {
	base := t.TempDir()
	s := storage.NewFileBackend(base).ForUser("alice")
	ctx := context.Background()

	inserted, err := s.InsertSlots(ctx, []model.TimeSlot{slot("p1", "2026-02-27", 9)})
	if err != nil {
		t.Fatalf("InsertSlots: %v", err)
	}
	path := filepath.Join(base, "users", "alice", "2026", "02", "27.json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("day file missing after insert: %v", err)
	}
	if err := s.DeleteSlots(ctx, []string{inserted[0].ID.String()}); err != nil {
		t.Fatalf("DeleteSlots: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("day file still present after deleting its last slot: %v", err)
	}
}

func TestSettingsPatchApply(t *testing.T) {
	end := 18
	none := ""
	from := "2026-01-01"
	base := model.DefaultSettings()
	base.StatsStartDate = &from

	got := storage.SettingsPatch{DayEndHour: &end, StatsStartDate: &none}.Apply(base)
	if got.DayEndHour != 18 || got.DayStartHour != 0 || got.StatsStartDate != nil {
		t.Errorf("Apply() = %+v", got)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := storage.Open(context.Background(), storage.Options{Driver: "mongo"})
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
