package projects_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/projects"
	"github.com/Tiliavir/quarter-tracker/internal/storage"
)

var errRemote = errors.New("remote unavailable")

// flaky fails every call while fail is set.
type flaky struct {
	storage.ProjectStore
	fail bool
	// during runs inside the remote call, before it returns.
	during func()
}

func (f *flaky) err() error {
	if f.during != nil {
		f.during()
	}
	if f.fail {
		return errRemote
	}
	return nil
}

func (f *flaky) ListProjects(ctx context.Context) ([]model.Project, error) {
	if err := f.err(); err != nil {
		return nil, err
	}
	return f.ProjectStore.ListProjects(ctx)
}

func (f *flaky) InsertProject(ctx context.Context, p model.Project) (model.Project, error) {
	if err := f.err(); err != nil {
		return model.Project{}, err
	}
	return f.ProjectStore.InsertProject(ctx, p)
}

func (f *flaky) UpdateProject(ctx context.Context, p model.Project) (model.Project, error) {
	if err := f.err(); err != nil {
		return model.Project{}, err
	}
	return f.ProjectStore.UpdateProject(ctx, p)
}

func (f *flaky) DeleteProject(ctx context.Context, id string) error {
	if err := f.err(); err != nil {
		return err
	}
	return f.ProjectStore.DeleteProject(ctx, id)
}

func setup(t *testing.T, names ...string) (*projects.Service, *flaky, storage.Store) {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemory().ForUser("u1")
	for _, n := range names {
		_, err := store.InsertProject(ctx, model.Project{Name: n, Color: "#112233"})
		require.NoError(t, err)
	}
	remote := &flaky{ProjectStore: store}
	svc := projects.New(remote)
	require.NoError(t, svc.Load(ctx))
	return svc, remote, store
}

func names(ps []model.Project) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Name)
	}
	return out
}

func TestLoadOrdersByName(t *testing.T) {
	svc, _, _ := setup(t, "beta", "Alpha", "gamma")
	require.Equal(t, []string{"Alpha", "beta", "gamma"}, names(svc.All()))
}

func TestLoadFailureKeepsList(t *testing.T) {
	svc, remote, _ := setup(t, "Alpha")
	remote.fail = true
	require.ErrorIs(t, svc.Load(context.Background()), errRemote)
	require.Equal(t, []string{"Alpha"}, names(svc.All()))
}

func TestAdd(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory().ForUser("u1")
	_, err := store.InsertProject(ctx, model.Project{Name: "Beta", Color: "#112233"})
	require.NoError(t, err)

	remote := &flaky{ProjectStore: store}
	svc := projects.New(remote, projects.WithIDGenerator(func() string { return "tmp-1" }))
	require.NoError(t, svc.Load(ctx))

	var sawTemp bool
	remote.during = func() {
		p, ok := svc.ByName("alpha")
		sawTemp = ok && p.ID == "tmp-1"
	}

	p, err := svc.Add(ctx, "  Alpha ", "#AABBCC")
	require.NoError(t, err)
	require.True(t, sawTemp, "temporary project must be visible while the insert is in flight")
	require.NotEqual(t, "tmp-1", p.ID)
	require.Equal(t, "Alpha", p.Name)
	require.Equal(t, "#aabbcc", p.Color)
	require.Equal(t, []string{"Alpha", "Beta"}, names(svc.All()))

	remoteList, err := store.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, remoteList, 2)
}

func TestAddDefaultsColor(t *testing.T) {
	svc, _, _ := setup(t)
	p, err := svc.Add(context.Background(), "Alpha", "")
	require.NoError(t, err)
	require.Equal(t, projects.DefaultColor, p.Color)
}

func TestAddValidation(t *testing.T) {
	svc, _, _ := setup(t, "Alpha")
	ctx := context.Background()

	tests := []struct {
		name, project, color string
		want                 error
	}{
		{"blank name", "   ", "#112233", projects.ErrInvalidName},
		{"bad color", "Beta", "red", projects.ErrInvalidColor},
		{"short color", "Beta", "#123", projects.ErrInvalidColor},
		{"duplicate ignoring case", "ALPHA", "#112233", projects.ErrDuplicateName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Add(ctx, tt.project, tt.color)
			require.ErrorIs(t, err, tt.want)
			require.Equal(t, []string{"Alpha"}, names(svc.All()))
		})
	}
}

func TestAddRollsBack(t *testing.T) {
	svc, remote, _ := setup(t, "Alpha")
	remote.fail = true
	_, err := svc.Add(context.Background(), "Beta", "#112233")
	require.ErrorIs(t, err, errRemote)
	require.Equal(t, []string{"Alpha"}, names(svc.All()))
}

func TestUpdate(t *testing.T) {
	svc, _, store := setup(t, "Alpha", "Beta")
	ctx := context.Background()
	alpha, _ := svc.ByName("Alpha")

	p, err := svc.Update(ctx, alpha.ID, "Zeta", "#000000")
	require.NoError(t, err)
	require.Equal(t, "Zeta", p.Name)
	require.Equal(t, []string{"Beta", "Zeta"}, names(svc.All()))

	remoteList, err := store.ListProjects(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Beta", "Zeta"}, names(remoteList))

	_, err = svc.Update(ctx, alpha.ID, "beta", "#000000")
	require.ErrorIs(t, err, projects.ErrDuplicateName)

	_, err = svc.Update(ctx, "missing", "Gamma", "#000000")
	require.ErrorIs(t, err, projects.ErrUnknown)
}

func TestUpdateRollsBack(t *testing.T) {
	svc, remote, _ := setup(t, "Alpha")
	alpha, _ := svc.ByName("Alpha")
	remote.fail = true

	_, err := svc.Update(context.Background(), alpha.ID, "Omega", "#000000")
	require.ErrorIs(t, err, errRemote)
	got, ok := svc.ByID(alpha.ID)
	require.True(t, ok)
	require.Equal(t, alpha, got)
}

func TestToggleArchive(t *testing.T) {
	svc, remote, _ := setup(t, "Alpha", "Beta")
	ctx := context.Background()
	alpha, _ := svc.ByName("Alpha")

	p, err := svc.ToggleArchive(ctx, alpha.ID)
	require.NoError(t, err)
	require.True(t, p.Archived)
	require.Equal(t, []string{"Beta"}, names(svc.Active()))

	remote.fail = true
	_, err = svc.ToggleArchive(ctx, alpha.ID)
	require.Error(t, err)
	got, _ := svc.ByID(alpha.ID)
	require.True(t, got.Archived)

	remote.fail = false
	p, err = svc.ToggleArchive(ctx, alpha.ID)
	require.NoError(t, err)
	require.False(t, p.Archived)
	require.Len(t, svc.Active(), 2)
}

func TestDelete(t *testing.T) {
	svc, remote, store := setup(t, "Alpha", "Beta")
	ctx := context.Background()
	alpha, _ := svc.ByName("Alpha")

	_, err := store.InsertSlots(ctx, []model.TimeSlot{{ProjectID: alpha.ID, Date: "2026-02-27", TimeSlot: 9}})
	require.NoError(t, err)

	remote.fail = true
	require.ErrorIs(t, svc.Delete(ctx, alpha.ID), errRemote)
	require.Equal(t, []string{"Alpha", "Beta"}, names(svc.All()))

	remote.fail = false
	require.NoError(t, svc.Delete(ctx, alpha.ID))
	require.Equal(t, []string{"Beta"}, names(svc.All()))

	slots, err := store.SelectSlots(ctx, storage.SlotQuery{})
	require.NoError(t, err)
	require.Empty(t, slots)

	require.ErrorIs(t, svc.Delete(ctx, alpha.ID), projects.ErrUnknown)
}

func TestPendingProjectIsBusy(t *testing.T) {
	svc, remote, _ := setup(t, "Alpha")
	ctx := context.Background()
	alpha, _ := svc.ByName("Alpha")

	var nested error
	remote.during = func() {
		remote.during = nil
		_, nested = svc.ToggleArchive(ctx, alpha.ID)
	}
	_, err := svc.Update(ctx, alpha.ID, "Alpha 2", "#000000")
	require.NoError(t, err)
	require.ErrorIs(t, nested, projects.ErrBusy)
}

func TestResolve(t *testing.T) {
	svc, _, _ := setup(t, "Alpha")
	alpha, _ := svc.ByName("Alpha")

	p, err := svc.Resolve(alpha.ID)
	require.NoError(t, err)
	require.Equal(t, alpha, p)

	p, err = svc.Resolve("alpha")
	require.NoError(t, err)
	require.Equal(t, alpha, p)

	_, err = svc.Resolve("nope")
	require.ErrorIs(t, err, projects.ErrUnknown)
}
