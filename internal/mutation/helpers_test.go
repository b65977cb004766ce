package mutation_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/mutation"
	"github.com/Tiliavir/quarter-tracker/internal/slots"
	"github.com/Tiliavir/quarter-tracker/internal/storage"
)

const day = "2026-02-27"

var (
	idCmp      = cmp.Comparer(func(a, b model.SlotID) bool { return a == b })
	errOffline = errors.New("remote store offline")
)

// flakyStore wraps a real store and can fail or block selected calls.
type flakyStore struct {
	storage.Store

	mu    sync.Mutex
	calls map[string]int
	fail  map[string]func(n int) error
	hooks map[string]func()

	// dropInsertReply makes InsertSlots persist the slots but reply with none.
	dropInsertReply bool
}

func newFlaky(s storage.Store) *flakyStore {
	return &flakyStore{
		Store: s,
		calls: map[string]int{},
		fail:  map[string]func(int) error{},
		hooks: map[string]func(){},
	}
}

// failAlways makes every call of method fail with err.
func (f *flakyStore) failAlways(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[method] = func(int) error { return err }
}

// failNth makes only the nth (1-based) call of method fail.
func (f *flakyStore) failNth(method string, nth int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[method] = func(n int) error {
		if n == nth {
			return err
		}
		return nil
	}
}

func (f *flakyStore) hook(method string, h func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks[method] = h
}

func (f *flakyStore) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *flakyStore) enter(method string) error {
	f.mu.Lock()
	f.calls[method]++
	n := f.calls[method]
	h := f.hooks[method]
	fail := f.fail[method]
	f.mu.Unlock()

	if h != nil {
		h()
	}
	if fail != nil {
		return fail(n)
	}
	return nil
}

func (f *flakyStore) InsertSlots(ctx context.Context, s []model.TimeSlot) ([]model.TimeSlot, error) {
	if err := f.enter("InsertSlots"); err != nil {
		return nil, err
	}
	got, err := f.Store.InsertSlots(ctx, s)
	f.mu.Lock()
	drop := f.dropInsertReply
	f.mu.Unlock()
	if drop && err == nil {
		return []model.TimeSlot{}, nil
	}
	return got, err
}

func (f *flakyStore) UpdateSlot(ctx context.Context, id string, p storage.SlotPatch) (model.TimeSlot, error) {
	if err := f.enter("UpdateSlot"); err != nil {
		return model.TimeSlot{}, err
	}
	return f.Store.UpdateSlot(ctx, id, p)
}

func (f *flakyStore) DeleteSlots(ctx context.Context, ids []string) error {
	if err := f.enter("DeleteSlots"); err != nil {
		return err
	}
	return f.Store.DeleteSlots(ctx, ids)
}

type recordingNotifier struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (n *recordingNotifier) Info(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, msg)
}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

type fixture struct {
	engine   *mutation.Engine
	store    *slots.Store
	remote   *flakyStore
	notifier *recordingNotifier
}

// setup seeds the remote store, loads day into a slot store and returns an
// engine over both.
func setup(t *testing.T, seed ...model.TimeSlot) *fixture {
	t.Helper()
	ctx := context.Background()

	mem := storage.NewMemory().ForUser("u")
	if len(seed) > 0 {
		_, err := mem.InsertSlots(ctx, seed)
		require.NoError(t, err)
	}
	remote := newFlaky(mem)
	st := slots.New(remote, nil)
	require.NoError(t, st.Load(ctx, day, day))

	n := &recordingNotifier{}
	return &fixture{
		engine:   mutation.New(st, remote, mutation.WithNotifier(n)),
		store:    st,
		remote:   remote,
		notifier: n,
	}
}

func slot(project string, tick float64) model.TimeSlot {
	return model.TimeSlot{ProjectID: project, Date: day, TimeSlot: tick}
}

func noted(project string, tick float64, note string) model.TimeSlot {
	s := slot(project, tick)
	s.Note = model.StringPtr(note)
	return s
}

// layout renders slots as tick -> project[:note] for compact assertions.
func layout(slots []model.TimeSlot) map[float64]string {
	out := map[float64]string{}
	for _, s := range slots {
		v := s.ProjectID
		if s.Note != nil {
			v += ":" + *s.Note
		}
		out[s.TimeSlot] = v
	}
	return out
}

func (f *fixture) remoteLayout(t *testing.T) map[float64]string {
	t.Helper()
	all, err := f.remote.Store.SelectSlots(context.Background(), storage.SlotQuery{Date: day})
	require.NoError(t, err)
	return layout(all)
}

func (f *fixture) requireUnchangedSince(t *testing.T, before []model.TimeSlot) {
	t.Helper()
	if diff := cmp.Diff(before, f.store.All(), idCmp); diff != "" {
		t.Fatalf("local store differs from its state before the mutation (-before +after):\n%s", diff)
	}
}

func confirmNever(t *testing.T) mutation.Confirmer {
	return mutation.ConfirmFunc(func(s model.TimeSlot) bool {
		t.Errorf("confirmer consulted for slot at %v", s.TimeSlot)
		return false
	})
}

var (
	confirmYes = mutation.ConfirmFunc(func(model.TimeSlot) bool { return true })
	confirmNo  = mutation.ConfirmFunc(func(model.TimeSlot) bool { return false })
)
