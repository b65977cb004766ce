package mutation_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/mutation"
	"github.com/Tiliavir/quarter-tracker/internal/storage"
)

func TestToggleInsertsWithTemporaryID(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var midFlight model.TimeSlot
	f.remote.hook("InsertSlots", func() {
		s, ok := f.store.FindAt(day, 10)
		require.True(t, ok, "optimistic slot must be visible during the remote call")
		midFlight = s
	})

	res := f.engine.Toggle(ctx, "A", day, 10, mutation.Forbid, nil)
	require.Equal(t, mutation.Committed, res.Outcome)
	require.NoError(t, res.Err)
	require.True(t, midFlight.ID.IsLocal())

	got, ok := f.store.FindAt(day, 10)
	require.True(t, ok)
	require.False(t, got.ID.IsLocal())
	require.Equal(t, res.Slots[0].ID, got.ID)
	require.Equal(t, map[float64]string{10: "A"}, f.remoteLayout(t))
}

func TestToggleInsertFailureRollsBack(t *testing.T) {
	f := setup(t)
	f.remote.failAlways("InsertSlots", errOffline)

	res := f.engine.Toggle(context.Background(), "A", day, 10, mutation.Forbid, nil)
	require.Equal(t, mutation.RolledBack, res.Outcome)

	var mErr *mutation.MutationError
	require.ErrorAs(t, res.Err, &mErr)
	require.ErrorIs(t, res.Err, errOffline)
	require.Empty(t, f.store.All())
	require.Len(t, f.notifier.errors, 1)
	require.False(t, f.engine.Pending(day, 10))
}

func TestToggleSameProjectErases(t *testing.T) {
	f := setup(t, slot("A", 10))
	ctx := context.Background()

	res := f.engine.Toggle(ctx, "A", day, 10, mutation.Forbid, nil)
	require.Equal(t, mutation.Committed, res.Outcome)
	require.Empty(t, f.store.All())
	require.Empty(t, f.remoteLayout(t))

	res = f.engine.Toggle(ctx, "A", day, 10, mutation.Forbid, nil)
	require.Equal(t, mutation.Committed, res.Outcome)
	require.Equal(t, map[float64]string{10: "A"}, layout(f.store.All()))
}

func TestToggleEraseFailureRestoresSlot(t *testing.T) {
	f := setup(t, noted("A", 10, "keep"))
	before := f.store.All()
	f.remote.failAlways("DeleteSlots", errOffline)

	res := f.engine.Toggle(context.Background(), "A", day, 10, mutation.Forbid, nil)
	require.Equal(t, mutation.RolledBack, res.Outcome)
	f.requireUnchangedSince(t, before)
}

func TestToggleEraseMovesNoteToNextSlot(t *testing.T) {
	f := setup(t, noted("A", 9, "N"), slot("A", 9.25), slot("A", 9.5))
	ctx := context.Background()

	res := f.engine.Toggle(ctx, "A", day, 9, mutation.Forbid, nil)
	require.Equal(t, mutation.Committed, res.Outcome)

	want := map[float64]string{9.25: "A", 9.5: "A"}
	require.Equal(t, want, layout(f.store.All()))
	require.Equal(t, want, f.remoteLayout(t))

	next, ok := f.store.FindAt(day, 9.25)
	require.True(t, ok)
	require.Equal(t, "N", next.NoteText())

	remote, err := f.remote.Store.SelectSlots(ctx, storage.SlotQuery{Date: day})
	require.NoError(t, err)
	require.Equal(t, "N", remote[0].NoteText())
}

func TestToggleOtherProject(t *testing.T) {
	tests := []struct {
		name    string
		policy  mutation.ClaimPolicy
		outcome mutation.Outcome
		want    string
	}{
		{"forbid", mutation.Forbid, mutation.Rejected, "B"},
		{"skip", mutation.SkipOccupied, mutation.Unchanged, "B"},
		{"replace", mutation.Replace, mutation.Committed, "A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, slot("B", 10))
			res := f.engine.Toggle(context.Background(), "A", day, 10, tt.policy, confirmNever(t))
			require.Equal(t, tt.outcome, res.Outcome)
			require.Equal(t, map[float64]string{10: tt.want}, layout(f.store.All()))
			require.Equal(t, map[float64]string{10: tt.want}, f.remoteLayout(t))
			if tt.outcome == mutation.Rejected {
				var vErr *mutation.ValidationError
				require.ErrorAs(t, res.Err, &vErr)
				require.Zero(t, f.remote.count("InsertSlots")+f.remote.count("UpdateSlot")+f.remote.count("DeleteSlots"))
			}
		})
	}
}

func TestToggleRejectsBadInput(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	for name, res := range map[string]mutation.Result{
		"no project": f.engine.Toggle(ctx, "", day, 10, mutation.Forbid, nil),
		"off grid":   f.engine.Toggle(ctx, "A", day, 10.1, mutation.Forbid, nil),
		"past day":   f.engine.Toggle(ctx, "A", day, 24, mutation.Forbid, nil),
		"bad date":   f.engine.Toggle(ctx, "A", "27.02.2026", 10, mutation.Forbid, nil),
	} {
		require.Equal(t, mutation.Rejected, res.Outcome, name)
	}
	require.Zero(t, f.remote.count("InsertSlots"))
}

func TestAddSlotsSkipsOccupied(t *testing.T) {
	f := setup(t, slot("B", 9.25), slot("B", 9.5))

	res := f.engine.AddSlots(context.Background(), "A", day, 9, 10)
	require.Equal(t, mutation.Committed, res.Outcome)
	require.Len(t, res.Slots, 2)

	want := map[float64]string{9: "A", 9.25: "B", 9.5: "B", 9.75: "A"}
	require.Equal(t, want, layout(f.store.All()))
	require.Equal(t, want, f.remoteLayout(t))
	for _, s := range f.store.All() {
		require.False(t, s.ID.IsLocal())
	}
}

func TestAddSlotsIsIdempotent(t *testing.T) {
	f := setup(t, slot("B", 9.5))
	ctx := context.Background()

	require.Equal(t, mutation.Committed, f.engine.AddSlots(ctx, "A", day, 9, 11).Outcome)
	once := f.store.All()

	res := f.engine.AddSlots(ctx, "A", day, 9, 11)
	require.Equal(t, mutation.Unchanged, res.Outcome)
	f.requireUnchangedSince(t, once)
	require.Equal(t, 1, f.remote.count("InsertSlots"))
}

func TestAddSlotsRejectsBadRange(t *testing.T) {
	f := setup(t)
	for _, r := range [][2]float64{{10, 10}, {11, 10}, {9.1, 10}, {23, 24.25}, {-1, 1}} {
		res := f.engine.AddSlots(context.Background(), "A", day, r[0], r[1])
		require.Equal(t, mutation.Rejected, res.Outcome, "range %v", r)
	}
}

func TestAddSlotsUntilMidnight(t *testing.T) {
	f := setup(t)
	res := f.engine.AddSlots(context.Background(), "A", day, 23.5, 24)
	require.Equal(t, mutation.Committed, res.Outcome)
	require.Equal(t, map[float64]string{23.5: "A", 23.75: "A"}, layout(f.store.All()))
}

func TestInsertConflictResyncs(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// Someone else books 10:00 after the date was loaded.
	_, err := f.remote.Store.InsertSlots(ctx, []model.TimeSlot{slot("B", 10)})
	require.NoError(t, err)

	res := f.engine.AddSlots(ctx, "A", day, 9.75, 10.25)
	require.Equal(t, mutation.Resynced, res.Outcome)

	var cErr *mutation.ConflictError
	require.ErrorAs(t, res.Err, &cErr)
	require.ErrorIs(t, res.Err, storage.ErrDuplicate)
	require.Equal(t, day, cErr.Date)

	require.Equal(t, map[float64]string{10: "B"}, layout(f.store.All()))
	for _, s := range f.store.All() {
		require.False(t, s.ID.IsLocal())
	}
	require.Len(t, f.notifier.errors, 1)
	require.Contains(t, f.notifier.errors[0], "Conflict")
}

func TestIncompleteInsertReplyResyncs(t *testing.T) {
	tests := []struct {
		name string
		run  func(e *mutation.Engine) mutation.Result
		want map[float64]string
	}{
		{
			name: "toggle",
			run: func(e *mutation.Engine) mutation.Result {
				return e.Toggle(context.Background(), "A", day, 10, mutation.Forbid, nil)
			},
			want: map[float64]string{10: "A"},
		},
		{
			name: "claim",
			run: func(e *mutation.Engine) mutation.Result {
				return e.Claim(context.Background(), "A", day, 9, 9.5, mutation.SkipOccupied, nil)
			},
			want: map[float64]string{9: "A", 9.25: "A"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			f.remote.dropInsertReply = true

			var res mutation.Result
			require.NotPanics(t, func() { res = tt.run(f.engine) })
			require.Equal(t, mutation.Resynced, res.Outcome)

			var mErr *mutation.MutationError
			require.ErrorAs(t, res.Err, &mErr)

			// The slots reached the remote store, so the reload shows them.
			require.Equal(t, tt.want, f.remoteLayout(t))
			require.Equal(t, tt.want, layout(f.store.All()))
			for _, s := range f.store.All() {
				require.False(t, s.ID.IsLocal())
			}
			require.False(t, f.engine.Pending(day, 9))
			require.False(t, f.engine.Pending(day, 10))
			require.Len(t, f.notifier.errors, 1)
		})
	}
}

func TestClaimPolicies(t *testing.T) {
	t.Run("forbid", func(t *testing.T) {
		f := setup(t, slot("B", 9.5))
		res := f.engine.Claim(context.Background(), "A", day, 9, 10, mutation.Forbid, nil)
		require.Equal(t, mutation.Rejected, res.Outcome)
		require.Equal(t, map[float64]string{9.5: "B"}, layout(f.store.All()))
	})

	t.Run("replace keeps identity and drops note", func(t *testing.T) {
		f := setup(t, noted("B", 9.5, "call"))
		before, _ := f.store.FindAt(day, 9.5)

		res := f.engine.Claim(context.Background(), "A", day, 9, 10, mutation.Replace, confirmYes)
		require.Equal(t, mutation.Committed, res.Outcome)

		want := map[float64]string{9: "A", 9.25: "A", 9.5: "A", 9.75: "A"}
		require.Equal(t, want, layout(f.store.All()))
		require.Equal(t, want, f.remoteLayout(t))
		after, _ := f.store.FindAt(day, 9.5)
		require.Equal(t, before.ID, after.ID)
	})

	t.Run("replace refused", func(t *testing.T) {
		f := setup(t, noted("B", 9.5, "call"))
		before := f.store.All()
		res := f.engine.Claim(context.Background(), "A", day, 9, 10, mutation.Replace, confirmNo)
		require.Equal(t, mutation.Rejected, res.Outcome)
		f.requireUnchangedSince(t, before)
	})

	t.Run("replace failure undoes inserted slots", func(t *testing.T) {
		f := setup(t, slot("B", 9.5))
		before := f.store.All()
		f.remote.failAlways("UpdateSlot", errOffline)

		res := f.engine.Claim(context.Background(), "A", day, 9, 10, mutation.Replace, nil)
		require.Equal(t, mutation.RolledBack, res.Outcome)
		f.requireUnchangedSince(t, before)
		require.Equal(t, map[float64]string{9.5: "B"}, f.remoteLayout(t))
	})

	t.Run("failed undo resyncs", func(t *testing.T) {
		f := setup(t, slot("B", 9.5))
		f.remote.failAlways("UpdateSlot", errOffline)
		f.remote.failAlways("DeleteSlots", errOffline)

		res := f.engine.Claim(context.Background(), "A", day, 9, 10, mutation.Replace, nil)
		require.Equal(t, mutation.Resynced, res.Outcome)

		var mErr *mutation.MutationError
		require.ErrorAs(t, res.Err, &mErr)
		// The store mirrors what actually reached the remote store.
		require.Equal(t, f.remoteLayout(t), layout(f.store.All()))
	})
}

func TestReplaceSlot(t *testing.T) {
	t.Run("noteless never asks", func(t *testing.T) {
		f := setup(t, slot("B", 10))
		s, _ := f.store.FindAt(day, 10)

		res := f.engine.ReplaceSlot(context.Background(), s.ID, "A", confirmNever(t))
		require.Equal(t, mutation.Committed, res.Outcome)
		got, _ := f.store.FindByID(s.ID)
		require.Equal(t, "A", got.ProjectID)
	})

	t.Run("note requires confirmation", func(t *testing.T) {
		f := setup(t, noted("B", 10, "important"))
		s, _ := f.store.FindAt(day, 10)
		before := f.store.All()

		asked := 0
		res := f.engine.ReplaceSlot(context.Background(), s.ID, "A", mutation.ConfirmFunc(func(got model.TimeSlot) bool {
			asked++
			require.Equal(t, "important", got.NoteText())
			return false
		}))
		require.Equal(t, mutation.Rejected, res.Outcome)
		require.Equal(t, 1, asked)
		f.requireUnchangedSince(t, before)

		res = f.engine.ReplaceSlot(context.Background(), s.ID, "A", nil)
		require.Equal(t, mutation.Rejected, res.Outcome, "a nil confirmer refuses")

		res = f.engine.ReplaceSlot(context.Background(), s.ID, "A", confirmYes)
		require.Equal(t, mutation.Committed, res.Outcome)
		got, _ := f.store.FindByID(s.ID)
		require.Equal(t, "A", got.ProjectID)
		require.Nil(t, got.Note)
		require.Equal(t, map[float64]string{10: "A"}, f.remoteLayout(t))
	})

	t.Run("slot never absent during replace", func(t *testing.T) {
		f := setup(t, slot("B", 10))
		s, _ := f.store.FindAt(day, 10)
		f.remote.hook("UpdateSlot", func() {
			cur, ok := f.store.FindAt(day, 10)
			require.True(t, ok)
			require.Equal(t, "A", cur.ProjectID)
		})
		require.Equal(t, mutation.Committed, f.engine.ReplaceSlot(context.Background(), s.ID, "A", nil).Outcome)
	})

	t.Run("failure restores owner and note", func(t *testing.T) {
		f := setup(t, noted("B", 10, "important"))
		s, _ := f.store.FindAt(day, 10)
		before := f.store.All()
		f.remote.failAlways("UpdateSlot", errOffline)

		res := f.engine.ReplaceSlot(context.Background(), s.ID, "A", confirmYes)
		require.Equal(t, mutation.RolledBack, res.Outcome)
		f.requireUnchangedSince(t, before)
	})

	t.Run("vanished remotely resyncs", func(t *testing.T) {
		f := setup(t, slot("B", 10))
		s, _ := f.store.FindAt(day, 10)
		require.NoError(t, f.remote.Store.DeleteSlots(context.Background(), []string{s.ID.String()}))

		res := f.engine.ReplaceSlot(context.Background(), s.ID, "A", nil)
		require.Equal(t, mutation.Resynced, res.Outcome)
		require.ErrorIs(t, res.Err, storage.ErrNotFound)
		require.Empty(t, f.store.All())
	})
}

func TestDeleteSlotsTransfersNote(t *testing.T) {
	f := setup(t, noted("A", 9, "N"), slot("A", 9.25), slot("A", 9.5))

	res := f.engine.DeleteSlots(context.Background(), day, 9, 9.25)
	require.Equal(t, mutation.Committed, res.Outcome)

	want := map[float64]string{9.25: "A:N", 9.5: "A"}
	require.Equal(t, want, layout(f.store.All()))
	require.Equal(t, want, f.remoteLayout(t))
}

func TestDeleteSlotsPrependsToHiddenNote(t *testing.T) {
	f := setup(t, noted("A", 9, "first"), slot("A", 9.25), noted("A", 9.5, "hidden"), slot("A", 9.75))

	res := f.engine.DeleteSlots(context.Background(), day, 9, 9.5)
	require.Equal(t, mutation.Committed, res.Outcome)
	require.Equal(t, map[float64]string{9.5: "A:first\nhidden", 9.75: "A"}, layout(f.store.All()))
}

func TestDeleteSlotsCases(t *testing.T) {
	tests := []struct {
		name       string
		seed       []model.TimeSlot
		start, end float64
		want       map[float64]string
	}{
		{
			name:  "whole entry drops its note",
			seed:  []model.TimeSlot{noted("A", 9, "N"), slot("A", 9.25)},
			start: 9, end: 9.5,
			want: map[float64]string{},
		},
		{
			name:  "middle cut keeps note on first slot",
			seed:  []model.TimeSlot{noted("A", 9, "N"), slot("A", 9.25), slot("A", 9.5)},
			start: 9.25, end: 9.5,
			want: map[float64]string{9: "A:N", 9.5: "A"},
		},
		{
			name:  "transfer only within the same entry",
			seed:  []model.TimeSlot{noted("A", 9, "N"), slot("B", 9.25)},
			start: 9, end: 9.25,
			want: map[float64]string{9.25: "B"},
		},
		{
			name:  "two entries cut at once",
			seed:  []model.TimeSlot{noted("A", 9, "a"), noted("B", 9.25, "b"), slot("B", 9.5)},
			start: 9, end: 9.5,
			want: map[float64]string{9.5: "B:b"},
		},
		{
			name:  "blank note is not transferred",
			seed:  []model.TimeSlot{noted("A", 9, "   "), slot("A", 9.25)},
			start: 9, end: 9.25,
			want: map[float64]string{9.25: "A"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t, tt.seed...)
			res := f.engine.DeleteSlots(context.Background(), day, tt.start, tt.end)
			require.Equal(t, mutation.Committed, res.Outcome)
			require.Equal(t, tt.want, layout(f.store.All()))
			require.Equal(t, tt.want, f.remoteLayout(t))
		})
	}
}

func TestDeleteSlotsEmptyRangeIsUnchanged(t *testing.T) {
	f := setup(t, slot("A", 9))
	res := f.engine.DeleteSlots(context.Background(), day, 10, 12)
	require.Equal(t, mutation.Unchanged, res.Outcome)
	require.Zero(t, f.remote.count("DeleteSlots"))
}

func TestDeleteSlotsFailureUndoesTransfer(t *testing.T) {
	f := setup(t, noted("A", 9, "N"), slot("A", 9.25))
	before := f.store.All()
	remoteBefore := f.remoteLayout(t)
	f.remote.failAlways("DeleteSlots", errOffline)

	res := f.engine.DeleteSlots(context.Background(), day, 9, 9.25)
	require.Equal(t, mutation.RolledBack, res.Outcome)
	f.requireUnchangedSince(t, before)
	require.Equal(t, remoteBefore, f.remoteLayout(t))
	require.Equal(t, 2, f.remote.count("UpdateSlot"), "transfer plus its undo")
}

func TestDeleteSlotsTransferFailure(t *testing.T) {
	f := setup(t, noted("A", 9, "N"), slot("A", 9.25))
	before := f.store.All()
	f.remote.failNth("UpdateSlot", 1, errOffline)

	res := f.engine.DeleteSlots(context.Background(), day, 9, 9.25)
	require.Equal(t, mutation.RolledBack, res.Outcome)
	f.requireUnchangedSince(t, before)
	require.Zero(t, f.remote.count("DeleteSlots"))
}

func TestDeleteEntry(t *testing.T) {
	f := setup(t, noted("A", 9, "N"), slot("A", 9.25), slot("B", 9.5))
	first, _ := f.store.FindAt(day, 9)

	res := f.engine.DeleteEntry(context.Background(), first.ID)
	require.Equal(t, mutation.Committed, res.Outcome)
	require.Equal(t, map[float64]string{9.5: "B"}, layout(f.store.All()))
	require.Equal(t, 1, f.remote.count("DeleteSlots"))

	second, _ := f.store.FindAt(day, 9.5)
	f.remote.failAlways("DeleteSlots", errOffline)
	before := f.store.All()
	res = f.engine.DeleteEntry(context.Background(), second.ID)
	require.Equal(t, mutation.RolledBack, res.Outcome)
	f.requireUnchangedSince(t, before)

	res = f.engine.DeleteEntry(context.Background(), model.PersistedID("nope"))
	require.Equal(t, mutation.Rejected, res.Outcome)
}

func TestDeleteEntryRequiresFirstSlot(t *testing.T) {
	f := setup(t, slot("A", 9), slot("A", 9.25))
	inner, _ := f.store.FindAt(day, 9.25)
	res := f.engine.DeleteEntry(context.Background(), inner.ID)
	require.Equal(t, mutation.Rejected, res.Outcome)
}

func TestUpdateNote(t *testing.T) {
	f := setup(t, slot("A", 9))
	s, _ := f.store.FindAt(day, 9)
	ctx := context.Background()

	res := f.engine.UpdateNote(ctx, s.ID, "  review PR  ")
	require.Equal(t, mutation.Committed, res.Outcome)
	require.Equal(t, map[float64]string{9: "A:review PR"}, f.remoteLayout(t))

	res = f.engine.UpdateNote(ctx, s.ID, "review PR")
	require.Equal(t, mutation.Unchanged, res.Outcome)

	res = f.engine.UpdateNote(ctx, s.ID, " \t ")
	require.Equal(t, mutation.Committed, res.Outcome)
	got, _ := f.store.FindByID(s.ID)
	require.Nil(t, got.Note, "blank text clears the note")
	require.Equal(t, map[float64]string{9: "A"}, f.remoteLayout(t))

	f.remote.failAlways("UpdateSlot", errOffline)
	before := f.store.All()
	res = f.engine.UpdateNote(ctx, s.ID, "lost")
	require.Equal(t, mutation.RolledBack, res.Outcome)
	f.requireUnchangedSince(t, before)
}

func TestPendingSlotIsLocked(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.remote.hook("InsertSlots", func() {
		first := false
		once.Do(func() { first = true })
		if first {
			close(entered)
			<-release
		}
	})

	done := make(chan mutation.Result)
	go func() { done <- f.engine.Toggle(ctx, "A", day, 10, mutation.Forbid, nil) }()
	<-entered

	require.True(t, f.engine.Pending(day, 10))
	tmp, ok := f.store.FindAt(day, 10)
	require.True(t, ok)
	require.True(t, tmp.ID.IsLocal())

	// Same quarter hour: rejected while in flight.
	res := f.engine.Toggle(ctx, "A", day, 10, mutation.Forbid, nil)
	require.Equal(t, mutation.Rejected, res.Outcome)
	res = f.engine.UpdateNote(ctx, tmp.ID, "x")
	require.Equal(t, mutation.Rejected, res.Outcome)

	// A different quarter hour proceeds independently.
	res = f.engine.Toggle(ctx, "A", day, 11, mutation.Forbid, nil)
	require.Equal(t, mutation.Committed, res.Outcome)

	close(release)
	require.Equal(t, mutation.Committed, (<-done).Outcome)
	require.False(t, f.engine.Pending(day, 10))
	require.Equal(t, map[float64]string{10: "A", 11: "A"}, layout(f.store.All()))
	for _, s := range f.store.All() {
		require.False(t, s.ID.IsLocal())
	}
}

func TestRollbackRestoresExactState(t *testing.T) {
	seed := []model.TimeSlot{noted("A", 9, "N"), slot("A", 9.25), slot("B", 9.5), noted("B", 9.75, "x")}
	ops := map[string]func(f *fixture) mutation.Result{
		"toggle insert": func(f *fixture) mutation.Result {
			return f.engine.Toggle(context.Background(), "C", day, 12, mutation.Forbid, nil)
		},
		"toggle erase": func(f *fixture) mutation.Result {
			return f.engine.Toggle(context.Background(), "B", day, 9.5, mutation.Forbid, nil)
		},
		"add": func(f *fixture) mutation.Result {
			return f.engine.AddSlots(context.Background(), "C", day, 8, 11)
		},
		"claim replace": func(f *fixture) mutation.Result {
			return f.engine.Claim(context.Background(), "C", day, 9, 10, mutation.Replace, confirmYes)
		},
		"delete range": func(f *fixture) mutation.Result {
			return f.engine.DeleteSlots(context.Background(), day, 9, 9.75)
		},
		"note": func(f *fixture) mutation.Result {
			s, _ := f.store.FindAt(day, 9.25)
			return f.engine.UpdateNote(context.Background(), s.ID, "new")
		},
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			f := setup(t, seed...)
			before := f.store.All()
			remoteBefore := f.remoteLayout(t)
			for _, m := range []string{"InsertSlots", "UpdateSlot", "DeleteSlots"} {
				f.remote.failAlways(m, errOffline)
			}

			res := op(f)
			require.NotEqual(t, mutation.Committed, res.Outcome)
			require.Error(t, res.Err)
			f.requireUnchangedSince(t, before)
			require.Equal(t, remoteBefore, f.remoteLayout(t))
		})
	}
}
