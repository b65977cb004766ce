package mutation

import (
	"context"
	"errors"
	"fmt"

	"github.com/Tiliavir/quarter-tracker/internal/entries"
	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/storage"
	"github.com/Tiliavir/quarter-tracker/internal/timecalc"
)

type noteTransfer struct {
	prev model.TimeSlot
	next model.TimeSlot
}

// DeleteSlots removes every slot of date in [start, end).
//
// When the first slot of an entry is removed while later slots of the same
// entry survive, the entry's note moves to the earliest surviving slot. If
// that slot already has a note of its own, the moved note is put on a line
// above it.
func (e *Engine) DeleteSlots(ctx context.Context, date string, start, end float64) Result {
	const op = "delete"
	if err := validRange(op, date, start, end); err != nil {
		return e.reject(op, err)
	}
	return e.deleteRange(ctx, op, date, start, end, "")
}

// deleteRange removes [start, end) of date with the note transfer of
// DeleteSlots. A non-empty owner requires every removed slot to belong to it.
func (e *Engine) deleteRange(ctx context.Context, op, date string, start, end float64, owner string) Result {
	var (
		victims   []model.TimeSlot
		transfers []noteTransfer
	)
	tx, err := e.stage(op, date, func(tx *txn) error {
		day := e.store.ForDate(date)
		byID := make(map[model.SlotID]model.TimeSlot, len(day))
		for _, s := range day {
			byID[s.ID] = s
			if s.TimeSlot < start || s.TimeSlot >= end {
				continue
			}
			if s.ID.IsLocal() {
				return busy(op, s)
			}
			if owner != "" && s.ProjectID != owner {
				return &ValidationError{
					Op:     op,
					Reason: fmt.Sprintf("%s %s belongs to another project", date, timecalc.FormatTick(s.TimeSlot)),
				}
			}
			victims = append(victims, s)
		}
		if len(victims) == 0 {
			return nil
		}

		for _, entry := range entries.Reduce(day) {
			if entry.StartTime < start || entry.StartTime >= end || entry.EndTime <= end {
				continue
			}
			if !(model.TimeSlot{Note: entry.Note}).HasNote() {
				continue
			}
			survivor := byID[entry.SlotIDs[int((end-entry.StartTime)/timecalc.SlotHours)]]
			if survivor.ID.IsLocal() {
				return busy(op, survivor)
			}
			note := *entry.Note
			if survivor.HasNote() {
				note += "\n" + survivor.NoteText()
			}
			next := survivor.Clone()
			next.Note = &note
			transfers = append(transfers, noteTransfer{prev: survivor, next: next})
		}

		keys := make([]model.SlotKey, 0, len(victims)+len(transfers))
		for _, s := range victims {
			keys = append(keys, s.Key())
		}
		for _, t := range transfers {
			keys = append(keys, t.prev.Key())
		}
		if err := tx.lock(keys...); err != nil {
			return err
		}
		for _, t := range transfers {
			tx.put(t.prev, t.next)
		}
		for _, s := range victims {
			tx.remove(s)
		}
		return nil
	})
	if res, done := e.staged(op, tx, err); done {
		return res
	}
	defer e.release(tx)

	updated := make([]model.TimeSlot, 0, len(transfers))
	for i, t := range transfers {
		u, err := e.remote.UpdateSlot(ctx, t.prev.ID.String(), storage.SlotPatch{SetNote: true, Note: t.next.Note})
		if err != nil {
			if cerr := e.undoNotes(ctx, transfers[:i]); cerr != nil {
				return e.resync(ctx, tx, err, cerr)
			}
			return e.fail(ctx, tx, err)
		}
		updated = append(updated, u)
	}

	if err := e.remote.DeleteSlots(ctx, ids(victims)); err != nil {
		if cerr := e.undoNotes(ctx, transfers); cerr != nil {
			return e.resync(ctx, tx, err, cerr)
		}
		return e.fail(ctx, tx, err)
	}

	for _, u := range updated {
		e.store.UpsertLocal(u)
	}
	return e.commit(tx, updated)
}

// undoNotes restores the notes of survivors whose transfer already reached
// the remote store.
func (e *Engine) undoNotes(ctx context.Context, done []noteTransfer) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for _, t := range done {
		patch := storage.SlotPatch{SetNote: true, Note: t.prev.Clone().Note}
		if _, err := e.remote.UpdateSlot(ctx, t.prev.ID.String(), patch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DeleteEntry removes every slot of the entry whose first slot is entryID.
func (e *Engine) DeleteEntry(ctx context.Context, entryID model.SlotID) Result {
	const op = "delete-entry"

	var victims []model.TimeSlot
	tx, err := e.stage(op, "", func(tx *txn) error {
		first, ok := e.store.FindByID(entryID)
		if !ok {
			return &ValidationError{Op: op, Reason: fmt.Sprintf("unknown entry %s", entryID)}
		}
		tx.date = first.Date
		entry, ok := entries.Find(entries.Reduce(e.store.ForDate(first.Date)), entryID)
		if !ok {
			return &ValidationError{Op: op, Reason: fmt.Sprintf("slot %s does not start an entry", entryID)}
		}

		keys := make([]model.SlotKey, 0, len(entry.SlotIDs))
		for _, id := range entry.SlotIDs {
			s, _ := e.store.FindByID(id)
			if s.ID.IsLocal() {
				return busy(op, s)
			}
			if owner != "" && s.ProjectID != owner {
				return &ValidationError{
					Op:     op,
					Reason: fmt.Sprintf("%s %s belongs to another project", date, timecalc.FormatTick(s.TimeSlot)),
				}
			}
			victims = append(victims, s)
			keys = append(keys, s.Key())
		}
		if err := tx.lock(keys...); err != nil {
			return err
		}
		for _, s := range victims {
			tx.remove(s)
		}
		return nil
	})
	if res, done := e.staged(op, tx, err); done {
		return res
	}
	defer e.release(tx)

	if err := e.remote.DeleteSlots(ctx, ids(victims)); err != nil {
		return e.fail(ctx, tx, err)
	}
	return e.commit(tx, nil)
}
