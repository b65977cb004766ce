package mutation

import (
	"context"
	"fmt"

	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/storage"
	"github.com/Tiliavir/quarter-tracker/internal/timecalc"
)

// Toggle erases the quarter hour if projectID owns it and paints it
// otherwise. A quarter hour owned by another project is handled according to
// policy; Replace consults confirm when the slot carries a note.
func (e *Engine) Toggle(ctx context.Context, projectID, date string, tick float64, policy ClaimPolicy, confirm Confirmer) Result {
	const op = "toggle"
	if projectID == "" {
		return e.reject(op, &ValidationError{Op: op, Reason: "no project selected"})
	}
	if err := validDate(op, date); err != nil {
		return e.reject(op, err)
	}
	if !timecalc.ValidTick(tick) {
		return e.reject(op, &ValidationError{Op: op, Reason: fmt.Sprintf("invalid quarter hour %v", tick)})
	}

	if cur, ok := e.store.FindAt(date, tick); ok {
		switch {
		case cur.ProjectID == projectID:
			// The entry's note moves to its next slot, as in DeleteSlots.
			return e.deleteRange(ctx, op, date, tick, tick+timecalc.SlotHours, projectID)
		case policy == Replace:
			return e.replace(ctx, op, cur.ID, projectID, confirm)
		}
	}

	var inserted model.TimeSlot
	tx, err := e.stage(op, date, func(tx *txn) error {
		cur, ok := e.store.FindAt(date, tick)
		switch {
		case ok && cur.ProjectID != projectID && policy == SkipOccupied:
			return nil
		case ok && cur.ProjectID != projectID:
			// Forbid, or a Replace that lost a race with another mutation.
			return &ValidationError{
				Op:     op,
				Reason: fmt.Sprintf("%s %s belongs to another project", date, timecalc.FormatTick(tick)),
			}
		case ok:
			return &ValidationError{
				Op:     op,
				Reason: fmt.Sprintf("%s %s was painted meanwhile", date, timecalc.FormatTick(tick)),
			}
		}
		if err := tx.lock(model.SlotKey{Date: date, TimeSlot: tick}); err != nil {
			return err
		}
		inserted = tx.insert(model.TimeSlot{ProjectID: projectID, Date: date, TimeSlot: tick})
		return nil
	})
	if res, done := e.staged(op, tx, err); done {
		return res
	}
	defer e.release(tx)

	payload := inserted.Clone()
	payload.ID = model.SlotID{}
	confirmed, err := e.insertRemote(ctx, []model.TimeSlot{payload})
	if err != nil {
		return e.fail(ctx, tx, err)
	}
	e.store.Confirm(inserted.ID, confirmed[0])
	return e.commit(tx, confirmed)
}

// ReplaceSlot hands one quarter hour to another project. The slot keeps its
// identity and its note is dropped, so a slot with a note is only replaced
// when confirm agrees.
func (e *Engine) ReplaceSlot(ctx context.Context, id model.SlotID, projectID string, confirm Confirmer) Result {
	return e.replace(ctx, "replace", id, projectID, confirm)
}

func (e *Engine) replace(ctx context.Context, op string, id model.SlotID, projectID string, confirm Confirmer) Result {
	if projectID == "" {
		return e.reject(op, &ValidationError{Op: op, Reason: "no project selected"})
	}
	slot, ok := e.store.FindByID(id)
	if !ok {
		return e.reject(op, &ValidationError{Op: op, Reason: fmt.Sprintf("unknown slot %s", id)})
	}
	if slot.ID.IsLocal() {
		return e.reject(op, busy(op, slot))
	}
	if slot.ProjectID == projectID {
		return e.unchanged(op)
	}
	if slot.HasNote() && (confirm == nil || !confirm.ConfirmNoteLoss(slot)) {
		return e.reject(op, &ValidationError{
			Op:     op,
			Reason: fmt.Sprintf("%s %s has a note; replacing it was not confirmed", slot.Date, timecalc.FormatTick(slot.TimeSlot)),
		})
	}

	tx, err := e.stage(op, slot.Date, func(tx *txn) error {
		cur, ok := e.store.FindByID(id)
		if !ok {
			return &ValidationError{Op: op, Reason: fmt.Sprintf("slot %s was removed meanwhile", id)}
		}
		if cur.HasNote() && (!slot.HasNote() || cur.NoteText() != slot.NoteText()) {
			return &ValidationError{Op: op, Reason: fmt.Sprintf("note of slot %s changed meanwhile", id)}
		}
		if cur.ProjectID == projectID {
			return nil
		}
		if err := tx.lock(cur.Key()); err != nil {
			return err
		}
		next := cur.Clone()
		next.ProjectID = projectID
		next.Note = nil
		tx.put(cur, next)
		return nil
	})
	if res, done := e.staged(op, tx, err); done {
		return res
	}
	defer e.release(tx)

	updated, err := e.remote.UpdateSlot(ctx, id.String(), storage.SlotPatch{ProjectID: &projectID, SetNote: true})
	if err != nil {
		return e.fail(ctx, tx, err)
	}
	e.store.UpsertLocal(updated)
	return e.commit(tx, []model.TimeSlot{updated})
}
