package mutation

import (
	"context"
	"errors"
	"fmt"

	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/storage"
	"github.com/Tiliavir/quarter-tracker/internal/timecalc"
)

// AddSlots fills the free quarter hours of [start, end) for projectID.
// Occupied quarter hours are skipped, so repeating the call changes nothing.
func (e *Engine) AddSlots(ctx context.Context, projectID, date string, start, end float64) Result {
	return e.claim(ctx, "add", projectID, date, start, end, SkipOccupied, nil)
}

// Claim assigns [start, end) to projectID. Quarter hours already owned by
// another project are skipped, replaced or cause a rejection depending on
// policy. Replacing slots that carry notes requires confirm to agree for
// each of them.
func (e *Engine) Claim(ctx context.Context, projectID, date string, start, end float64, policy ClaimPolicy, confirm Confirmer) Result {
	return e.claim(ctx, "claim", projectID, date, start, end, policy, confirm)
}

func (e *Engine) claim(ctx context.Context, op, projectID, date string, start, end float64, policy ClaimPolicy, confirm Confirmer) Result {
	if projectID == "" {
		return e.reject(op, &ValidationError{Op: op, Reason: "no project selected"})
	}
	if err := validRange(op, date, start, end); err != nil {
		return e.reject(op, err)
	}
	ticks := timecalc.Ticks(start, end)

	// Ask before locking anything; the answers are checked again under the lock.
	confirmed := map[model.SlotID]string{}
	if policy == Replace {
		for _, tick := range ticks {
			cur, ok := e.store.FindAt(date, tick)
			if !ok || cur.ProjectID == projectID || !cur.HasNote() {
				continue
			}
			if confirm == nil || !confirm.ConfirmNoteLoss(cur) {
				return e.reject(op, &ValidationError{
					Op:     op,
					Reason: fmt.Sprintf("%s %s has a note; replacing it was not confirmed", date, timecalc.FormatTick(tick)),
				})
			}
			confirmed[cur.ID] = cur.NoteText()
		}
	}

	var (
		inserts  []model.TimeSlot
		replaced []model.TimeSlot
	)
	tx, err := e.stage(op, date, func(tx *txn) error {
		var (
			free     []float64
			takeover []model.TimeSlot
		)
		for _, tick := range ticks {
			cur, ok := e.store.FindAt(date, tick)
			switch {
			case !ok:
				free = append(free, tick)
			case cur.ProjectID == projectID:
			case policy == SkipOccupied:
			case policy == Forbid:
				return &ValidationError{
					Op:     op,
					Reason: fmt.Sprintf("%s %s belongs to another project", date, timecalc.FormatTick(tick)),
				}
			case cur.ID.IsLocal():
				return busy(op, cur)
			default:
				if note, ok := confirmed[cur.ID]; cur.HasNote() && (!ok || note != cur.NoteText()) {
					return &ValidationError{
						Op:     op,
						Reason: fmt.Sprintf("%s %s changed meanwhile", date, timecalc.FormatTick(tick)),
					}
				}
				takeover = append(takeover, cur)
			}
		}

		keys := make([]model.SlotKey, 0, len(free)+len(takeover))
		for _, tick := range free {
			keys = append(keys, model.SlotKey{Date: date, TimeSlot: tick})
		}
		for _, cur := range takeover {
			keys = append(keys, cur.Key())
		}
		if err := tx.lock(keys...); err != nil {
			return err
		}

		for _, tick := range free {
			inserts = append(inserts, tx.insert(model.TimeSlot{ProjectID: projectID, Date: date, TimeSlot: tick}))
		}
		for _, cur := range takeover {
			next := cur.Clone()
			next.ProjectID = projectID
			next.Note = nil
			tx.put(cur, next)
			replaced = append(replaced, cur)
		}
		return nil
	})
	if res, done := e.staged(op, tx, err); done {
		return res
	}
	defer e.release(tx)

	var inserted []model.TimeSlot
	if len(inserts) > 0 {
		payload := make([]model.TimeSlot, len(inserts))
		for i, s := range inserts {
			payload[i] = s.Clone()
			payload[i].ID = model.SlotID{}
		}
		inserted, err = e.insertRemote(ctx, payload)
		if err != nil {
			return e.fail(ctx, tx, err)
		}
	}

	updated := make([]model.TimeSlot, 0, len(replaced))
	for i, prev := range replaced {
		u, err := e.remote.UpdateSlot(ctx, prev.ID.String(), storage.SlotPatch{ProjectID: &projectID, SetNote: true})
		if err != nil {
			if cerr := e.undoClaim(ctx, inserted, replaced[:i]); cerr != nil {
				return e.resync(ctx, tx, err, cerr)
			}
			return e.fail(ctx, tx, err)
		}
		updated = append(updated, u)
	}

	for i, s := range inserts {
		e.store.Confirm(s.ID, inserted[i])
	}
	for _, u := range updated {
		e.store.UpsertLocal(u)
	}
	return e.commit(tx, append(inserted, updated...))
}

// undoClaim reverts the remote calls of a claim that failed halfway.
func (e *Engine) undoClaim(ctx context.Context, inserted, replaced []model.TimeSlot) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	if len(inserted) > 0 {
		if err := e.remote.DeleteSlots(ctx, ids(inserted)); err != nil {
			errs = append(errs, err)
		}
	}
	for _, prev := range replaced {
		projectID := prev.ProjectID
		patch := storage.SlotPatch{ProjectID: &projectID, SetNote: true, Note: prev.Clone().Note}
		if _, err := e.remote.UpdateSlot(ctx, prev.ID.String(), patch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
