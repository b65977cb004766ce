package mutation

import (
	"context"
	"fmt"
	"strings"

	"github.com/Tiliavir/quarter-tracker/internal/model"
	"github.com/Tiliavir/quarter-tracker/internal/storage"
)

// UpdateNote sets the note of one slot. The text is trimmed; a blank text
// clears the note.
func (e *Engine) UpdateNote(ctx context.Context, id model.SlotID, text string) Result {
	const op = "note"

	var note *string
	if trimmed := strings.TrimSpace(text); trimmed != "" {
		note = &trimmed
	}

	tx, err := e.stage(op, "", func(tx *txn) error {
		cur, ok := e.store.FindByID(id)
		if !ok {
			return &ValidationError{Op: op, Reason: fmt.Sprintf("unknown slot %s", id)}
		}
		if cur.ID.IsLocal() {
			return busy(op, cur)
		}
		tx.date = cur.Date
		if sameNote(cur.Note, note) {
			return nil
		}
		if err := tx.lock(cur.Key()); err != nil {
			return err
		}
		next := cur.Clone()
		next.Note = nil
		if note != nil {
			next.Note = model.StringPtr(*note)
		}
		tx.put(cur, next)
		return nil
	})
	if res, done := e.staged(op, tx, err); done {
		return res
	}
	defer e.release(tx)

	updated, err := e.remote.UpdateSlot(ctx, id.String(), storage.SlotPatch{SetNote: true, Note: note})
	if err != nil {
		return e.fail(ctx, tx, err)
	}
	e.store.UpsertLocal(updated)
	return e.commit(tx, []model.TimeSlot{updated})
}

func sameNote(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
