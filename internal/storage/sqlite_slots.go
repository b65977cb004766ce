package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Tiliavir/quarter-tracker/internal/model"
)

type sqliteSlotRepo struct {
	db     *sql.DB
	userID string
}

func (r *sqliteSlotRepo) SelectSlots(ctx context.Context, q SlotQuery) ([]model.TimeSlot, error) {
	query := `SELECT id, project_id, date, time_slot, note FROM time_slots WHERE user_id = ?`
	args := []any{r.userID}
	if q.Date != "" {
		query += " AND date = ?"
		args = append(args, q.Date)
	} else {
		if q.From != "" {
			query += " AND date >= ?"
			args = append(args, q.From)
		}
		if q.To != "" {
			query += " AND date <= ?"
			args = append(args, q.To)
		}
	}
	query += " ORDER BY date, time_slot"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select slots: %w", err)
	}
	defer rows.Close()

	slots := []model.TimeSlot{}
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlot(row rowScanner) (model.TimeSlot, error) {
	var (
		slot model.TimeSlot
		id   string
		note sql.NullString
	)
	if err := row.Scan(&id, &slot.ProjectID, &slot.Date, &slot.TimeSlot, &note); err != nil {
		return model.TimeSlot{}, err
	}
	slot.ID = model.PersistedID(id)
	if note.Valid {
		slot.Note = model.StringPtr(note.String)
	}
	return slot, nil
}

func (r *sqliteSlotRepo) InsertSlots(ctx context.Context, slots []model.TimeSlot) ([]model.TimeSlot, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert slots: %w", err)
	}
	defer tx.Rollback()

	out := make([]model.TimeSlot, 0, len(slots))
	for _, slot := range slots {
		slot = slot.Clone()
		slot.ID = model.PersistedID(uuid.NewString())
		_, err := tx.ExecContext(ctx, `
			INSERT INTO time_slots (id, user_id, project_id, date, time_slot, note)
			VALUES (?, ?, ?, ?, ?, ?)
		`, slot.ID.String(), r.userID, slot.ProjectID, slot.Date, slot.TimeSlot, slot.Note)
		if isSQLiteUnique(err) {
			return nil, fmt.Errorf("insert slot %s %s: %w", slot.Date, fmtTick(slot.TimeSlot), ErrDuplicate)
		}
		if err != nil {
			return nil, fmt.Errorf("insert slot: %w", err)
		}
		out = append(out, slot)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert slots: %w", err)
	}
	return out, nil
}

func (r *sqliteSlotRepo) UpdateSlot(ctx context.Context, id string, patch SlotPatch) (model.TimeSlot, error) {
	var (
		sets []string
		args []any
	)
	if patch.ProjectID != nil {
		sets = append(sets, "project_id = ?")
		args = append(args, *patch.ProjectID)
	}
	if patch.SetNote {
		sets = append(sets, "note = ?")
		args = append(args, patch.Note)
	}
	if len(sets) > 0 {
		args = append(args, id, r.userID)
		result, err := r.db.ExecContext(ctx,
			"UPDATE time_slots SET "+strings.Join(sets, ", ")+" WHERE id = ? AND user_id = ?", args...)
		if err != nil {
			return model.TimeSlot{}, fmt.Errorf("update slot: %w", err)
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return model.TimeSlot{}, fmt.Errorf("update slot %s: %w", id, ErrNotFound)
		}
	}

	row := r.db.QueryRowContext(ctx,
		"SELECT id, project_id, date, time_slot, note FROM time_slots WHERE id = ? AND user_id = ?", id, r.userID)
	slot, err := scanSlot(row)
	if err == sql.ErrNoRows {
		return model.TimeSlot{}, fmt.Errorf("update slot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.TimeSlot{}, fmt.Errorf("reload slot: %w", err)
	}
	return slot, nil
}

func (r *sqliteSlotRepo) DeleteSlots(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, 0, len(ids)+1)
	args = append(args, r.userID)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := r.db.ExecContext(ctx,
		"DELETE FROM time_slots WHERE user_id = ? AND id IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("delete slots: %w", err)
	}
	return nil
}
