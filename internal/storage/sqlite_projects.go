package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Tiliavir/quarter-tracker/internal/model"
)

type sqliteProjectRepo struct {
	db     *sql.DB
	userID string
}

func (r *sqliteProjectRepo) ListProjects(ctx context.Context) ([]model.Project, error) {
	query := `
		SELECT id, name, color, archived, created_at, updated_at
		FROM projects WHERE user_id = ? ORDER BY name
	`
	rows, err := r.db.QueryContext(ctx, query, r.userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []model.Project{}
	for rows.Next() {
		var p model.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Color, &p.Archived, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *sqliteProjectRepo) InsertProject(ctx context.Context, p model.Project) (model.Project, error) {
	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now

	query := `
		INSERT INTO projects (id, user_id, name, name_key, color, archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, r.userID, p.Name, strings.ToLower(p.Name), p.Color, p.Archived,
		p.CreatedAt, p.UpdatedAt,
	)
	if isSQLiteUnique(err) {
		return model.Project{}, fmt.Errorf("insert project %q: %w", p.Name, ErrDuplicate)
	}
	if err != nil {
		return model.Project{}, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

func (r *sqliteProjectRepo) UpdateProject(ctx context.Context, p model.Project) (model.Project, error) {
	p.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE projects SET name = ?, name_key = ?, color = ?, archived = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		p.Name, strings.ToLower(p.Name), p.Color, p.Archived, p.UpdatedAt,
		p.ID, r.userID,
	)
	if isSQLiteUnique(err) {
		return model.Project{}, fmt.Errorf("update project %q: %w", p.Name, ErrDuplicate)
	}
	if err != nil {
		return model.Project{}, fmt.Errorf("update project: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return model.Project{}, fmt.Errorf("update project %s: %w", p.ID, ErrNotFound)
	}

	err = r.db.QueryRowContext(ctx, "SELECT created_at FROM projects WHERE id = ?", p.ID).Scan(&p.CreatedAt)
	if err != nil {
		return model.Project{}, fmt.Errorf("reload project: %w", err)
	}
	return p, nil
}

func (r *sqliteProjectRepo) DeleteProject(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete project: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, "DELETE FROM projects WHERE id = ? AND user_id = ?", id, r.userID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("delete project %s: %w", id, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM time_slots WHERE project_id = ? AND user_id = ?", id, r.userID); err != nil {
		return fmt.Errorf("delete project slots: %w", err)
	}
	return tx.Commit()
}
