package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Tiliavir/quarter-tracker/internal/model"
)

// PostgresBackend implements Backend on a pgx connection pool.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to the database named by dsn.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresBackend, error) {
	if dsn == "" {
		return nil, errors.New("postgres store requires a dsn")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

// NewPostgresBackend wraps an existing pool.
func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

// ForUser implements Backend.
func (b *PostgresBackend) ForUser(userID string) Store {
	return &postgresStore{pool: b.pool, userID: userID}
}

// Migrate applies all pending migrations.
func (b *PostgresBackend) Migrate(ctx context.Context) error {
	_, err := b.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	if err := b.pool.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion); err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}
		err := pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.Postgres); err != nil {
				return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
			}
			_, err := tx.Exec(ctx,
				"INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, $3)",
				m.Version, m.Name, time.Now().UTC(),
			)
			if err != nil {
				return fmt.Errorf("record migration %d: %w", m.Version, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Close releases the pool.
func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}

// isPgUnique reports whether err is a unique_violation.
func isPgUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

type postgresStore struct {
	pool   *pgxpool.Pool
	userID string
}

func (s *postgresStore) SelectSlots(ctx context.Context, q SlotQuery) ([]model.TimeSlot, error) {
	query := `SELECT id, project_id, date, time_slot, note FROM time_slots WHERE user_id = $1`
	args := []any{s.userID}
	if q.Date != "" {
		args = append(args, q.Date)
		query += fmt.Sprintf(" AND date = $%d", len(args))
	} else {
		if q.From != "" {
			args = append(args, q.From)
			query += fmt.Sprintf(" AND date >= $%d", len(args))
		}
		if q.To != "" {
			args = append(args, q.To)
			query += fmt.Sprintf(" AND date <= $%d", len(args))
		}
	}
	query += " ORDER BY date, time_slot"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select slots: %w", err)
	}
	defer rows.Close()

	slots := []model.TimeSlot{}
	for rows.Next() {
		slot, err := scanPgSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

func scanPgSlot(row pgx.Row) (model.TimeSlot, error) {
	var (
		slot model.TimeSlot
		id   string
	)
	if err := row.Scan(&id, &slot.ProjectID, &slot.Date, &slot.TimeSlot, &slot.Note); err != nil {
		return model.TimeSlot{}, err
	}
	slot.ID = model.PersistedID(id)
	return slot, nil
}

func (s *postgresStore) InsertSlots(ctx context.Context, slots []model.TimeSlot) ([]model.TimeSlot, error) {
	out := make([]model.TimeSlot, 0, len(slots))
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, slot := range slots {
			slot = slot.Clone()
			slot.ID = model.PersistedID(uuid.NewString())
			batch.Queue(`
				INSERT INTO time_slots (id, user_id, project_id, date, time_slot, note)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, slot.ID.String(), s.userID, slot.ProjectID, slot.Date, slot.TimeSlot, slot.Note)
			out = append(out, slot)
		}
		br := tx.SendBatch(ctx, batch)
		for _, slot := range out {
			if _, err := br.Exec(); err != nil {
				br.Close()
				if isPgUnique(err) {
					return fmt.Errorf("insert slot %s %s: %w", slot.Date, fmtTick(slot.TimeSlot), ErrDuplicate)
				}
				return fmt.Errorf("insert slot: %w", err)
			}
		}
		return br.Close()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *postgresStore) UpdateSlot(ctx context.Context, id string, patch SlotPatch) (model.TimeSlot, error) {
	var (
		sets []string
		args []any
	)
	if patch.ProjectID != nil {
		args = append(args, *patch.ProjectID)
		sets = append(sets, fmt.Sprintf("project_id = $%d", len(args)))
	}
	if patch.SetNote {
		args = append(args, patch.Note)
		sets = append(sets, fmt.Sprintf("note = $%d", len(args)))
	}
	args = append(args, id, s.userID)
	where := fmt.Sprintf(" WHERE id = $%d AND user_id = $%d", len(args)-1, len(args))
	returning := " RETURNING id, project_id, date, time_slot, note"

	var query string
	if len(sets) == 0 {
		query = "SELECT id, project_id, date, time_slot, note FROM time_slots" + where
	} else {
		query = "UPDATE time_slots SET " + strings.Join(sets, ", ") + where + returning
	}

	slot, err := scanPgSlot(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.TimeSlot{}, fmt.Errorf("update slot %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.TimeSlot{}, fmt.Errorf("update slot: %w", err)
	}
	return slot, nil
}

func (s *postgresStore) DeleteSlots(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, "DELETE FROM time_slots WHERE user_id = $1 AND id = ANY($2)", s.userID, ids)
	if err != nil {
		return fmt.Errorf("delete slots: %w", err)
	}
	return nil
}

func (s *postgresStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, color, archived, created_at, updated_at
		FROM projects WHERE user_id = $1 ORDER BY name
	`, s.userID)
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

func (s *postgresStore) InsertProject(ctx context.Context, p model.Project) (model.Project, error) {
	now := time.Now().UTC()
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := s.pool.Exec(ctx, `
		INSERT INTO projects (id, user_id, name, name_key, color, archived, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, s.userID, p.Name, strings.ToLower(p.Name), p.Color, p.Archived, p.CreatedAt, p.UpdatedAt)
	if isPgUnique(err) {
		return model.Project{}, fmt.Errorf("insert project %q: %w", p.Name, ErrDuplicate)
	}
	if err != nil {
		return model.Project{}, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

func (s *postgresStore) UpdateProject(ctx context.Context, p model.Project) (model.Project, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE projects SET name = $1, name_key = $2, color = $3, archived = $4, updated_at = $5
		WHERE id = $6 AND user_id = $7
		RETURNING created_at, updated_at
	`, p.Name, strings.ToLower(p.Name), p.Color, p.Archived, time.Now().UTC(), p.ID, s.userID)
	err := row.Scan(&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Project{}, fmt.Errorf("update project %s: %w", p.ID, ErrNotFound)
	}
	if isPgUnique(err) {
		return model.Project{}, fmt.Errorf("update project %q: %w", p.Name, ErrDuplicate)
	}
	if err != nil {
		return model.Project{}, fmt.Errorf("update project: %w", err)
	}
	return p, nil
}

func (s *postgresStore) DeleteProject(ctx context.Context, id string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM projects WHERE id = $1 AND user_id = $2", id, s.userID)
		if err != nil {
			return fmt.Errorf("delete project: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("delete project %s: %w", id, ErrNotFound)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM time_slots WHERE project_id = $1 AND user_id = $2", id, s.userID); err != nil {
			return fmt.Errorf("delete project slots: %w", err)
		}
		return nil
	})
}

func (s *postgresStore) GetSettings(ctx context.Context) (model.UserSettings, error) {
	var st model.UserSettings
	err := s.pool.QueryRow(ctx, `
		SELECT id, day_start_hour, day_end_hour, time_increment, stats_start_date, stats_end_date
		FROM user_settings WHERE user_id = $1
	`, s.userID).Scan(&st.ID, &st.DayStartHour, &st.DayEndHour, &st.TimeIncrement, &st.StatsStartDate, &st.StatsEndDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.UserSettings{}, fmt.Errorf("settings: %w", ErrNotFound)
	}
	if err != nil {
		return model.UserSettings{}, fmt.Errorf("get settings: %w", err)
	}
	return st, nil
}

func (s *postgresStore) InsertSettings(ctx context.Context, st model.UserSettings) (model.UserSettings, error) {
	st.ID = uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_settings (id, user_id, day_start_hour, day_end_hour, time_increment, stats_start_date, stats_end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, st.ID, s.userID, st.DayStartHour, st.DayEndHour, st.TimeIncrement, st.StatsStartDate, st.StatsEndDate)
	if isPgUnique(err) {
		return model.UserSettings{}, fmt.Errorf("insert settings: %w", ErrDuplicate)
	}
	if err != nil {
		return model.UserSettings{}, fmt.Errorf("insert settings: %w", err)
	}
	return st, nil
}

func (s *postgresStore) UpdateSettings(ctx context.Context, id string, patch SettingsPatch) (model.UserSettings, error) {
	current, err := s.GetSettings(ctx)
	if err != nil {
		return model.UserSettings{}, err
	}
	if current.ID != id {
		return model.UserSettings{}, fmt.Errorf("update settings %s: %w", id, ErrNotFound)
	}
	st := patch.Apply(current)
	_, err = s.pool.Exec(ctx, `
		UPDATE user_settings
		SET day_start_hour = $1, day_end_hour = $2, time_increment = $3, stats_start_date = $4, stats_end_date = $5
		WHERE id = $6 AND user_id = $7
	`, st.DayStartHour, st.DayEndHour, st.TimeIncrement, st.StatsStartDate, st.StatsEndDate, id, s.userID)
	if err != nil {
		return model.UserSettings{}, fmt.Errorf("update settings: %w", err)
	}
	return st, nil
}
