package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"coursehub/internal/microservices/http-api/models"
	"coursehub/internal/shared"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const progressColumns = `user_id, lesson_id, watch_time_seconds, position_seconds, duration_seconds,
	completed, notes, last_watched_at, created_at`

// pgProgressRepository is the raw SQL store over pgxpool, selected with STORE_DRIVER=pgx.
type pgProgressRepository struct {
	pool *pgxpool.Pool
}

func NewPgProgressRepository(pool *pgxpool.Pool) ProgressRepository {
	return &pgProgressRepository{pool: pool}
}

func scanProgress(row pgx.Row) (*models.ProgressRecord, error) {
	var p models.ProgressRecord
	err := row.Scan(&p.UserID, &p.LessonID, &p.WatchTimeSeconds, &p.PositionSeconds,
		&p.DurationSeconds, &p.Completed, &p.Notes, &p.LastWatchedAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *pgProgressRepository) Get(ctx context.Context, userID, lessonID string) (*models.ProgressRecord, error) {
	q := `SELECT ` + progressColumns + ` FROM lesson_progress WHERE user_id = $1 AND lesson_id = $2`
	p, err := scanProgress(r.pool.QueryRow(ctx, q, userID, lessonID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storeError("get progress", err)
	}
	return p, nil
}

func (r *pgProgressRepository) Upsert(ctx context.Context, userID, lessonID string, fields ProgressFields) (*models.ProgressRecord, error) {
	ctx, span := tracer.Start(ctx, "progress.upsert.pgx")
	defer span.End()

	if userID == "" || lessonID == "" {
		return nil, shared.NewValidationError("key", "user and lesson are required")
	}
	if fields.IsEmpty() {
		return nil, shared.NewValidationError("fields", "at least one field is required")
	}
	if err := r.checkReferences(ctx, userID, lessonID); err != nil {
		return nil, err
	}

	var (
		watch, duration float64
		completed       bool
		notes           string
	)
	sets := []string{"last_watched_at = EXCLUDED.last_watched_at"}
	if fields.WatchTimeSeconds != nil {
		watch = *fields.WatchTimeSeconds
		sets = append(sets, "watch_time_seconds = EXCLUDED.watch_time_seconds")
	}
	if fields.PositionSeconds != nil {
		sets = append(sets, "position_seconds = EXCLUDED.position_seconds")
	}
	if fields.DurationSeconds != nil {
		duration = *fields.DurationSeconds
		sets = append(sets, "duration_seconds = EXCLUDED.duration_seconds")
	}
	if fields.Completed != nil {
		completed = *fields.Completed
		sets = append(sets, "completed = lesson_progress.completed OR EXCLUDED.completed")
	}
	if fields.Notes != nil {
		notes = *fields.Notes
		sets = append(sets, "notes = EXCLUDED.notes")
	}

	q := fmt.Sprintf(`
INSERT INTO lesson_progress (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
ON CONFLICT (user_id, lesson_id)
DO UPDATE SET
  %s
RETURNING %s`, progressColumns, strings.Join(sets, ",\n  "), progressColumns)

	p, err := scanProgress(r.pool.QueryRow(ctx, q,
		userID, lessonID, watch, fields.PositionSeconds, duration, completed, notes, time.Now().UTC(),
	))
	if err != nil {
		span.RecordError(err)
		return nil, upsertError(err, userID, lessonID)
	}
	return p, nil
}

func (r *pgProgressRepository) checkReferences(ctx context.Context, userID, lessonID string) error {
	var userOK, lessonOK bool
	err := r.pool.QueryRow(ctx, `
SELECT
  EXISTS (SELECT 1 FROM users WHERE id = $1 AND deleted_at IS NULL),
  EXISTS (
    SELECT 1 FROM lessons l
    JOIN course_modules m ON m.id = l.module_id AND m.deleted_at IS NULL
    WHERE l.id = $2 AND l.deleted_at IS NULL)`,
		userID, lessonID,
	).Scan(&userOK, &lessonOK)
	if err != nil {
		return storeError("check references", err)
	}
	if !userOK {
		return shared.ReferenceError("user", userID)
	}
	if !lessonOK {
		return shared.ReferenceError("lesson", lessonID)
	}
	return nil
}

func (r *pgProgressRepository) Reset(ctx context.Context, userID, lessonID string) (*models.ProgressRecord, error) {
	q := `
UPDATE lesson_progress
SET completed = false, position_seconds = NULL, watch_time_seconds = 0, last_watched_at = $3
WHERE user_id = $1 AND lesson_id = $2
RETURNING ` + progressColumns
	p, err := scanProgress(r.pool.QueryRow(ctx, q, userID, lessonID, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storeError("reset progress", err)
	}
	return p, nil
}

func (r *pgProgressRepository) ListByUser(ctx context.Context, userID string, lessonIDs []string) (map[string]*models.ProgressRecord, error) {
	out := make(map[string]*models.ProgressRecord, len(lessonIDs))
	if len(lessonIDs) == 0 {
		return out, nil
	}

	q := `SELECT ` + progressColumns + ` FROM lesson_progress WHERE user_id = $1 AND lesson_id = ANY($2)`
	rows, err := r.pool.Query(ctx, q, userID, lessonIDs)
	if err != nil {
		return nil, storeError("list progress", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, shared.StorageError("scan progress", err)
		}
		out[p.LessonID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StorageError("list progress", err)
	}
	return out, nil
}

func (r *pgProgressRepository) ListRecent(ctx context.Context, userID string, limit int) ([]models.ProgressRecord, error) {
	q := `SELECT ` + progressColumns + ` FROM lesson_progress
	      WHERE user_id = $1 ORDER BY last_watched_at DESC, lesson_id LIMIT $2`
	rows, err := r.pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, storeError("list recent progress", err)
	}
	defer rows.Close()

	var out []models.ProgressRecord
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, shared.StorageError("scan progress", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StorageError("list recent progress", err)
	}
	return out, nil
}
