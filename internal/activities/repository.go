package activities

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classpulse/backend/internal/models"
)

// ErrCodeTaken is returned by Create when the access code lost a uniqueness
// race. The creation workflow retries with a fresh code.
var ErrCodeTaken = errors.New("access code already in use")

// Repository handles activity persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an activity repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const activityColumns = `id, teacher_id, title, description, access_code, duration, starts_at, expires_at, is_active, created_at, updated_at`

func scanActivity(row pgx.Row) (*models.Activity, error) {
	var a models.Activity
	err := row.Scan(&a.ID, &a.TeacherID, &a.Title, &a.Description, &a.AccessCode, &a.DurationMinutes,
		&a.StartsAt, &a.ExpiresAt, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// Create inserts a new activity. The caller supplies a pre-verified-unique
// access code; a lost race surfaces as ErrCodeTaken.
func (r *Repository) Create(ctx context.Context, a *models.Activity) error {
	const q = `INSERT INTO activities (teacher_id, title, description, access_code, duration, starts_at, expires_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		RETURNING id, is_active, created_at, updated_at`
	err := r.pool.QueryRow(ctx, q, a.TeacherID, a.Title, a.Description, a.AccessCode, a.DurationMinutes, a.StartsAt, a.ExpiresAt).
		Scan(&a.ID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrCodeTaken
	}
	return err
}

// GetByID returns an activity by ID, or (nil, nil) when absent.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Activity, error) {
	const q = `SELECT ` + activityColumns + ` FROM activities WHERE id = $1`
	return scanActivity(r.pool.QueryRow(ctx, q, id))
}

// GetByAccessCode returns an activity by its access code along with the
// owning teacher's display name, or (nil, "", nil) when absent.
func (r *Repository) GetByAccessCode(ctx context.Context, code string) (*models.Activity, string, error) {
	const q = `SELECT a.id, a.teacher_id, a.title, a.description, a.access_code, a.duration,
			a.starts_at, a.expires_at, a.is_active, a.created_at, a.updated_at, u.full_name
		FROM activities a
		JOIN users u ON u.id = a.teacher_id
		WHERE a.access_code = $1`
	var a models.Activity
	var teacherName string
	err := r.pool.QueryRow(ctx, q, code).
		Scan(&a.ID, &a.TeacherID, &a.Title, &a.Description, &a.AccessCode, &a.DurationMinutes,
			&a.StartsAt, &a.ExpiresAt, &a.IsActive, &a.CreatedAt, &a.UpdatedAt, &teacherName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", err
	}
	return &a, teacherName, nil
}

// CodeInUse reports whether any activity, of any lifecycle state, holds the
// code. Codes are never recycled, so expired activities still count.
func (r *Repository) CodeInUse(ctx context.Context, code string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM activities WHERE access_code = $1)`
	var exists bool
	err := r.pool.QueryRow(ctx, q, code).Scan(&exists)
	return exists, err
}

// ListByTeacher returns a teacher's activities, newest first. status filters:
// "active" (flag set and clock not past expiry), "expired" (either failed),
// anything else returns all.
func (r *Repository) ListByTeacher(ctx context.Context, teacherID int64, status string) ([]models.Activity, error) {
	q := `SELECT ` + activityColumns + ` FROM activities WHERE teacher_id = $1`
	switch status {
	case "active":
		q += ` AND is_active AND (expires_at IS NULL OR expires_at > NOW())`
	case "expired":
		q += ` AND (NOT is_active OR expires_at <= NOW())`
	}
	q += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, q, teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

// Update changes title, description and the active flag.
func (r *Repository) Update(ctx context.Context, a *models.Activity) error {
	const q = `UPDATE activities SET title = $1, description = $2, is_active = $3, updated_at = NOW()
		WHERE id = $4
		RETURNING updated_at`
	return r.pool.QueryRow(ctx, q, a.Title, a.Description, a.IsActive, a.ID).Scan(&a.UpdatedAt)
}

// Stop deactivates the activity and pins expires_at to now.
func (r *Repository) Stop(ctx context.Context, id int64, now time.Time) error {
	const q = `UPDATE activities SET is_active = FALSE, expires_at = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.pool.Exec(ctx, q, now, id)
	return err
}

// DeleteCascade removes an activity; its feedback goes with it via the
// ON DELETE CASCADE constraint.
func (r *Repository) DeleteCascade(ctx context.Context, id int64) error {
	const q = `DELETE FROM activities WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, id)
	return err
}
