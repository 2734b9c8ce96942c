package feedback

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/classpulse/backend/internal/models"
)

// Repository handles the append-only feedback log.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a feedback repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// AppendFeedback durably appends one submission. The caller checks activity
// expiry first; the foreign key still rejects submissions to absent
// activities.
func (r *Repository) AppendFeedback(ctx context.Context, activityID int64, ft models.FeedbackType, ts time.Time) (*models.Feedback, error) {
	const q = `INSERT INTO feedback (activity_id, feedback_type, timestamp)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`
	fb := &models.Feedback{ActivityID: activityID, Type: ft, Timestamp: ts}
	err := r.pool.QueryRow(ctx, q, activityID, ft, ts).Scan(&fb.ID, &fb.CreatedAt)
	if err != nil {
		return nil, err
	}
	return fb, nil
}

// CountFeedbackByType returns the per-type counts for an activity. Types
// with no submissions are simply absent from the map.
func (r *Repository) CountFeedbackByType(ctx context.Context, activityID int64) (map[models.FeedbackType]int, error) {
	const q = `SELECT feedback_type, COUNT(*) FROM feedback WHERE activity_id = $1 GROUP BY feedback_type`
	rows, err := r.pool.Query(ctx, q, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.FeedbackType]int)
	for rows.Next() {
		var t models.FeedbackType
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, err
		}
		counts[t] = n
	}
	return counts, rows.Err()
}

// ListByActivity returns an activity's feedback, newest first.
func (r *Repository) ListByActivity(ctx context.Context, activityID int64) ([]models.Feedback, error) {
	const q = `SELECT id, activity_id, feedback_type, timestamp, created_at
		FROM feedback WHERE activity_id = $1 ORDER BY timestamp DESC`
	rows, err := r.pool.Query(ctx, q, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Feedback
	for rows.Next() {
		var fb models.Feedback
		if err := rows.Scan(&fb.ID, &fb.ActivityID, &fb.Type, &fb.Timestamp, &fb.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, fb)
	}
	return list, rows.Err()
}

// ListTimeline returns per-(type, minute) counts ordered by minute, the raw
// material for the presenter trend chart.
func (r *Repository) ListTimeline(ctx context.Context, activityID int64) ([]TypeBucket, error) {
	const q = `SELECT feedback_type, date_trunc('minute', timestamp) AS minute, COUNT(*)
		FROM feedback WHERE activity_id = $1
		GROUP BY feedback_type, minute
		ORDER BY minute ASC`
	rows, err := r.pool.Query(ctx, q, activityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []TypeBucket
	for rows.Next() {
		var b TypeBucket
		if err := rows.Scan(&b.Type, &b.Minute, &b.Count); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}
