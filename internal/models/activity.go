package models

import "time"

// Duration bounds for an activity, in minutes.
const (
	MinDurationMinutes     = 5
	MaxDurationMinutes     = 480
	DefaultDurationMinutes = 60
)

// Activity is a time-boxed feedback-collection session owned by a teacher,
// joined by students via a short access code.
type Activity struct {
	ID              int64      `json:"id"`
	TeacherID       int64      `json:"teacher_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	AccessCode      string     `json:"access_code"`
	DurationMinutes int        `json:"duration"`
	StartsAt        *time.Time `json:"starts_at"`
	ExpiresAt       *time.Time `json:"expires_at"`
	IsActive        bool       `json:"is_active"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsExpired reports whether the activity no longer accepts submissions at
// the given instant. A cleared IsActive flag always means expired; a nil
// ExpiresAt never expires by clock. Callers must re-evaluate on every read
// rather than trust a stored flag.
func (a *Activity) IsExpired(now time.Time) bool {
	if !a.IsActive {
		return true
	}
	if a.ExpiresAt == nil {
		return false
	}
	return now.After(*a.ExpiresAt)
}

// RemainingSeconds returns the whole seconds left until expiry, 0 once
// expired. Never negative.
func (a *Activity) RemainingSeconds(now time.Time) int64 {
	if a.IsExpired(now) || a.ExpiresAt == nil {
		return 0
	}
	secs := int64(a.ExpiresAt.Sub(now) / time.Second)
	if secs < 0 {
		return 0
	}
	return secs
}

// Stop deactivates the activity and pins its expiry to now, so both the
// kill switch and the clock agree it is over.
func (a *Activity) Stop(now time.Time) {
	a.IsActive = false
	t := now
	a.ExpiresAt = &t
}
