package models

import (
	"testing"
	"time"
)

func timeboxed(start time.Time, minutes int) *Activity {
	expires := start.Add(time.Duration(minutes) * time.Minute)
	return &Activity{
		ID:              1,
		TeacherID:       1,
		Title:           "Quick pulse",
		DurationMinutes: minutes,
		StartsAt:        &start,
		ExpiresAt:       &expires,
		IsActive:        true,
	}
}

func TestActivityExpiresByClock(t *testing.T) {
	t0 := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	a := timeboxed(t0, 5)

	if a.IsExpired(t0) {
		t.Fatal("active at start")
	}
	if a.IsExpired(t0.Add(300 * time.Second)) {
		t.Fatal("still active exactly at the deadline")
	}
	if !a.IsExpired(t0.Add(301 * time.Second)) {
		t.Fatal("expired one second past the deadline")
	}
}

func TestActivityInactiveFlagWins(t *testing.T) {
	t0 := time.Now()
	a := timeboxed(t0, 60)
	a.IsActive = false
	if !a.IsExpired(t0) {
		t.Fatal("deactivated activity is expired regardless of the clock")
	}
}

func TestActivityNilExpiryNeverClockExpires(t *testing.T) {
	a := &Activity{IsActive: true}
	if a.IsExpired(time.Now().Add(1000 * time.Hour)) {
		t.Fatal("nil expiry must not expire by clock")
	}
	if got := a.RemainingSeconds(time.Now()); got != 0 {
		t.Fatalf("nil expiry remaining: want 0, got %d", got)
	}
}

func TestRemainingSecondsCountsDown(t *testing.T) {
	t0 := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	a := timeboxed(t0, 5)

	if got := a.RemainingSeconds(t0); got != 300 {
		t.Fatalf("at start: want 300, got %d", got)
	}
	if got := a.RemainingSeconds(t0.Add(time.Second)); got != 299 {
		t.Fatalf("after 1s: want 299, got %d", got)
	}
	if got := a.RemainingSeconds(t0.Add(299*time.Second + 500*time.Millisecond)); got != 0 {
		t.Fatalf("fractional second left rounds down: want 0, got %d", got)
	}
	if got := a.RemainingSeconds(t0.Add(10 * time.Minute)); got != 0 {
		t.Fatalf("past the deadline: want 0, got %d", got)
	}
}

func TestStopPinsExpiryToNow(t *testing.T) {
	t0 := time.Now()
	a := timeboxed(t0, 60)

	stopAt := t0.Add(10 * time.Minute)
	a.Stop(stopAt)

	if a.IsActive {
		t.Fatal("stop must clear the active flag")
	}
	if a.ExpiresAt == nil || !a.ExpiresAt.Equal(stopAt) {
		t.Fatalf("stop must pin expiry to the stop instant, got %v", a.ExpiresAt)
	}
	if !a.IsExpired(stopAt) {
		t.Fatal("stopped activity is expired immediately")
	}
	if got := a.RemainingSeconds(stopAt); got != 0 {
		t.Fatalf("stopped remaining: want 0, got %d", got)
	}
}
