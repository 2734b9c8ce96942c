package models

import (
	"math"
	"time"
)

// FeedbackType is one of the four student reactions.
type FeedbackType string

const (
	FeedbackHappy     FeedbackType = "happy"
	FeedbackSad       FeedbackType = "sad"
	FeedbackSurprised FeedbackType = "surprised"
	FeedbackConfused  FeedbackType = "confused"
)

// FeedbackTypes lists the valid reaction types.
var FeedbackTypes = []FeedbackType{FeedbackHappy, FeedbackSad, FeedbackSurprised, FeedbackConfused}

// Valid reports whether t is one of the four known reactions.
func (t FeedbackType) Valid() bool {
	switch t {
	case FeedbackHappy, FeedbackSad, FeedbackSurprised, FeedbackConfused:
		return true
	}
	return false
}

// Feedback is one anonymous submission. Append-only: never updated, only
// cascade-deleted with its activity.
type Feedback struct {
	ID         int64        `json:"id"`
	ActivityID int64        `json:"activity_id"`
	Type       FeedbackType `json:"feedback_type"`
	Timestamp  time.Time    `json:"timestamp"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Stats is the per-activity aggregate: counts per type plus independently
// rounded percentages. Percentages may not sum to 100; consumers rely on the
// per-type rounding, so it is preserved rather than normalized.
type Stats struct {
	Total            int `json:"total"`
	Happy            int `json:"happy"`
	Sad              int `json:"sad"`
	Surprised        int `json:"surprised"`
	Confused         int `json:"confused"`
	HappyPercent     int `json:"happyPercent"`
	SadPercent       int `json:"sadPercent"`
	SurprisedPercent int `json:"surprisedPercent"`
	ConfusedPercent  int `json:"confusedPercent"`
}

// Count returns the count for one type.
func (s *Stats) Count(t FeedbackType) int {
	switch t {
	case FeedbackHappy:
		return s.Happy
	case FeedbackSad:
		return s.Sad
	case FeedbackSurprised:
		return s.Surprised
	case FeedbackConfused:
		return s.Confused
	}
	return 0
}

// Add increments the count for one type and the total.
func (s *Stats) Add(t FeedbackType, n int) {
	switch t {
	case FeedbackHappy:
		s.Happy += n
	case FeedbackSad:
		s.Sad += n
	case FeedbackSurprised:
		s.Surprised += n
	case FeedbackConfused:
		s.Confused += n
	default:
		return
	}
	s.Total += n
}

// ComputePercents fills the percentage fields from the counts. Each type is
// rounded independently; all zero when Total is zero.
func (s *Stats) ComputePercents() {
	s.HappyPercent = percent(s.Happy, s.Total)
	s.SadPercent = percent(s.Sad, s.Total)
	s.SurprisedPercent = percent(s.Surprised, s.Total)
	s.ConfusedPercent = percent(s.Confused, s.Total)
}

func percent(count, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(count) / float64(total)))
}
