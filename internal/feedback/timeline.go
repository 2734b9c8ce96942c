package feedback

import (
	"sort"
	"time"

	"github.com/classpulse/backend/internal/models"
)

// TypeBucket is one (feedback type, minute) group from the store.
type TypeBucket struct {
	Type   models.FeedbackType
	Minute time.Time
	Count  int
}

// TimelineRow is one chart row: a minute that saw at least one submission,
// with counts for all four types.
type TimelineRow struct {
	Timestamp time.Time `json:"timestamp"`
	Happy     int       `json:"happy"`
	Sad       int       `json:"sad"`
	Surprised int       `json:"surprised"`
	Confused  int       `json:"confused"`
}

// BuildTimeline folds per-(type, minute) buckets into ordered chart rows.
// Minutes with no submissions are omitted, not zero-filled.
func BuildTimeline(buckets []TypeBucket) []TimelineRow {
	byMinute := make(map[time.Time]*TimelineRow)
	for _, b := range buckets {
		row, ok := byMinute[b.Minute]
		if !ok {
			row = &TimelineRow{Timestamp: b.Minute}
			byMinute[b.Minute] = row
		}
		switch b.Type {
		case models.FeedbackHappy:
			row.Happy += b.Count
		case models.FeedbackSad:
			row.Sad += b.Count
		case models.FeedbackSurprised:
			row.Surprised += b.Count
		case models.FeedbackConfused:
			row.Confused += b.Count
		}
	}

	rows := make([]TimelineRow, 0, len(byMinute))
	for _, row := range byMinute {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })
	return rows
}
