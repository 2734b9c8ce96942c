package realtime

import (
	"context"
	"errors"
	"testing"

	"github.com/classpulse/backend/internal/models"
)

// fakeStatsSource serves fixed counts, as if read from the feedback log.
type fakeStatsSource struct {
	counts map[int64]map[models.FeedbackType]int
	err    error
	calls  int
}

func (f *fakeStatsSource) CountFeedbackByType(ctx context.Context, activityID int64) (map[models.FeedbackType]int, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.counts[activityID], nil
}

func TestAggregatorColdRebuild(t *testing.T) {
	source := &fakeStatsSource{counts: map[int64]map[models.FeedbackType]int{
		1: {models.FeedbackHappy: 2, models.FeedbackSad: 1},
	}}
	a := NewAggregator(source)

	stats, err := a.Stats(context.Background(), 1)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Happy != 2 || stats.Sad != 1 {
		t.Fatalf("rebuilt counts: want total=3 happy=2 sad=1, got %+v", stats)
	}
	if stats.HappyPercent != 67 || stats.SadPercent != 33 {
		t.Fatalf("percents: want happy=67 sad=33, got %+v", stats)
	}

	// second read is served from cache
	if _, err := a.Stats(context.Background(), 1); err != nil {
		t.Fatalf("cached stats: %v", err)
	}
	if source.calls != 1 {
		t.Fatalf("source queried %d times, want 1", source.calls)
	}
}

func TestAggregatorRecordIncrementsWarmCache(t *testing.T) {
	source := &fakeStatsSource{counts: map[int64]map[models.FeedbackType]int{}}
	a := NewAggregator(source)
	ctx := context.Background()

	// warm the entry first
	if _, err := a.Stats(ctx, 1); err != nil {
		t.Fatalf("warm: %v", err)
	}

	stats, err := a.Record(ctx, 1, models.FeedbackSurprised)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if stats.Total != 1 || stats.Surprised != 1 {
		t.Fatalf("after record: want total=1 surprised=1, got %+v", stats)
	}

	stats, err = a.Record(ctx, 1, models.FeedbackHappy)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if stats.Total != 2 || stats.Happy != 1 || stats.Surprised != 1 {
		t.Fatalf("after second record: got %+v", stats)
	}
	if stats.HappyPercent != 50 || stats.SurprisedPercent != 50 {
		t.Fatalf("percents: want 50/50, got %+v", stats)
	}
}

// A cold Record rebuilds from the log, and the rebuild already includes the
// row the call accounts for. No increment on top.
func TestAggregatorRecordColdDoesNotDoubleCount(t *testing.T) {
	source := &fakeStatsSource{counts: map[int64]map[models.FeedbackType]int{
		1: {models.FeedbackHappy: 1},
	}}
	a := NewAggregator(source)

	stats, err := a.Record(context.Background(), 1, models.FeedbackHappy)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if stats.Total != 1 || stats.Happy != 1 {
		t.Fatalf("cold record: want total=1 happy=1, got %+v", stats)
	}
}

func TestAggregatorPropagatesSourceError(t *testing.T) {
	source := &fakeStatsSource{err: errors.New("connection refused")}
	a := NewAggregator(source)

	if _, err := a.Stats(context.Background(), 1); err == nil {
		t.Fatal("want rebuild error, got nil")
	}
	if _, err := a.Record(context.Background(), 1, models.FeedbackHappy); err == nil {
		t.Fatal("want record error, got nil")
	}
}

func TestAggregatorForget(t *testing.T) {
	source := &fakeStatsSource{counts: map[int64]map[models.FeedbackType]int{
		1: {models.FeedbackSad: 4},
	}}
	a := NewAggregator(source)
	ctx := context.Background()

	if _, err := a.Stats(ctx, 1); err != nil {
		t.Fatalf("stats: %v", err)
	}
	a.Forget(1)

	// log shrank underneath us (activity recreated); a fresh read rebuilds
	source.counts[1] = map[models.FeedbackType]int{models.FeedbackSad: 1}
	stats, err := a.Stats(ctx, 1)
	if err != nil {
		t.Fatalf("stats after forget: %v", err)
	}
	if stats.Sad != 1 || stats.Total != 1 {
		t.Fatalf("after forget: want total=1 sad=1, got %+v", stats)
	}
	if source.calls != 2 {
		t.Fatalf("source queried %d times, want 2", source.calls)
	}
}
