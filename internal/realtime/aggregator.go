package realtime

import (
	"context"
	"sync"

	"github.com/classpulse/backend/internal/models"
)

// StatsSource rebuilds an activity's counts from the durable feedback log.
type StatsSource interface {
	CountFeedbackByType(ctx context.Context, activityID int64) (map[models.FeedbackType]int, error)
}

// Aggregator maintains per-activity running counts derived from accepted
// submissions. It is a cache over the feedback log, never a second source of
// truth: a cold entry is rebuilt lazily from the store, so the process can
// restart without losing counts.
type Aggregator struct {
	mu     sync.Mutex
	source StatsSource
	cache  map[int64]*models.Stats
}

// NewAggregator creates an aggregator backed by the given source.
func NewAggregator(source StatsSource) *Aggregator {
	return &Aggregator{source: source, cache: make(map[int64]*models.Stats)}
}

// Record folds one accepted submission into the running counts and returns
// the post-increment snapshot. Must be called only after the submission was
// durably appended.
//
// Cold-start subtlety: when the cache entry is missing, the rebuild query
// already includes the row this call accounts for, so no increment is
// applied on top of a fresh rebuild. Callers serialize submissions per
// activity (see Hub room locks), which keeps rebuild and increment coherent.
func (a *Aggregator) Record(ctx context.Context, activityID int64, ft models.FeedbackType) (models.Stats, error) {
	loaded, err := a.ensure(ctx, activityID)
	if err != nil {
		return models.Stats{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.cache[activityID]
	if !loaded {
		s.Add(ft, 1)
	}
	return snapshot(s), nil
}

// Stats returns the current aggregate for an activity, rebuilding from the
// store when not cached.
func (a *Aggregator) Stats(ctx context.Context, activityID int64) (models.Stats, error) {
	if _, err := a.ensure(ctx, activityID); err != nil {
		return models.Stats{}, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return snapshot(a.cache[activityID]), nil
}

// Forget drops the cached entry, e.g. when the activity is deleted.
func (a *Aggregator) Forget(activityID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.cache, activityID)
}

// ensure populates the cache entry from the store when absent. Returns true
// when this call performed the rebuild.
func (a *Aggregator) ensure(ctx context.Context, activityID int64) (bool, error) {
	a.mu.Lock()
	_, ok := a.cache[activityID]
	a.mu.Unlock()
	if ok {
		return false, nil
	}

	counts, err := a.source.CountFeedbackByType(ctx, activityID)
	if err != nil {
		return false, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.cache[activityID]; ok {
		return false, nil
	}
	s := &models.Stats{}
	for t, n := range counts {
		s.Add(t, n)
	}
	a.cache[activityID] = s
	return true, nil
}

func snapshot(s *models.Stats) models.Stats {
	out := *s
	out.ComputePercents()
	return out
}
