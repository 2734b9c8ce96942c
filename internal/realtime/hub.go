package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/models"
)

// Event names on the live channel, both directions.
const (
	EventJoinActivity       = "join-activity"
	EventLeaveActivity      = "leave-activity"
	EventSendFeedback       = "send-feedback"
	EventStatsUpdate        = "stats-update"
	EventParticipantsUpdate = "participants-update"
	EventFeedbackUpdate     = "feedback-update"
	EventActivityEnded      = "activity-ended"
	EventError              = "error"
)

// Submission gating errors. Anything else coming out of Submit is a storage
// failure.
var (
	ErrActivityNotFound    = errors.New("activity not found")
	ErrActivityEnded       = errors.New("activity no longer accepts feedback")
	ErrInvalidFeedbackType = errors.New("invalid feedback type")
	ErrRateLimited         = errors.New("too many submissions, slow down")
)

// Store is the durable collaborator the hub consults. It is the single
// source of truth; the hub's aggregate cache is derived from it.
type Store interface {
	GetActivity(ctx context.Context, id int64) (*models.Activity, error)
	AppendFeedback(ctx context.Context, activityID int64, ft models.FeedbackType, ts time.Time) (*models.Feedback, error)
	CountFeedbackByType(ctx context.Context, activityID int64) (map[models.FeedbackType]int, error)
}

// Message is the envelope on the live channel.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// session is the per-connection state record: identity of the live
// connection, its outbound queue and the one room it may be attached to.
// activityID and role are touched only by the connection's own read loop.
type session struct {
	id         string
	role       string
	activityID int64 // 0 = unattached
	send       chan Message
}

// Hub is the real-time session manager: it owns room membership and the
// live aggregate cache, routes join/leave/submit events and fans updates
// out to every member of a room.
type Hub struct {
	registry   *Registry
	aggregator *Aggregator
	store      Store
	limiter    RateLimiter // nil = unlimited
	logger     *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
	locks    map[int64]*sync.Mutex // per-activity submission/join serialization
	ended    map[int64]bool        // rooms already told the activity ended
}

// NewHub creates a hub. limiter may be nil.
func NewHub(store Store, aggregator *Aggregator, limiter RateLimiter, logger *zap.Logger) *Hub {
	return &Hub{
		registry:   NewRegistry(),
		aggregator: aggregator,
		store:      store,
		limiter:    limiter,
		logger:     logger,
		sessions:   make(map[string]*session),
		locks:      make(map[int64]*sync.Mutex),
		ended:      make(map[int64]bool),
	}
}

// connect registers a new live connection and returns its session.
func (h *Hub) connect(role string) *session {
	s := &session{
		id:   uuid.New().String(),
		role: role,
		send: make(chan Message, 256),
	}
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
	h.logger.Debug("client connected", zap.String("client_id", s.id), zap.String("role", role))
	return s
}

// disconnect tears a connection down: drops it from whatever room it was in
// and announces the new participant count. The outbound channel is left open;
// a concurrent broadcast may still hold the session, and the write pump
// exits through the closed network connection instead.
func (h *Hub) disconnect(s *session) {
	h.mu.Lock()
	delete(h.sessions, s.id)
	h.mu.Unlock()

	if activityID, remaining, ok := h.registry.Drop(s.id); ok {
		if remaining == 0 {
			h.clearEnded(activityID)
		}
		h.broadcastRoom(activityID, EventParticipantsUpdate, participantsPayload{Count: remaining})
	}
	h.logger.Debug("client disconnected", zap.String("client_id", s.id))
}

// joinActivity attaches a connection to an activity room. An absent activity
// yields an error event to the requester only; an expired one yields
// activity-ended to the requester only. On success the requester gets the
// current stats snapshot and the whole room gets the new participant count.
func (h *Hub) joinActivity(ctx context.Context, s *session, activityID int64) {
	lock := h.roomLock(activityID)
	lock.Lock()
	defer lock.Unlock()

	activity, err := h.store.GetActivity(ctx, activityID)
	if err != nil || activity == nil {
		h.sendTo(s, EventError, errorPayload{Message: "activity not found"})
		return
	}
	if activity.IsExpired(time.Now()) {
		h.sendTo(s, EventActivityEnded, activityEndedPayload{ActivityID: activityID})
		return
	}
	// The lookup just proved the activity live; re-arm the ended broadcast
	// in case it was stopped and switched back on with members present.
	h.clearEnded(activityID)

	// A connection is attached to at most one room; switching implies
	// leaving the previous one first.
	if s.activityID != 0 && s.activityID != activityID {
		h.leaveRoom(s, s.activityID)
	}

	count := h.registry.Join(activityID, s.id, s.role)
	s.activityID = activityID

	stats, err := h.aggregator.Stats(ctx, activityID)
	if err != nil {
		h.logger.Error("stats rebuild", zap.Int64("activity_id", activityID), zap.Error(err))
		h.sendTo(s, EventError, errorPayload{Message: "failed to load stats"})
	} else {
		h.sendTo(s, EventStatsUpdate, statsPayload{Stats: stats})
	}
	h.broadcastRoom(activityID, EventParticipantsUpdate, participantsPayload{Count: count})
	h.logger.Debug("client joined activity",
		zap.String("client_id", s.id), zap.Int64("activity_id", activityID), zap.String("role", s.role))
}

// leaveActivity detaches a connection from a room. Safe no-op when the
// connection is not attached to that room.
func (h *Hub) leaveActivity(s *session, activityID int64) {
	h.leaveRoom(s, activityID)
}

func (h *Hub) leaveRoom(s *session, activityID int64) {
	remaining := h.registry.Leave(activityID, s.id)
	if s.activityID == activityID {
		s.activityID = 0
	}
	if remaining == 0 {
		h.clearEnded(activityID)
	}
	h.broadcastRoom(activityID, EventParticipantsUpdate, participantsPayload{Count: remaining})
}

// handleSendFeedback runs a connection's submission and reports the outcome
// on its channel: errors go only to the sender, accepted submissions are
// broadcast to the room by Submit.
func (h *Hub) handleSendFeedback(ctx context.Context, s *session, activityID int64, ft models.FeedbackType) {
	if _, _, err := h.Submit(ctx, s.id, activityID, ft); err != nil {
		msg := "failed to save feedback"
		switch {
		case errors.Is(err, ErrActivityNotFound), errors.Is(err, ErrActivityEnded):
			msg = "activity no longer accepts feedback"
		case errors.Is(err, ErrInvalidFeedbackType):
			msg = "invalid feedback type"
		case errors.Is(err, ErrRateLimited):
			msg = err.Error()
		default:
			h.logger.Error("submit feedback", zap.Int64("activity_id", activityID), zap.Error(err))
		}
		h.sendTo(s, EventError, errorPayload{Message: msg})
	}
}

// Submit accepts one anonymous submission: gate on fresh activity state and
// feedback type, append durably, fold into the aggregate, then broadcast
// feedback-update and a redundant stats-update to the room. The store write
// gates everything: on failure the aggregate is untouched and nothing is
// broadcast. connKey identifies the submitter for rate limiting (connection
// ID on the live path, client IP on the REST path).
func (h *Hub) Submit(ctx context.Context, connKey string, activityID int64, ft models.FeedbackType) (*models.Feedback, models.Stats, error) {
	lock := h.roomLock(activityID)
	lock.Lock()
	defer lock.Unlock()

	activity, err := h.store.GetActivity(ctx, activityID)
	if err != nil || activity == nil {
		return nil, models.Stats{}, ErrActivityNotFound
	}
	if activity.IsExpired(time.Now()) {
		return nil, models.Stats{}, ErrActivityEnded
	}
	if !ft.Valid() {
		return nil, models.Stats{}, ErrInvalidFeedbackType
	}
	if h.limiter != nil {
		allowed, err := h.limiter.Allow(ctx, fmt.Sprintf("fb:%d:%s", activityID, connKey))
		if err != nil {
			// Fail open: a broken limiter must not block the classroom.
			h.logger.Warn("rate limiter unavailable", zap.Error(err))
		} else if !allowed {
			return nil, models.Stats{}, ErrRateLimited
		}
	}

	fb, err := h.store.AppendFeedback(ctx, activityID, ft, time.Now())
	if err != nil {
		return nil, models.Stats{}, fmt.Errorf("append feedback: %w", err)
	}

	stats, err := h.aggregator.Record(ctx, activityID, ft)
	if err != nil {
		// The row is durable; the cache rebuilds from the log on next read.
		h.aggregator.Forget(activityID)
		return nil, models.Stats{}, fmt.Errorf("update aggregate: %w", err)
	}

	h.broadcastRoom(activityID, EventFeedbackUpdate, feedbackUpdatePayload{Feedback: fb, Stats: stats})
	h.broadcastRoom(activityID, EventStatsUpdate, statsPayload{Stats: stats})
	return fb, stats, nil
}

// NotifyActivityEnded proactively tells every room member the activity no
// longer accepts submissions. Called by the stop/delete workflows and by the
// expiry sweep; broadcast at most once per room occupancy.
func (h *Hub) NotifyActivityEnded(activityID int64) {
	h.mu.Lock()
	already := h.ended[activityID]
	h.ended[activityID] = true
	h.mu.Unlock()
	if already {
		return
	}
	h.broadcastRoom(activityID, EventActivityEnded, activityEndedPayload{ActivityID: activityID})
	h.logger.Info("activity ended", zap.Int64("activity_id", activityID))
}

// NotifyActivityResumed re-arms the activity-ended broadcast after a
// deactivated activity is switched back on while members remain in its room.
func (h *Hub) NotifyActivityResumed(activityID int64) {
	h.clearEnded(activityID)
}

// ForgetActivity drops derived state for a deleted activity and tells any
// remaining room members it is gone.
func (h *Hub) ForgetActivity(activityID int64) {
	h.NotifyActivityEnded(activityID)
	h.aggregator.Forget(activityID)
}

// ParticipantCount returns the live member count of an activity's room.
func (h *Hub) ParticipantCount(activityID int64) int {
	return h.registry.Count(activityID)
}

// RunExpirySweep periodically checks occupied rooms against the store and
// broadcasts activity-ended when the wall clock has passed an activity's
// expiry. Blocks until ctx is done. With interval d, no room member is left
// believing an expired activity is live for more than ~d.
func (h *Hub) RunExpirySweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweepOnce(ctx)
		}
	}
}

func (h *Hub) sweepOnce(ctx context.Context) {
	now := time.Now()
	for _, activityID := range h.registry.RoomIDs() {
		activity, err := h.store.GetActivity(ctx, activityID)
		if err != nil {
			h.logger.Warn("sweep lookup", zap.Int64("activity_id", activityID), zap.Error(err))
			continue
		}
		if activity == nil || activity.IsExpired(now) {
			h.NotifyActivityEnded(activityID)
		} else {
			// Live again after a stop: re-arm the ended broadcast so the
			// room hears about the next expiry.
			h.clearEnded(activityID)
		}
	}
}

// clearEnded re-arms the one-shot activity-ended broadcast once a room has
// fully emptied.
func (h *Hub) clearEnded(activityID int64) {
	h.mu.Lock()
	delete(h.ended, activityID)
	h.mu.Unlock()
}

func (h *Hub) roomLock(activityID int64) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	lock, ok := h.locks[activityID]
	if !ok {
		lock = &sync.Mutex{}
		h.locks[activityID] = lock
	}
	return lock
}

// sendTo queues a message for a single session. A full buffer drops the
// message rather than blocking the hub.
func (h *Hub) sendTo(s *session, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case s.send <- Message{Event: event, Data: data}:
	default:
		// buffer full, skip
	}
}

// broadcastRoom fans a message out to every current member of a room. One
// slow member never aborts delivery to the rest.
func (h *Hub) broadcastRoom(activityID int64, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	msg := Message{Event: event, Data: data}

	members := h.registry.Members(activityID)
	h.mu.Lock()
	targets := make([]*session, 0, len(members))
	for _, id := range members {
		if s, ok := h.sessions[id]; ok {
			targets = append(targets, s)
		}
	}
	h.mu.Unlock()

	for _, s := range targets {
		select {
		case s.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Outbound payloads.

type statsPayload struct {
	Stats models.Stats `json:"stats"`
}

type participantsPayload struct {
	Count int `json:"count"`
}

type feedbackUpdatePayload struct {
	Feedback *models.Feedback `json:"feedback"`
	Stats    models.Stats     `json:"stats"`
}

type activityEndedPayload struct {
	ActivityID int64 `json:"activityId"`
}

type errorPayload struct {
	Message string `json:"message"`
}
