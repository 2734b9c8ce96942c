package feedback

import (
	"context"
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/middleware"
	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/internal/realtime"
	"github.com/classpulse/backend/pkg/response"
)

// Submitter runs the gated submission path. The hub satisfies it, so REST
// submissions share the expiry check, durable append, aggregate update and
// room broadcast with the live channel.
type Submitter interface {
	Submit(ctx context.Context, connKey string, activityID int64, ft models.FeedbackType) (*models.Feedback, models.Stats, error)
}

// FeedbackStore is the read side of the feedback log.
type FeedbackStore interface {
	ListByActivity(ctx context.Context, activityID int64) ([]models.Feedback, error)
	ListTimeline(ctx context.Context, activityID int64) ([]TypeBucket, error)
	CountFeedbackByType(ctx context.Context, activityID int64) (map[models.FeedbackType]int, error)
}

// ActivitySource looks activities up for ownership and existence checks.
type ActivitySource interface {
	GetByID(ctx context.Context, id int64) (*models.Activity, error)
}

// CreateRequest is the body for POST /api/feedback.
type CreateRequest struct {
	ActivityID   int64  `json:"activityId" binding:"required"`
	FeedbackType string `json:"feedbackType" binding:"required"`
}

// Handler handles feedback HTTP endpoints.
type Handler struct {
	submitter  Submitter
	store      FeedbackStore
	activities ActivitySource
	logger     *zap.Logger
}

// NewHandler creates a feedback handler.
func NewHandler(submitter Submitter, store FeedbackStore, activities ActivitySource, logger *zap.Logger) *Handler {
	return &Handler{submitter: submitter, store: store, activities: activities, logger: logger}
}

// Create handles POST /api/feedback (public, anonymous). Goes through the
// hub so live viewers see REST submissions too.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	fb, stats, err := h.submitter.Submit(c.Request.Context(), c.ClientIP(), req.ActivityID, models.FeedbackType(req.FeedbackType))
	if err != nil {
		switch {
		case errors.Is(err, realtime.ErrActivityNotFound):
			response.NotFound(c, "activity not found")
		case errors.Is(err, realtime.ErrActivityEnded):
			response.BadRequest(c, "activity no longer accepts feedback")
		case errors.Is(err, realtime.ErrInvalidFeedbackType):
			response.BadRequest(c, "invalid feedback type")
		case errors.Is(err, realtime.ErrRateLimited):
			response.TooManyRequests(c, err.Error())
		default:
			h.logger.Error("create feedback", zap.Error(err))
			response.Internal(c, "failed to save feedback")
		}
		return
	}

	response.Created(c, gin.H{"feedback": fb, "stats": stats})
}

// GetByActivity handles GET /api/feedback/:activityId (owner): the raw rows
// plus the aggregate.
func (h *Handler) GetByActivity(c *gin.Context) {
	activity, ok := h.ownedActivity(c)
	if !ok {
		return
	}

	list, err := h.store.ListByActivity(c.Request.Context(), activity.ID)
	if err != nil {
		h.logger.Error("list feedback", zap.Error(err))
		response.Internal(c, "failed to list feedback")
		return
	}
	stats, err := h.statsFor(c.Request.Context(), activity.ID)
	if err != nil {
		response.Internal(c, "failed to load stats")
		return
	}
	response.OK(c, gin.H{"feedback": list, "stats": stats})
}

// Timeline handles GET /api/feedback/:activityId/timeline (owner): per-minute
// bucketed counts for the trend chart, recomputed on each request.
func (h *Handler) Timeline(c *gin.Context) {
	activity, ok := h.ownedActivity(c)
	if !ok {
		return
	}

	buckets, err := h.store.ListTimeline(c.Request.Context(), activity.ID)
	if err != nil {
		h.logger.Error("timeline", zap.Error(err))
		response.Internal(c, "failed to load timeline")
		return
	}
	response.OK(c, gin.H{"timeline": BuildTimeline(buckets)})
}

// Stats handles GET /api/feedback/:activityId/stats (public): the polling
// counterpart of the live stats-update event.
func (h *Handler) Stats(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("activityId"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid activity id")
		return
	}
	activity, err := h.activities.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get activity", zap.Error(err))
		response.Internal(c, "failed to load activity")
		return
	}
	if activity == nil {
		response.NotFound(c, "activity not found")
		return
	}

	stats, err := h.statsFor(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "failed to load stats")
		return
	}
	response.OK(c, gin.H{"stats": stats})
}

func (h *Handler) ownedActivity(c *gin.Context) (*models.Activity, bool) {
	teacherID := c.MustGet(middleware.ContextUserID).(int64)
	id, err := strconv.ParseInt(c.Param("activityId"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid activity id")
		return nil, false
	}
	activity, err := h.activities.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get activity", zap.Error(err))
		response.Internal(c, "failed to load activity")
		return nil, false
	}
	if activity == nil || activity.TeacherID != teacherID {
		response.NotFound(c, "activity not found")
		return nil, false
	}
	return activity, true
}

func (h *Handler) statsFor(ctx context.Context, activityID int64) (*models.Stats, error) {
	counts, err := h.store.CountFeedbackByType(ctx, activityID)
	if err != nil {
		h.logger.Error("count feedback", zap.Error(err))
		return nil, err
	}
	s := &models.Stats{}
	for t, n := range counts {
		s.Add(t, n)
	}
	s.ComputePercents()
	return s, nil
}
