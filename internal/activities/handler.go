package activities

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/middleware"
	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/pkg/accesscode"
	"github.com/classpulse/backend/pkg/response"
)

// createAttempts bounds retries when an access code loses a uniqueness race
// between Assign's existence check and the insert.
const createAttempts = 3

// ActivityStore is the persistence the handler needs. *Repository satisfies it.
type ActivityStore interface {
	accesscode.CodeChecker
	Create(ctx context.Context, a *models.Activity) error
	GetByID(ctx context.Context, id int64) (*models.Activity, error)
	GetByAccessCode(ctx context.Context, code string) (*models.Activity, string, error)
	ListByTeacher(ctx context.Context, teacherID int64, status string) ([]models.Activity, error)
	Update(ctx context.Context, a *models.Activity) error
	Stop(ctx context.Context, id int64, now time.Time) error
	DeleteCascade(ctx context.Context, id int64) error
}

// StatsSource answers aggregate queries from the feedback log.
type StatsSource interface {
	CountFeedbackByType(ctx context.Context, activityID int64) (map[models.FeedbackType]int, error)
}

// LiveNotifier lets management actions reach the broadcast hub.
type LiveNotifier interface {
	NotifyActivityEnded(activityID int64)
	NotifyActivityResumed(activityID int64)
	ForgetActivity(activityID int64)
	ParticipantCount(activityID int64) int
}

// CreateRequest is the body for POST /api/activities.
type CreateRequest struct {
	Title       string `json:"title" binding:"required,min=3,max=255"`
	Description string `json:"description"`
	Duration    int    `json:"duration"`
}

// UpdateRequest is the body for PUT /api/activities/:id.
type UpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"isActive"`
}

// JoinRequest is the body for POST /api/activities/join.
type JoinRequest struct {
	AccessCode string `json:"accessCode" binding:"required"`
}

// activityView is an activity plus its derived lifecycle fields, the shape
// every management response uses.
type activityView struct {
	models.Activity
	IsExpired        bool          `json:"is_expired"`
	RemainingSeconds int64         `json:"remaining_seconds"`
	Stats            *models.Stats `json:"stats,omitempty"`
}

func viewOf(a *models.Activity, now time.Time, stats *models.Stats) activityView {
	return activityView{
		Activity:         *a,
		IsExpired:        a.IsExpired(now),
		RemainingSeconds: a.RemainingSeconds(now),
		Stats:            stats,
	}
}

// Handler handles activity management HTTP endpoints.
type Handler struct {
	store  ActivityStore
	stats  StatsSource
	live   LiveNotifier
	logger *zap.Logger
}

// NewHandler creates an activities handler.
func NewHandler(store ActivityStore, stats StatsSource, live LiveNotifier, logger *zap.Logger) *Handler {
	return &Handler{store: store, stats: stats, live: live, logger: logger}
}

// List handles GET /api/activities?status=all|active|expired (teacher).
func (h *Handler) List(c *gin.Context) {
	teacherID := c.MustGet(middleware.ContextUserID).(int64)
	status := c.DefaultQuery("status", "all")

	list, err := h.store.ListByTeacher(c.Request.Context(), teacherID, status)
	if err != nil {
		h.logger.Error("list activities", zap.Error(err))
		response.Internal(c, "failed to list activities")
		return
	}

	now := time.Now()
	views := make([]activityView, 0, len(list))
	for i := range list {
		stats, err := h.statsFor(c.Request.Context(), list[i].ID)
		if err != nil {
			response.Internal(c, "failed to load stats")
			return
		}
		views = append(views, viewOf(&list[i], now, stats))
	}
	response.OK(c, gin.H{"activities": views})
}

// Create handles POST /api/activities (teacher).
func (h *Handler) Create(c *gin.Context) {
	teacherID := c.MustGet(middleware.ContextUserID).(int64)

	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	duration := req.Duration
	if duration == 0 {
		duration = models.DefaultDurationMinutes
	}
	if duration < models.MinDurationMinutes || duration > models.MaxDurationMinutes {
		response.BadRequest(c, "duration must be between 5 and 480 minutes")
		return
	}

	now := time.Now()
	expiresAt := now.Add(time.Duration(duration) * time.Minute)
	activity := &models.Activity{
		TeacherID:       teacherID,
		Title:           req.Title,
		Description:     req.Description,
		DurationMinutes: duration,
		StartsAt:        &now,
		ExpiresAt:       &expiresAt,
		IsActive:        true,
	}

	// Assign checks uniqueness before the insert; the insert still races
	// against concurrent creations, so retry on a lost race.
	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		activity.AccessCode, err = accesscode.Assign(c.Request.Context(), h.store, 0)
		if err != nil {
			break
		}
		err = h.store.Create(c.Request.Context(), activity)
		if !errors.Is(err, ErrCodeTaken) {
			break
		}
	}
	if err != nil {
		h.logger.Error("create activity", zap.Error(err))
		response.Internal(c, "failed to create activity")
		return
	}

	response.Created(c, gin.H{"activity": viewOf(activity, now, nil)})
}

// GetByID handles GET /api/activities/:id (owner).
func (h *Handler) GetByID(c *gin.Context) {
	activity, ok := h.ownedActivity(c)
	if !ok {
		return
	}
	stats, err := h.statsFor(c.Request.Context(), activity.ID)
	if err != nil {
		response.Internal(c, "failed to load stats")
		return
	}
	response.OK(c, gin.H{"activity": viewOf(activity, time.Now(), stats)})
}

// Update handles PUT /api/activities/:id (owner).
func (h *Handler) Update(c *gin.Context) {
	activity, ok := h.ownedActivity(c)
	if !ok {
		return
	}

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.Title != nil {
		if len(*req.Title) < 3 || len(*req.Title) > 255 {
			response.BadRequest(c, "title must be between 3 and 255 characters")
			return
		}
		activity.Title = *req.Title
	}
	if req.Description != nil {
		activity.Description = *req.Description
	}
	wasActive := activity.IsActive
	if req.IsActive != nil {
		activity.IsActive = *req.IsActive
	}

	if err := h.store.Update(c.Request.Context(), activity); err != nil {
		h.logger.Error("update activity", zap.Error(err))
		response.Internal(c, "failed to update activity")
		return
	}
	if wasActive && !activity.IsActive {
		h.live.NotifyActivityEnded(activity.ID)
	}
	if !wasActive && activity.IsActive {
		h.live.NotifyActivityResumed(activity.ID)
	}
	response.OK(c, gin.H{"activity": viewOf(activity, time.Now(), nil)})
}

// Delete handles DELETE /api/activities/:id (owner). Feedback cascades.
func (h *Handler) Delete(c *gin.Context) {
	activity, ok := h.ownedActivity(c)
	if !ok {
		return
	}
	if err := h.store.DeleteCascade(c.Request.Context(), activity.ID); err != nil {
		h.logger.Error("delete activity", zap.Error(err))
		response.Internal(c, "failed to delete activity")
		return
	}
	h.live.ForgetActivity(activity.ID)
	response.OK(c, gin.H{"deleted": true})
}

// Stop handles POST /api/activities/:id/stop (owner): flips the kill switch,
// pins expiry to now and tells every joined connection the activity ended.
func (h *Handler) Stop(c *gin.Context) {
	activity, ok := h.ownedActivity(c)
	if !ok {
		return
	}
	now := time.Now()
	if err := h.store.Stop(c.Request.Context(), activity.ID, now); err != nil {
		h.logger.Error("stop activity", zap.Error(err))
		response.Internal(c, "failed to stop activity")
		return
	}
	activity.Stop(now)
	h.live.NotifyActivityEnded(activity.ID)
	response.OK(c, gin.H{"activity": viewOf(activity, now, nil)})
}

// Stats handles GET /api/activities/:id/stats (owner): aggregate counts and
// percentages recomputed from the feedback log.
func (h *Handler) Stats(c *gin.Context) {
	activity, ok := h.ownedActivity(c)
	if !ok {
		return
	}
	stats, err := h.statsFor(c.Request.Context(), activity.ID)
	if err != nil {
		response.Internal(c, "failed to load stats")
		return
	}
	now := time.Now()
	response.OK(c, gin.H{
		"activity":     viewOf(activity, now, nil),
		"stats":        stats,
		"participants": h.live.ParticipantCount(activity.ID),
	})
}

// Join handles POST /api/activities/join (public): students enter an access
// code and get the activity summary back. Authenticated teachers are turned
// away; anonymous and student callers go through.
func (h *Handler) Join(c *gin.Context) {
	if role, ok := c.Get(middleware.ContextUserRole); ok && role == string(models.RoleTeacher) {
		response.Forbidden(c, "teachers cannot join activities as participants")
		return
	}

	var req JoinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.AccessCode))
	if !accesscode.IsWellFormed(code) {
		response.BadRequest(c, "invalid access code")
		return
	}

	activity, teacherName, err := h.store.GetByAccessCode(c.Request.Context(), code)
	if err != nil {
		h.logger.Error("join lookup", zap.Error(err))
		response.Internal(c, "failed to look up activity")
		return
	}
	now := time.Now()
	if activity == nil || !activity.IsActive {
		response.NotFound(c, "unknown access code or activity is not active")
		return
	}
	if activity.IsExpired(now) {
		response.BadRequest(c, "activity has expired")
		return
	}

	response.OK(c, gin.H{"activity": gin.H{
		"id":                activity.ID,
		"title":             activity.Title,
		"description":       activity.Description,
		"teacher":           teacherName,
		"remaining_seconds": activity.RemainingSeconds(now),
		"expires_at":        activity.ExpiresAt,
	}})
}

// ownedActivity parses :id, loads the activity and enforces ownership.
// Missing and non-owned both read as not found, so ownership is not probeable.
func (h *Handler) ownedActivity(c *gin.Context) (*models.Activity, bool) {
	teacherID := c.MustGet(middleware.ContextUserID).(int64)
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid activity id")
		return nil, false
	}
	activity, err := h.store.GetByID(c.Request.Context(), id)
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
	counts, err := h.stats.CountFeedbackByType(ctx, activityID)
	if err != nil {
		return nil, err
	}
	s := &models.Stats{}
	for t, n := range counts {
		s.Add(t, n)
	}
	s.ComputePercents()
	return s, nil
}
