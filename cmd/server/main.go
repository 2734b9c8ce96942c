// Package main runs the classroom response server: REST management API plus
// the WebSocket live channel, with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/classpulse/backend/config"
	"github.com/classpulse/backend/internal/activities"
	"github.com/classpulse/backend/internal/auth"
	"github.com/classpulse/backend/internal/feedback"
	"github.com/classpulse/backend/internal/middleware"
	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/internal/realtime"
	"github.com/classpulse/backend/pkg/database"
	"github.com/classpulse/backend/pkg/redis"
	"github.com/classpulse/backend/pkg/response"
)

// hubStore glues the activity and feedback repositories into the single
// durable collaborator the hub consumes.
type hubStore struct {
	activities *activities.Repository
	feedback   *feedback.Repository
}

func (s *hubStore) GetActivity(ctx context.Context, id int64) (*models.Activity, error) {
	return s.activities.GetByID(ctx, id)
}

func (s *hubStore) AppendFeedback(ctx context.Context, activityID int64, ft models.FeedbackType, ts time.Time) (*models.Feedback, error) {
	return s.feedback.AppendFeedback(ctx, activityID, ft, ts)
}

func (s *hubStore) CountFeedbackByType(ctx context.Context, activityID int64) (map[models.FeedbackType]int, error) {
	return s.feedback.CountFeedbackByType(ctx, activityID)
}

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// Repositories
	authRepo := auth.NewRepository(pool)
	activityRepo := activities.NewRepository(pool)
	feedbackRepo := feedback.NewRepository(pool)

	// Live core: aggregate cache over the feedback log plus the broadcast hub.
	aggregator := realtime.NewAggregator(feedbackRepo)
	var limiter realtime.RateLimiter
	if rdb != nil && cfg.Realtime.FeedbackPerMinute > 0 {
		limiter = realtime.NewRedisRateLimiter(rdb.Client, cfg.Realtime.FeedbackPerMinute, time.Minute)
	}
	hub := realtime.NewHub(&hubStore{activities: activityRepo, feedback: feedbackRepo}, aggregator, limiter, logger)

	// Handlers
	authHandler := auth.NewHandler(authRepo, jwtService, logger)
	activityHandler := activities.NewHandler(activityRepo, feedbackRepo, hub, logger)
	feedbackHandler := feedback.NewHandler(hub, feedbackRepo, activityRepo, logger)

	identify := func(token string) (string, bool) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", false
		}
		return claims.Role, true
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
	}
	me := router.Group("/api/auth")
	me.Use(middleware.JWT(jwtService))
	{
		me.GET("/me", authHandler.Me)
		me.PUT("/me", authHandler.UpdateMe)
	}

	// Join by code is public; an identified teacher is rejected, everyone
	// else (including anonymous) goes through.
	router.POST("/api/activities/join", middleware.OptionalIdentity(jwtService), activityHandler.Join)

	// Activity management (teacher only)
	mgmt := router.Group("/api/activities")
	mgmt.Use(middleware.JWT(jwtService), middleware.RequireRole(string(models.RoleTeacher)))
	{
		mgmt.GET("", activityHandler.List)
		mgmt.POST("", activityHandler.Create)
		mgmt.GET("/:id", activityHandler.GetByID)
		mgmt.PUT("/:id", activityHandler.Update)
		mgmt.DELETE("/:id", activityHandler.Delete)
		mgmt.POST("/:id/stop", activityHandler.Stop)
		mgmt.GET("/:id/stats", activityHandler.Stats)
	}

	// Feedback: submission and polling stats are public and anonymous,
	// detailed views are owner-only.
	router.POST("/api/feedback", feedbackHandler.Create)
	router.GET("/api/feedback/:activityId/stats", feedbackHandler.Stats)
	fbOwner := router.Group("/api/feedback")
	fbOwner.Use(middleware.JWT(jwtService), middleware.RequireRole(string(models.RoleTeacher)))
	{
		fbOwner.GET("/:activityId", feedbackHandler.GetByActivity)
		fbOwner.GET("/:activityId/timeline", feedbackHandler.Timeline)
	}

	// WebSocket (public; optional token query marks the teacher dashboard)
	router.GET("/ws", realtime.ServeWs(hub, logger, identify))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Expiry sweep: rooms learn an activity ended even when nobody sends
	// another event.
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	go hub.RunExpirySweep(sweepCtx, cfg.Realtime.SweepInterval)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sweepCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
