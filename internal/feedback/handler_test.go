package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/models"
	"github.com/classpulse/backend/internal/realtime"
)

// fakeSubmitter scripts the gated submission outcome.
type fakeSubmitter struct {
	err   error
	calls int
	last  struct {
		activityID int64
		ft         models.FeedbackType
	}
}

func (f *fakeSubmitter) Submit(ctx context.Context, connKey string, activityID int64, ft models.FeedbackType) (*models.Feedback, models.Stats, error) {
	f.calls++
	f.last.activityID = activityID
	f.last.ft = ft
	if f.err != nil {
		return nil, models.Stats{}, f.err
	}
	fb := &models.Feedback{ID: 1, ActivityID: activityID, Type: ft, Timestamp: time.Now()}
	stats := models.Stats{}
	stats.Add(ft, 1)
	stats.ComputePercents()
	return fb, stats, nil
}

// fakeFeedbackStore is unused by the submission path but satisfies the handler.
type fakeFeedbackStore struct{}

func (fakeFeedbackStore) ListByActivity(ctx context.Context, activityID int64) ([]models.Feedback, error) {
	return nil, nil
}
func (fakeFeedbackStore) ListTimeline(ctx context.Context, activityID int64) ([]TypeBucket, error) {
	return nil, nil
}
func (fakeFeedbackStore) CountFeedbackByType(ctx context.Context, activityID int64) (map[models.FeedbackType]int, error) {
	return map[models.FeedbackType]int{}, nil
}

type fakeActivitySource struct{}

func (fakeActivitySource) GetByID(ctx context.Context, id int64) (*models.Activity, error) {
	return nil, nil
}

func newSubmitRouter(sub *fakeSubmitter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(sub, fakeFeedbackStore{}, fakeActivitySource{}, zap.NewNop())
	r := gin.New()
	r.POST("/api/feedback", h.Create)
	return r
}

func postFeedback(t *testing.T, r *gin.Engine, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("encode: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/feedback", &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateFeedbackAccepted(t *testing.T) {
	sub := &fakeSubmitter{}
	r := newSubmitRouter(sub)

	w := postFeedback(t, r, gin.H{"activityId": 3, "feedbackType": "happy"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status: want 201, got %d (%s)", w.Code, w.Body)
	}
	if sub.calls != 1 || sub.last.activityID != 3 || sub.last.ft != models.FeedbackHappy {
		t.Fatalf("submitter call: got %+v", sub.last)
	}

	var body struct {
		Data struct {
			Stats models.Stats `json:"stats"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Stats.Happy != 1 || body.Data.Stats.HappyPercent != 100 {
		t.Fatalf("stats in response: got %+v", body.Data.Stats)
	}
}

func TestCreateFeedbackErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", realtime.ErrActivityNotFound, http.StatusNotFound},
		{"ended", realtime.ErrActivityEnded, http.StatusBadRequest},
		{"invalid type", realtime.ErrInvalidFeedbackType, http.StatusBadRequest},
		{"rate limited", realtime.ErrRateLimited, http.StatusTooManyRequests},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newSubmitRouter(&fakeSubmitter{err: tc.err})
			w := postFeedback(t, r, gin.H{"activityId": 3, "feedbackType": "happy"})
			if w.Code != tc.want {
				t.Fatalf("want %d, got %d (%s)", tc.want, w.Code, w.Body)
			}
		})
	}
}

func TestCreateFeedbackRejectsMissingFields(t *testing.T) {
	sub := &fakeSubmitter{}
	r := newSubmitRouter(sub)

	for _, body := range []gin.H{{}, {"activityId": 3}, {"feedbackType": "happy"}} {
		w := postFeedback(t, r, body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("body %v: want 400, got %d", body, w.Code)
		}
	}
	if sub.calls != 0 {
		t.Fatalf("malformed bodies must not reach the submitter, calls=%d", sub.calls)
	}
}
