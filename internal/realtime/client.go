package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/classpulse/backend/internal/models"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins in dev; restrict in production
	},
}

// Identity resolves an optional bearer token into a role. The live channel
// is open to anonymous participants: an absent or invalid token simply means
// "student", never an error.
type Identity func(token string) (role string, ok bool)

// Client ties a websocket connection to a hub session.
type Client struct {
	session *session
	hub     *Hub
	conn    *websocket.Conn
	logger  *zap.Logger
}

// Inbound payloads.

type joinPayload struct {
	ActivityID int64 `json:"activityId"`
}

type leavePayload struct {
	ActivityID int64 `json:"activityId"`
}

type feedbackPayload struct {
	ActivityID   int64  `json:"activityId"`
	FeedbackType string `json:"feedbackType"`
}

// ServeWs handles the WebSocket upgrade and runs the client loop. The route
// is public; a `token` query parameter, when present and valid, marks the
// connection as the teacher's dashboard rather than a student.
func ServeWs(hub *Hub, logger *zap.Logger, identify Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := string(models.RoleStudent)
		if token := c.Query("token"); token != "" {
			if r, ok := identify(token); ok && r == string(models.RoleTeacher) {
				role = r
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			session: hub.connect(role),
			hub:     hub,
			conn:    conn,
			logger:  logger,
		}
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.disconnect(c.session)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	ctx := context.Background()
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))

		switch msg.Event {
		case EventJoinActivity:
			var p joinPayload
			if err := json.Unmarshal(msg.Data, &p); err != nil || p.ActivityID == 0 {
				continue
			}
			c.hub.joinActivity(ctx, c.session, p.ActivityID)
		case EventLeaveActivity:
			var p leavePayload
			if err := json.Unmarshal(msg.Data, &p); err != nil || p.ActivityID == 0 {
				continue
			}
			c.hub.leaveActivity(c.session, p.ActivityID)
		case EventSendFeedback:
			var p feedbackPayload
			if err := json.Unmarshal(msg.Data, &p); err != nil || p.ActivityID == 0 {
				continue
			}
			c.hub.handleSendFeedback(ctx, c.session, p.ActivityID, models.FeedbackType(p.FeedbackType))
		default:
			// unknown or malformed event, ignore
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.session.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
