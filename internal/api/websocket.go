package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"okx-signal-bot/internal/events"
)

// Interval between unsolicited full-snapshot frames, so a dashboard that
// missed dropped events converges anyway.
const snapshotInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// stateStream upgrades to a websocket and pushes an initial snapshot,
// every engine event, and periodic full snapshots. Auth accepts a
// ?token= JWT from /auth/token or the raw admin secret header.
func (s *Server) stateStream(c *gin.Context) {
	secret := s.cfg.Current().Admin.Secret
	if secret == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "admin secret not configured"})
		return
	}

	authorized := c.GetHeader("X-ADMIN-SECRET") == secret
	if !authorized {
		if token := c.Query("token"); token != "" {
			authorized = parseAdminToken(token, secret) == nil
		}
	}
	if !authorized {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	stream, unsub := s.bus.Subscribe(128)
	defer unsub()

	if err := conn.WriteJSON(s.snapshotFrame()); err != nil {
		return
	}

	// Reader loop only detects the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-stream:
			if !ok {
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteJSON(s.snapshotFrame()); err != nil {
				return
			}
		}
	}
}

func (s *Server) snapshotFrame() events.Message {
	return events.Message{
		Type:    events.EventStateSnapshot,
		Ts:      time.Now().Unix(),
		Payload: s.engine.StateSnapshot(),
	}
}
