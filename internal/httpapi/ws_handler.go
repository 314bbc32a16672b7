package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/google/uuid"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
)

// LogSubscriber is the narrow surface WSHandler needs from
// internal/logbus.Bus.
type LogSubscriber interface {
	Subscribe(ctx context.Context, runID uuid.UUID, since int64) (<-chan domain.RunLog, error)
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// WSHandler streams a run's log lines live, catch-up-then-live per
// logbus.Bus.Subscribe, closing when the client disconnects or the
// context is canceled.
type WSHandler struct {
	bus LogSubscriber
	log *slog.Logger
}

func NewWSHandler(bus LogSubscriber, log *slog.Logger) *WSHandler {
	return &WSHandler{bus: bus, log: log}
}

// StreamLogs handles WS /ws/runs/:run_id/logs?token=&since=. Auth token
// verification happens before Upgrade so a rejected caller gets a plain
// HTTP 401 rather than a websocket close frame.
func (h *WSHandler) StreamLogs(c *gin.Context) {
	runID, ok := parseUUIDParam(c.Param("run_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run_id"})
		return
	}
	var since int64
	if v := c.Query("since"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			since = n
		}
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("httpapi: websocket upgrade failed", "run_id", runID, "err", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// A reader goroutine exists solely to notice the client closing the
	// connection (gorilla requires a live ReadMessage loop for that).
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	logs, err := h.bus.Subscribe(ctx, runID, since)
	if err != nil {
		h.log.Error("httpapi: log subscribe failed", "run_id", runID, "err", err)
		return
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case l, ok := <-logs:
			if !ok {
				return
			}
			if err := conn.WriteJSON(toRunLogDTO(l)); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
