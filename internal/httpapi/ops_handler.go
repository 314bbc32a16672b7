package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/apperr"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/store"
)

// QueueDepthReader is the narrow surface OpsHandler needs from
// internal/queue.Queue.
type QueueDepthReader interface {
	Depth(ctx context.Context) (int64, error)
}

// OpsHandler serves the single operator health-summary route of spec.md
// §6, aggregating Store and Queue reads that don't belong to any one
// resource's own handler.
type OpsHandler struct {
	store     *store.Store
	queue     QueueDepthReader
	startedAt time.Time
}

func NewOpsHandler(st *store.Store, q QueueDepthReader, startedAt time.Time) *OpsHandler {
	return &OpsHandler{store: st, queue: q, startedAt: startedAt}
}

// Status handles GET /ops/status.
func (h *OpsHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	workers, err := h.store.ListWorkers(ctx)
	if err != nil {
		respondErr(c, apperr.New(apperr.Transient, "httpapi.OpsStatus", err))
		return
	}
	var running, paused int
	for _, w := range workers {
		switch w.Status {
		case domain.WorkerRunning:
			running++
		case domain.WorkerPaused:
			paused++
		}
	}

	depth, err := h.queue.Depth(ctx)
	if err != nil {
		respondErr(c, apperr.New(apperr.Transient, "httpapi.OpsStatus", err))
		return
	}
	runsRunning, err := h.store.CountRunsByStatus(ctx, domain.RunRunning)
	if err != nil {
		respondErr(c, apperr.New(apperr.Transient, "httpapi.OpsStatus", err))
		return
	}
	runsFailed, err := h.store.CountRunsFailedSince(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		respondErr(c, apperr.New(apperr.Transient, "httpapi.OpsStatus", err))
		return
	}

	c.JSON(http.StatusOK, opsStatusResponse{
		TotalWorkers:       len(workers),
		WorkersRunning:     running,
		WorkersPaused:      paused,
		QueueDepth:         int(depth),
		RunsRunning:        runsRunning,
		RunsFailedLastHour: runsFailed,
		UptimeSeconds:      int(time.Since(h.startedAt).Seconds()),
	})
}
