package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/apperr"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/store"
)

type WorkerHandler struct {
	store *store.Store
}

func NewWorkerHandler(st *store.Store) *WorkerHandler {
	return &WorkerHandler{store: st}
}

// List handles GET /workers.
func (h *WorkerHandler) List(c *gin.Context) {
	workers, err := h.store.ListWorkers(c.Request.Context())
	if err != nil {
		respondErr(c, apperr.New(apperr.Transient, "httpapi.WorkerList", err))
		return
	}
	out := make([]workerDTO, 0, len(workers))
	for _, w := range workers {
		out = append(out, toWorkerDTO(w))
	}
	c.JSON(http.StatusOK, gin.H{"workers": out})
}

// Pause handles POST /workers/:id/pause. A paused worker's claim loop
// stops dequeuing but keeps heartbeating (spec.md §4.3).
func (h *WorkerHandler) Pause(c *gin.Context) {
	h.setStatus(c, domain.WorkerPaused)
}

// Resume handles POST /workers/:id/resume.
func (h *WorkerHandler) Resume(c *gin.Context) {
	h.setStatus(c, domain.WorkerRunning)
}

func (h *WorkerHandler) setStatus(c *gin.Context, status domain.WorkerStatus) {
	id, ok := parseUUIDParam(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid worker id"})
		return
	}
	if err := h.store.SetWorkerStatus(c.Request.Context(), id, status); err != nil {
		respondErr(c, apperr.New(apperr.Transient, "httpapi.WorkerSetStatus", err))
		return
	}
	w, err := h.store.GetWorker(c.Request.Context(), id)
	if err != nil {
		respondErr(c, apperr.New(apperr.NotFound, "httpapi.WorkerSetStatus", err))
		return
	}
	c.JSON(http.StatusOK, toWorkerDTO(*w))
}
