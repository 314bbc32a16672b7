package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/apperr"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/store"
)

// ScheduleHandler serves the one-schedule-per-robot CRUD surface of
// spec.md §6. There is no separate create/update split: PUT-by-robot
// semantics via UpsertSchedule cover both.
type ScheduleHandler struct {
	store *store.Store
}

func NewScheduleHandler(st *store.Store) *ScheduleHandler {
	return &ScheduleHandler{store: st}
}

// Upsert handles POST /robots/:robot_id/schedule.
func (h *ScheduleHandler) Upsert(c *gin.Context) {
	robotID, ok := parseUUIDParam(c.Param("robot_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid robot_id"})
		return
	}
	var req upsertScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	existing, _ := h.store.GetScheduleByRobot(c.Request.Context(), robotID)
	id := uuid.New()
	if existing != nil {
		id = existing.ID
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	sched := &domain.Schedule{
		ID:                  id,
		RobotID:             robotID,
		Enabled:             enabled,
		CronExpr:            req.CronExpr,
		Timezone:            req.Timezone,
		WindowStart:         req.WindowStart,
		WindowEnd:           req.WindowEnd,
		MaxConcurrency:      req.MaxConcurrency,
		TimeoutSeconds:      req.TimeoutSeconds,
		RetryCount:          req.RetryCount,
		RetryBackoffSeconds: req.RetryBackoffSeconds,
	}
	if err := h.store.UpsertSchedule(c.Request.Context(), sched); err != nil {
		respondErr(c, apperr.New(apperr.Transient, "httpapi.ScheduleUpsert", err))
		return
	}
	c.JSON(http.StatusOK, toScheduleDTO(*sched))
}

// Get handles GET /robots/:robot_id/schedule.
func (h *ScheduleHandler) Get(c *gin.Context) {
	robotID, ok := parseUUIDParam(c.Param("robot_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid robot_id"})
		return
	}
	sched, err := h.store.GetScheduleByRobot(c.Request.Context(), robotID)
	if err != nil {
		respondErr(c, apperr.New(apperr.NotFound, "httpapi.ScheduleGet", err))
		return
	}
	c.JSON(http.StatusOK, toScheduleDTO(*sched))
}

// Patch handles PATCH /robots/:robot_id/schedule — currently only the
// enabled flag is independently toggleable (spec.md §6 pause/resume).
func (h *ScheduleHandler) Patch(c *gin.Context) {
	robotID, ok := parseUUIDParam(c.Param("robot_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid robot_id"})
		return
	}
	var req patchScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sched, err := h.store.GetScheduleByRobot(c.Request.Context(), robotID)
	if err != nil {
		respondErr(c, apperr.New(apperr.NotFound, "httpapi.SchedulePatch", err))
		return
	}
	if req.Enabled != nil {
		if err := h.store.SetScheduleEnabled(c.Request.Context(), sched.ID, *req.Enabled); err != nil {
			respondErr(c, apperr.New(apperr.Transient, "httpapi.SchedulePatch", err))
			return
		}
		sched.Enabled = *req.Enabled
	}
	c.JSON(http.StatusOK, toScheduleDTO(*sched))
}

// Delete handles DELETE /robots/:robot_id/schedule by disabling it —
// spec.md's data model has no orphan-schedule concept once runs may
// still reference schedule_id, so deletion is a hard disable rather than
// a row removal.
func (h *ScheduleHandler) Delete(c *gin.Context) {
	robotID, ok := parseUUIDParam(c.Param("robot_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid robot_id"})
		return
	}
	sched, err := h.store.GetScheduleByRobot(c.Request.Context(), robotID)
	if err != nil {
		respondErr(c, apperr.New(apperr.NotFound, "httpapi.ScheduleDelete", err))
		return
	}
	if err := h.store.SetScheduleEnabled(c.Request.Context(), sched.ID, false); err != nil {
		respondErr(c, apperr.New(apperr.Transient, "httpapi.ScheduleDelete", err))
		return
	}
	c.Status(http.StatusNoContent)
}
