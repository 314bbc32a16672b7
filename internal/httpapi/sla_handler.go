package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/apperr"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/store"
)

// SLAHandler serves the one-rule-per-robot SLA CRUD surface of spec.md §6.
type SLAHandler struct {
	store *store.Store
}

func NewSLAHandler(st *store.Store) *SLAHandler {
	return &SLAHandler{store: st}
}

// Upsert handles POST /robots/:robot_id/sla.
func (h *SLAHandler) Upsert(c *gin.Context) {
	robotID, ok := parseUUIDParam(c.Param("robot_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid robot_id"})
		return
	}
	var req upsertSLARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	existing, _ := h.store.GetSLARule(c.Request.Context(), robotID)
	id := uuid.New()
	if existing != nil {
		id = existing.ID
	}
	alertOnFailure, alertOnLate := true, true
	if req.AlertOnFailure != nil {
		alertOnFailure = *req.AlertOnFailure
	}
	if req.AlertOnLate != nil {
		alertOnLate = *req.AlertOnLate
	}
	rule := &domain.SLARule{
		ID:                   id,
		RobotID:              robotID,
		ExpectedEveryMinutes: req.ExpectedEveryMinutes,
		ExpectedDailyTime:    req.ExpectedDailyTime,
		LateAfterMinutes:     req.LateAfterMinutes,
		AlertOnFailure:       alertOnFailure,
		AlertOnLate:          alertOnLate,
		NotifyChannels:       req.NotifyChannels,
	}
	if err := h.store.UpsertSLARule(c.Request.Context(), rule); err != nil {
		respondErr(c, apperr.New(apperr.Transient, "httpapi.SLAUpsert", err))
		return
	}
	c.JSON(http.StatusOK, toSLADTO(*rule))
}

// Get handles GET /robots/:robot_id/sla.
func (h *SLAHandler) Get(c *gin.Context) {
	robotID, ok := parseUUIDParam(c.Param("robot_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid robot_id"})
		return
	}
	rule, err := h.store.GetSLARule(c.Request.Context(), robotID)
	if err != nil {
		respondErr(c, apperr.New(apperr.NotFound, "httpapi.SLAGet", err))
		return
	}
	c.JSON(http.StatusOK, toSLADTO(*rule))
}

// Patch handles PATCH /robots/:robot_id/sla — flips the two alert toggles
// without requiring the caller to resend the full rule.
func (h *SLAHandler) Patch(c *gin.Context) {
	robotID, ok := parseUUIDParam(c.Param("robot_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid robot_id"})
		return
	}
	var req patchSLARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rule, err := h.store.GetSLARule(c.Request.Context(), robotID)
	if err != nil {
		respondErr(c, apperr.New(apperr.NotFound, "httpapi.SLAPatch", err))
		return
	}
	if req.AlertOnFailure != nil {
		rule.AlertOnFailure = *req.AlertOnFailure
	}
	if req.AlertOnLate != nil {
		rule.AlertOnLate = *req.AlertOnLate
	}
	if err := h.store.UpsertSLARule(c.Request.Context(), rule); err != nil {
		respondErr(c, apperr.New(apperr.Transient, "httpapi.SLAPatch", err))
		return
	}
	c.JSON(http.StatusOK, toSLADTO(*rule))
}
