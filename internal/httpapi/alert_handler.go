package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/apperr"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/store"
)

type AlertHandler struct {
	store *store.Store
}

func NewAlertHandler(st *store.Store) *AlertHandler {
	return &AlertHandler{store: st}
}

// List handles GET /alerts?status=open|resolved&type=….
func (h *AlertHandler) List(c *gin.Context) {
	status := c.DefaultQuery("status", "open")
	alerts, err := h.store.ListAlerts(c.Request.Context(), status == "open", domain.AlertType(c.Query("type")))
	if err != nil {
		respondErr(c, apperr.New(apperr.Transient, "httpapi.AlertList", err))
		return
	}
	out := make([]alertDTO, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toAlertDTO(a))
	}
	c.JSON(http.StatusOK, gin.H{"alerts": out})
}

// Resolve handles POST /alerts/:id/resolve.
func (h *AlertHandler) Resolve(c *gin.Context) {
	id, ok := parseUUIDParam(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
		return
	}
	if err := h.store.ResolveAlertByID(c.Request.Context(), id, time.Now().UTC()); err != nil {
		respondErr(c, apperr.New(apperr.NotFound, "httpapi.AlertResolve", err))
		return
	}
	alert, err := h.store.GetAlertByID(c.Request.Context(), id)
	if err != nil {
		respondErr(c, apperr.New(apperr.Transient, "httpapi.AlertResolve", err))
		return
	}
	c.JSON(http.StatusOK, toAlertDTO(*alert))
}
