package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/apperr"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/runengine"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/store"
)

type RunHandler struct {
	engine *runengine.Engine
	store  *store.Store
}

func NewRunHandler(engine *runengine.Engine, st *store.Store) *RunHandler {
	return &RunHandler{engine: engine, store: st}
}

// POST /runs/:robot_id/execute
func (h *RunHandler) Execute(c *gin.Context) {
	robotID, ok := parseUUIDParam(c.Param("robot_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid robot_id"})
		return
	}
	var req executeRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rawVersionRef, err := req.resolvedVersionRef()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var versionRef uuid.UUID
	if rawVersionRef != "" {
		v, ok := parseUUIDParam(rawVersionRef)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid version_id"})
			return
		}
		versionRef = v
	}
	identity := identityFrom(c)
	runID, err := h.engine.CreateRun(c.Request.Context(), robotID, versionRef, domain.EnvName(req.EnvName),
		domain.RunParameters{RuntimeArguments: req.RuntimeArguments, RuntimeEnv: req.RuntimeEnv},
		domain.TriggerManual, &identity.UserID, nil, nil, nil)
	if err != nil {
		respondErr(c, err)
		return
	}
	run, err := h.store.GetRun(c.Request.Context(), runID)
	if err != nil {
		respondErr(c, apperr.New(apperr.Transient, "httpapi.Execute", err))
		return
	}
	c.JSON(http.StatusCreated, toRunDTO(*run))
}

// GET /runs?robot_id=&service_id=&trigger_type=&status=
func (h *RunHandler) List(c *gin.Context) {
	var f store.RunFilter
	if v := c.Query("robot_id"); v != "" {
		id, ok := parseUUIDParam(v)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid robot_id"})
			return
		}
		f.RobotID = &id
	}
	if v := c.Query("service_id"); v != "" {
		id, ok := parseUUIDParam(v)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid service_id"})
			return
		}
		f.ServiceID = &id
	}
	f.TriggerType = domain.TriggerType(c.Query("trigger_type"))
	f.Status = domain.RunStatus(c.Query("status"))
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}
	runs, err := h.store.ListRuns(c.Request.Context(), f)
	if err != nil {
		respondErr(c, apperr.New(apperr.Transient, "httpapi.List", err))
		return
	}
	out := make([]runDTO, 0, len(runs))
	for _, r := range runs {
		out = append(out, toRunDTO(r))
	}
	c.JSON(http.StatusOK, gin.H{"runs": out})
}

// GET /runs/:run_id
func (h *RunHandler) Get(c *gin.Context) {
	runID, ok := parseUUIDParam(c.Param("run_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run_id"})
		return
	}
	run, err := h.store.GetRun(c.Request.Context(), runID)
	if err != nil {
		respondErr(c, apperr.New(apperr.NotFound, "httpapi.Get", err))
		return
	}
	c.JSON(http.StatusOK, toRunDTO(*run))
}

// GET /runs/:run_id/logs?since=
func (h *RunHandler) Logs(c *gin.Context) {
	runID, ok := parseUUIDParam(c.Param("run_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run_id"})
		return
	}
	var since int64
	if v := c.Query("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
		since = n
	}
	logs, err := h.engine.GetLogsSince(c.Request.Context(), runID, since)
	if err != nil {
		respondErr(c, err)
		return
	}
	out := make([]runLogDTO, 0, len(logs))
	for _, l := range logs {
		out = append(out, toRunLogDTO(l))
	}
	c.JSON(http.StatusOK, gin.H{"logs": out})
}

// GET /runs/:run_id/artifacts/:id/download
func (h *RunHandler) DownloadArtifact(c *gin.Context) {
	runID, ok := parseUUIDParam(c.Param("run_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run_id"})
		return
	}
	artifactID, ok := parseUUIDParam(c.Param("id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid artifact id"})
		return
	}
	artifacts, err := h.store.ListArtifacts(c.Request.Context(), runID)
	if err != nil {
		respondErr(c, apperr.New(apperr.Transient, "httpapi.DownloadArtifact", err))
		return
	}
	for _, a := range artifacts {
		if a.ID == artifactID {
			c.FileAttachment(a.Path, a.Name)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "artifact not found"})
}

// POST /runs/:run_id/cancel
func (h *RunHandler) Cancel(c *gin.Context) {
	runID, ok := parseUUIDParam(c.Param("run_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run_id"})
		return
	}
	identity := identityFrom(c)
	if err := h.engine.RequestCancel(c.Request.Context(), runID, identity.UserID); err != nil {
		respondErr(c, err)
		return
	}
	run, err := h.store.GetRun(c.Request.Context(), runID)
	if err != nil {
		respondErr(c, apperr.New(apperr.Transient, "httpapi.Cancel", err))
		return
	}
	c.JSON(http.StatusOK, toRunDTO(*run))
}

// ListArtifacts backs a run's artifact listing, used ahead of download.
func (h *RunHandler) ListArtifacts(c *gin.Context) {
	runID, ok := parseUUIDParam(c.Param("run_id"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run_id"})
		return
	}
	artifacts, err := h.store.ListArtifacts(c.Request.Context(), runID)
	if err != nil {
		respondErr(c, apperr.New(apperr.Transient, "httpapi.ListArtifacts", err))
		return
	}
	out := make([]artifactDTO, 0, len(artifacts))
	for _, a := range artifacts {
		out = append(out, toArtifactDTO(a))
	}
	c.JSON(http.StatusOK, gin.H{"artifacts": out})
}
