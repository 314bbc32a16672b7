package httpapi

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/cipher"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/logbus"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/queue"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/runengine"
	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/store"
)

// Deps bundles everything the router needs to construct every handler,
// mirroring the teacher's cmd/api wiring of one *gin.Engine from a flat
// set of already-constructed components.
type Deps struct {
	Store         *store.Store
	Engine        *runengine.Engine
	Queue         *queue.Queue
	LogBus        *logbus.Bus
	Cipher        *cipher.Envelope
	Identity      IdentityResolver
	DeployTokens  DeployTokenChecker
	ArtifactsRoot string
	StartedAt     time.Time
	Log           *slog.Logger
}

// NewRouter builds the gin.Engine implementing every route of spec.md §6.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	runH := NewRunHandler(d.Engine, d.Store)
	registryH := NewRegistryHandler(d.Store, d.ArtifactsRoot)
	scheduleH := NewScheduleHandler(d.Store)
	slaH := NewSLAHandler(d.Store)
	envH := NewEnvHandler(d.Store, d.Cipher)
	workerH := NewWorkerHandler(d.Store)
	opsH := NewOpsHandler(d.Store, d.Queue, d.StartedAt)
	alertH := NewAlertHandler(d.Store)
	wsH := NewWSHandler(d.LogBus, d.Log)

	deploy := r.Group("/deploy")
	deploy.Use(DeployAuthMiddleware(d.DeployTokens))
	deploy.POST("/robots/:robot_id/versions/publish", registryH.PublishCI)

	r.GET("/ws/runs/:run_id/logs", AuthMiddleware(d.Identity), wsH.StreamLogs)

	api := r.Group("/")
	api.Use(AuthMiddleware(d.Identity))
	{
		api.POST("/runs/:robot_id/execute", runH.Execute)
		api.GET("/runs", runH.List)
		api.GET("/runs/:run_id", runH.Get)
		api.GET("/runs/:run_id/logs", runH.Logs)
		api.GET("/runs/:run_id/artifacts", runH.ListArtifacts)
		api.GET("/runs/:run_id/artifacts/:id/download", runH.DownloadArtifact)
		api.POST("/runs/:run_id/cancel", runH.Cancel)

		api.POST("/robots/:robot_id/versions/publish", registryH.PublishUser)
		api.GET("/robots/:robot_id/versions", registryH.ListVersions)
		api.POST("/robots/:robot_id/versions/:version_id/activate", registryH.Activate)

		api.POST("/robots/:robot_id/schedule", scheduleH.Upsert)
		api.GET("/robots/:robot_id/schedule", scheduleH.Get)
		api.PATCH("/robots/:robot_id/schedule", scheduleH.Patch)
		api.DELETE("/robots/:robot_id/schedule", scheduleH.Delete)

		api.POST("/robots/:robot_id/sla", slaH.Upsert)
		api.GET("/robots/:robot_id/sla", slaH.Get)
		api.PATCH("/robots/:robot_id/sla", slaH.Patch)

		api.GET("/robots/:robot_id/env", envH.Get)
		api.PUT("/robots/:robot_id/env", envH.Put)
		api.DELETE("/robots/:robot_id/env/:key", envH.Delete)

		api.GET("/workers", workerH.List)
		api.POST("/workers/:id/pause", workerH.Pause)
		api.POST("/workers/:id/resume", workerH.Resume)

		api.GET("/ops/status", opsH.Status)

		api.GET("/alerts", alertH.List)
		api.POST("/alerts/:id/resolve", alertH.Resolve)
	}

	return r
}
