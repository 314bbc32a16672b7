// Package metrics exposes the process-level Prometheus collectors named
// in spec.md's expansion. Register is called once by cmd/api; each gauge
// and counter is then updated by the component that owns its figure —
// runengine for run counts, slamonitor for queue depth, heartbeat age and
// open-alert counts. internal/httpapi mounts promhttp.Handler on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "run_queue_depth",
		Help: "Number of runs currently waiting in the ready queue.",
	})
	RunsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "runs_running",
		Help: "Number of runs currently in the RUNNING state.",
	})
	RunsFailedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "runs_failed_total",
		Help: "Total number of runs that reached the FAILED state, by robot.",
	}, []string{"robot_id"})
	RunsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "runs_completed_total",
		Help: "Total number of runs that reached a terminal state, by robot and outcome.",
	}, []string{"robot_id", "status"})
	WorkerHeartbeatAge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "worker_heartbeat_age_seconds",
		Help: "Seconds since each worker's last heartbeat.",
	}, []string{"worker_id"})
	SLAAlertsOpen = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sla_alerts_open",
		Help: "Number of currently open SLA alerts, by type.",
	}, []string{"type"})
)

// Register attaches every collector to reg. cmd/api registers against the
// default registry so promhttp.Handler() picks them up without extra
// wiring; other binaries update the package-level collectors without
// registering them, so their values are not exposed by any /metrics route.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(QueueDepth, RunsRunning, RunsFailedTotal, RunsCompletedTotal, WorkerHeartbeatAge, SLAAlertsOpen)
}
