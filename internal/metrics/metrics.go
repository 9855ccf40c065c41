// Package metrics provides Prometheus metrics for the vos kernel.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Filesystem metrics
	vfsOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vos_vfs_operations_total",
			Help: "Total number of VFS operations",
		},
		[]string{"op", "status"},
	)

	vfsPersistDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vos_vfs_persist_duration_seconds",
			Help:    "Time to serialize and save the whole tree",
			Buckets: prometheus.DefBuckets,
		},
	)

	vfsTreeSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vos_vfs_tree_nodes",
			Help: "Number of files and directories in the tree",
		},
	)

	// Shell metrics
	shellCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vos_shell_commands_total",
			Help: "Total shell commands executed",
		},
		[]string{"command", "exit_code"},
	)

	// Scheduler metrics
	schedulerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vos_scheduler_runs_total",
			Help: "Total scheduled task executions",
		},
		[]string{"kind", "status"},
	)

	schedulerRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vos_scheduler_run_duration_seconds",
			Help:    "Scheduled task execution time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Event metrics
	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vos_events_published_total",
			Help: "Total events published on the bus",
		},
		[]string{"type"},
	)

	eventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vos_events_dropped_total",
			Help: "Events dropped because a subscriber was slow",
		},
		[]string{"type"},
	)

	// Storage metrics
	storageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vos_storage_operations_total",
			Help: "Total blob storage operations",
		},
		[]string{"backend", "op", "status"},
	)

	storageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vos_storage_operation_duration_seconds",
			Help:    "Blob storage operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	// Package manager metrics
	packageInstallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vos_package_installs_total",
			Help: "Total package installations",
		},
		[]string{"package", "status"},
	)

	// Objective metrics
	objectiveCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vos_objective_calls_total",
			Help: "Total objective executions",
		},
		[]string{"kind", "status"},
	)

	objectiveTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vos_objective_tokens_total",
			Help: "Model tokens consumed by objectives",
		},
		[]string{"direction"},
	)

	// Control socket metrics
	controlRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vos_control_requests_total",
			Help: "Total control socket requests",
		},
		[]string{"command", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordVFSOperation records a filesystem operation.
func RecordVFSOperation(op string, success bool) {
	vfsOperationsTotal.WithLabelValues(op, status(success)).Inc()
}

// RecordVFSPersist records the time spent persisting the tree.
func RecordVFSPersist(duration time.Duration) {
	vfsPersistDuration.Observe(duration.Seconds())
}

// SetVFSTreeSize sets the number of live nodes in the tree.
func SetVFSTreeSize(nodes int) {
	vfsTreeSize.Set(float64(nodes))
}

// RecordShellCommand records a shell command and its exit code.
func RecordShellCommand(command string, exitCode int) {
	shellCommandsTotal.WithLabelValues(command, strconv.Itoa(exitCode)).Inc()
}

// RecordSchedulerRun records a scheduled task execution.
func RecordSchedulerRun(kind string, duration time.Duration, success bool) {
	schedulerRunsTotal.WithLabelValues(kind, status(success)).Inc()
	schedulerRunDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordEventPublished records an event publication.
func RecordEventPublished(eventType string) {
	eventsPublishedTotal.WithLabelValues(eventType).Inc()
}

// RecordEventDropped records an event dropped for a slow subscriber.
func RecordEventDropped(eventType string) {
	eventsDroppedTotal.WithLabelValues(eventType).Inc()
}

// RecordStorageOperation records a blob storage operation.
func RecordStorageOperation(backend, op string, duration time.Duration, success bool) {
	storageOperationsTotal.WithLabelValues(backend, op, status(success)).Inc()
	storageOperationDuration.WithLabelValues(backend, op).Observe(duration.Seconds())
}

// RecordPackageInstall records a package installation attempt.
func RecordPackageInstall(name string, success bool) {
	packageInstallsTotal.WithLabelValues(name, status(success)).Inc()
}

// RecordObjective records an objective or flow execution.
func RecordObjective(kind string, success bool) {
	objectiveCallsTotal.WithLabelValues(kind, status(success)).Inc()
}

// RecordObjectiveTokens records model token usage.
func RecordObjectiveTokens(input, output int64) {
	objectiveTokensTotal.WithLabelValues("input").Add(float64(input))
	objectiveTokensTotal.WithLabelValues("output").Add(float64(output))
}

// RecordControlRequest records a control socket request.
func RecordControlRequest(command string, success bool) {
	controlRequestsTotal.WithLabelValues(command, status(success)).Inc()
}
