package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Provisioner metrics
	TenantsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_tenants_total",
			Help: "Total number of tenants by status",
		},
		[]string{"status"},
	)

	WorkersDesired = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_workers_desired",
			Help: "Desired number of workers per tenant",
		},
		[]string{"tenant"},
	)

	WorkersLive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_workers_live",
			Help: "Number of live worker processes per tenant",
		},
		[]string{"tenant"},
	)

	CapacityFree = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_capacity_free",
			Help: "Number of worker slots not claimed by any tenant",
		},
	)

	// Central server protocol metrics
	Registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_registrations_total",
			Help: "Total number of provisioner registrations by result",
		},
		[]string{"result"},
	)

	Heartbeats = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_heartbeats_total",
			Help: "Total number of heartbeats by result",
		},
		[]string{"result"},
	)

	// Worker process metrics
	WorkersSpawned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_workers_spawned_total",
			Help: "Total number of worker processes spawned",
		},
	)

	WorkersTerminated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_workers_terminated_total",
			Help: "Total number of termination signals sent to workers by reason",
		},
		[]string{"reason"},
	)

	WorkersReaped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_workers_reaped_total",
			Help: "Total number of exited worker processes reaped",
		},
	)

	// Resource metrics
	ResourceSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_resource_syncs_total",
			Help: "Total number of resource sync passes by result",
		},
		[]string{"result"},
	)

	ResourceSyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burrow_resource_sync_duration_seconds",
			Help:    "Resource sync pass duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ResourceFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_resource_fetches_total",
			Help: "Total number of resource fetches by format and result",
		},
		[]string{"format", "result"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Task metrics, recorded by workers
	TasksProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_tasks_processed_total",
			Help: "Total number of tasks processed by name and status",
		},
		[]string{"task", "status"},
	)

	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_task_duration_seconds",
			Help:    "Task dispatch duration in seconds",
			Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"task"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(TenantsTotal)
	prometheus.MustRegister(WorkersDesired)
	prometheus.MustRegister(WorkersLive)
	prometheus.MustRegister(CapacityFree)
	prometheus.MustRegister(Registrations)
	prometheus.MustRegister(Heartbeats)
	prometheus.MustRegister(WorkersSpawned)
	prometheus.MustRegister(WorkersTerminated)
	prometheus.MustRegister(WorkersReaped)
	prometheus.MustRegister(ResourceSyncs)
	prometheus.MustRegister(ResourceSyncDuration)
	prometheus.MustRegister(ResourceFetches)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(TasksProcessed)
	prometheus.MustRegister(TaskDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Result turns an error into the "success"/"failure" label used by the counters above
func Result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
