/*
Package metrics provides Prometheus metrics and component health for burrow.

All metrics are registered on the default Prometheus registry at package init
and exposed by the master API on /metrics through Handler.

# Metric Categories

	Provisioner: burrow_tenants_total{status}, burrow_workers_desired{tenant},
	             burrow_workers_live{tenant}, burrow_capacity_free
	Protocol:    burrow_registrations_total{result}, burrow_heartbeats_total{result}
	Processes:   burrow_workers_spawned_total, burrow_workers_terminated_total{reason},
	             burrow_workers_reaped_total
	Resources:   burrow_resource_syncs_total{result}, burrow_resource_sync_duration_seconds,
	             burrow_resource_fetches_total{format,result}
	API:         burrow_api_requests_total{method,status}, burrow_api_request_duration_seconds{method}
	Tasks:       burrow_tasks_processed_total{task,status}, burrow_task_duration_seconds{task}

Gauges derived from the provisioner status document are refreshed by a
Collector; counters and histograms are updated inline by the component that
owns the event.

# Timing

	timer := metrics.NewTimer()
	err := rm.Sync(ctx)
	timer.ObserveDuration(metrics.ResourceSyncDuration)
	metrics.ResourceSyncs.WithLabelValues(metrics.Result(err)).Inc()

# Health

SetComponent records the state of a named component. The master reports
three:

	api           the HTTP listener is up
	registration  the central server accepted this provisioner
	heartbeat     the last heartbeat succeeded

/health is unhealthy (503) when api or registration fails and degraded (200)
when only the heartbeat fails. /ready only requires api and registration, so
a master that loses a heartbeat keeps receiving tenant requests while it
re-registers.
*/
package metrics
