/*
Package api implements the master's HTTP API.

The central server pushes tenant specs to a master through this API; operators
and monitoring read its state. The API is a thin adapter: every tenant request
maps onto one Provisioner call and returns as soon as the change is accepted.
Worker spawning, draining and resource syncs happen afterwards in the
provisioner's loops, so clients observe completion through /status.

# Routes

	POST   /v2/tenants        create or update a tenant (id in the body)
	PUT    /v2/tenants/{id}   create or update a tenant
	GET    /v2/tenants/{id}   tenant status
	DELETE /v2/tenants/{id}   request deletion, answers 202
	GET    /heartbeat         the usage payload sent on every heartbeat
	GET    /status            provisioner status document
	GET    /health            component health
	GET    /ready             ready once the API is up and registered
	GET    /live              liveness
	GET    /metrics           Prometheus metrics

# Errors

Errors are returned as {"error": "..."} with:

	400  malformed body or invalid spec
	404  unknown tenant
	409  capacity exceeded, tenant being deleted, not enough workers to terminate
	503  master shutting down
	500  anything else
*/
package api
