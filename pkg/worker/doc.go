/*
Package worker runs provisioning tasks for one tenant.

A worker is a child process of the master. It loops over take, dispatch and
finish against the central server:

  - a task is routed by its name: create, confirm and delete go to the
    provider named by config.provider.providertype; install, configure,
    initialize, start, stop and remove go to the automator named by
    config.service.action.type; bootstrap fans out to the listed automators
    (or every registered one) and merges their results
  - a failed or panicking plugin produces a status 1 result instead of
    killing the process
  - every result is stamped with the worker, task, provisioner and tenant ids
    before it is reported

# Loop

	        ┌───────────────────────────────┐
	        ▼                               │
	  POST /v2/tasks/take                   │
	        │                               │
	  ┌─────┼──────────────┐                │
	  │     │              │                │
	 204   200            error             │
	  │     │              │                │
	 sleep  dispatch      sleep             │
	 1s     finish        10s               │
	  └─────┴──────────────┴────────────────┘

With Once set the loop runs a single iteration and returns any take error.

# Signals

Termination is deferred while a task is in flight. Cancel the context passed
to Run and the worker exits at the next loop boundary. A take request that is
already on the wire completes, and a task it returns is dispatched and
reported before Run returns, so the server never hands out a task that no
worker finishes.
*/
package worker
