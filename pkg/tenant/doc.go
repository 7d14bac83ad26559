/*
Package tenant reconciles one tenant's worker processes and resources.

A Manager moves through four states:

	STARTING ──Spawn──▶ ACTIVE ◀──Resume── STALE
	                      │                  ▲
	                      └─resource change──┘
	any state ──Delete──▶ DELETING

Worker count changes on an ACTIVE tenant spawn or terminate the difference.
Resource changes terminate every worker and queue a sync. Sync refuses to run
while any worker process is still tracked, so resources are never swapped
under a running worker. Termination is always SIGTERM followed by a reap
through VerifyWorkers; only Kill escalates.

# Scaling

	spec workers 2 → 5   spawn 3
	spec workers 5 → 3   SIGTERM the 2 newest workers not already terminating
	spec workers 3 → 9   spawn fails after 2: spec records 5, the error is returned

A shrink that cannot find enough eligible workers fails with
ErrInsufficientWorkers and changes nothing.

# Syncs

Every resource change increments a pending counter. Sync snapshots the
counter, runs one resource sync and subtracts the snapshot, so changes that
arrive mid-sync cause exactly one more pass. A partial sync still consumes
its requests; the tenant resumes and TenantStatus carries the failure in
SyncError until a later sync is clean. Any other failure keeps the requests
pending.
*/
package tenant
