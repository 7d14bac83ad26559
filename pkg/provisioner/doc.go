/*
Package provisioner is the master side of burrow: it owns every tenant on
the host and keeps the host registered with the central server.

# Architecture

A Provisioner runs three loops. Only the signal loop touches worker
processes, so reaping and shutdown never race with each other:

	      SIGCHLD / SIGTERM / SIGINT
	                │
	                ▼
	┌──────────────────────────────┐     ┌───────────────────────────┐
	│  Signal loop (Run goroutine) │     │  Heartbeat loop           │
	│  CLD  → VerifyTenants        │     │  register once, then      │
	│  TERM → shutdown             │     │  heartbeat with usage     │
	│  INT  → shutdown             │     │  404 → register again     │
	└──────────────┬───────────────┘     └───────────────────────────┘
	               │
	               ▼
	┌──────────────────────────────┐     ┌───────────────────────────┐
	│  tenant.Manager per tenant   │◀────│  Resource loop            │
	│  spawn, terminate, reap      │     │  sync drained STALE       │
	└──────────────────────────────┘     │  tenants, then resume     │
	                                     └───────────────────────────┘

The HTTP API in pkg/api calls PutTenant, DeleteTenant, Tenant and Status.
Those calls never wait for workers: scaling and resyncs take effect
asynchronously and show up in later status reads.

# Capacity

The sum of desired workers over all tenants that are not being deleted may
not exceed Config.Capacity. An update is checked against the other tenants
only, so a tenant can always shrink or keep its size.

	capacity 10
	t1 workers 4, t2 workers 5
	PUT t2 workers 6   → ok (4 + 6)
	PUT t3 workers 2   → ErrCapacityExceeded

# Deletion

DeleteTenant marks the tenant DELETING and sends SIGTERM to its workers. The
tenant stays in the map until its last worker has been reaped and no sync is
running for it; only then are its resource activations purged. A PutTenant
for a tenant that is still being deleted fails with ErrTenantDeleting.

# Shutdown

TERM, INT and a cancelled Run context all take the same path:

 1. New tenant requests are refused with ErrShuttingDown
 2. Every tenant is deleted and its workers get SIGTERM
 3. Workers are reaped on SIGCHLD and on a short poll
 4. Workers alive after ShutdownTimeout get SIGKILL
 5. The provisioner unregisters from the central server

A panic in the signal loop kills the whole process group so no worker can
outlive a broken master.

# Usage

	p, err := provisioner.New(provisioner.Config{
		Server:   c,
		Fetcher:  c,
		Store:    store,
		Capacity: 10,
		DataDir:  "/var/lib/burrow/data",
		WorkDir:  "/var/lib/burrow/work",
		Launcher: process.NewOSLauncher(process.Config{Binary: self}),
	})
	if err != nil {
		return err
	}
	stop := p.NotifySignals()
	defer stop()
	return p.Run(ctx)
*/
package provisioner
