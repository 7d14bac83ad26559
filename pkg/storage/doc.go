/*
Package storage provides BoltDB-backed persistence for master-local state.

The master keeps exactly one piece of durable state of its own: the activation
record, which says which version of each resource is the current one for a
tenant. Everything else (tenant specs, task queue, resource contents) belongs
to the central server or lives in the content store on disk.

# Layout

	<dataDir>/burrow.db
	  activations/            (bucket)
	    <tenantID>/           (nested bucket)
	      <resourcePath> -> <version>

The resource manager writes a record when it activates a version and deletes
it when it deactivates one. Symlinks in the tenant work directory are still
created for plugins to consume, but the active-version map is read from here
rather than by resolving those links.

# Concurrency

BoltDB serializes writers and allows concurrent readers. The database file is
locked by one process at a time; opening waits up to five seconds for a
previous master to release it.
*/
package storage
