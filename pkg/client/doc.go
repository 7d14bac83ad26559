/*
Package client implements the HTTP JSON contracts burrow speaks.

The same Client type is used in three places:

  - the master, towards the central server: Register, Heartbeat, Unregister
  - workers, towards the central server: TakeTask, FinishTask
  - the resource manager, towards the resource store: FetchResource

and, for operators, towards a master's own tenant API: PutTenant,
DeleteTenant, Status.

Every request carries the Burrow-UserID and Burrow-TenantID identity headers.
A 404 is reported as ErrNotFound so callers can use errors.Is; any other
unexpected status is a *StatusError. Transport errors are returned wrapped and
are never retried here: retry policy belongs to the caller's loop.
*/
package client
