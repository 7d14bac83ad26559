/*
Package events provides an in-process broker for provisioner lifecycle events.

Tenant managers and the provisioner publish events as tenants and workers move
through their lifecycle; the master subscribes and logs them. Publishing never
blocks the publisher, so a slow subscriber cannot stall worker reconciliation.

# Event Types

	tenant.created  tenant.updated  tenant.stale  tenant.synced
	tenant.resumed  tenant.deleted
	worker.spawned  worker.terminating  worker.exited
	provisioner.registered  provisioner.unregistered

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	go func() {
		for ev := range sub {
			logger.Debug().Str("event", string(ev.Type)).Msg(ev.Message)
		}
	}()

Each subscriber has a buffered channel. Events are dropped for a subscriber
whose buffer is full.
*/
package events
