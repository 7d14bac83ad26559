package metrics

import (
	"time"

	"github.com/cuemby/burrow/pkg/types"
)

// StatusSource is anything that can report the provisioner status document
type StatusSource interface {
	Status() types.ProvisionerStatus
}

// Collector periodically copies the provisioner status into gauges
type Collector struct {
	source   StatusSource
	interval time.Duration
	stopCh   chan struct{}
	// tenants seen on the previous pass, so removed tenants drop out of the gauges
	seen map[string]struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source StatusSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
		seen:     make(map[string]struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	status := c.source.Status()

	CapacityFree.Set(float64(status.CapacityFree))

	counts := make(map[string]int)
	current := make(map[string]struct{}, len(status.Tenants))
	for _, t := range status.Tenants {
		counts[t.Status]++
		current[t.ID] = struct{}{}
		WorkersDesired.WithLabelValues(t.ID).Set(float64(t.Workers))
		WorkersLive.WithLabelValues(t.ID).Set(float64(t.LiveWorkers))
	}

	for id := range c.seen {
		if _, ok := current[id]; !ok {
			WorkersDesired.DeleteLabelValues(id)
			WorkersLive.DeleteLabelValues(id)
		}
	}
	c.seen = current

	TenantsTotal.Reset()
	for status, n := range counts {
		TenantsTotal.WithLabelValues(status).Set(float64(n))
	}
}
