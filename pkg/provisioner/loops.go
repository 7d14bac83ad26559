package provisioner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall"
	"time"

	"github.com/cuemby/burrow/pkg/client"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/retry"
	"github.com/cuemby/burrow/pkg/tenant"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/samber/lo"
)

// Signal names queued for the signal loop
const (
	SignalChild     = "CLD"
	SignalTerminate = "TERM"
	SignalInterrupt = "INT"
)

// how often shutdown re-checks for exited workers when no SIGCHLD arrives
const reapPollInterval = 100 * time.Millisecond

// Enqueue hands a signal name to the signal loop
func (p *Provisioner) Enqueue(signal string) {
	p.signals <- signal
}

// Run drives the heartbeat, resource and signal loops until a TERM or INT
// has been fully processed, or ctx is canceled, which is handled as TERM.
// The signal loop runs on the calling goroutine; the other loops stop when
// it returns.
func (p *Provisioner) Run(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.heartbeatLoop(loopCtx)
	}()
	go func() {
		defer wg.Done()
		p.resourceLoop(loopCtx)
	}()

	err := p.signalLoop(ctx)

	cancel()
	wg.Wait()
	return err
}

func (p *Provisioner) signalLoop(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Msg("Signal loop died, killing process group")
			p.killGroup()
			err = fmt.Errorf("signal loop panic: %v", r)
		}
	}()

	p.logger.Info().Msg("Signal loop started")
	for {
		select {
		case sig := <-p.signals:
			switch sig {
			case SignalChild:
				p.VerifyTenants()
			case SignalTerminate, SignalInterrupt:
				if p.beginShutdown() {
					p.logger.Info().Str("signal", sig).Msg("Shutting down")
					return p.shutdown()
				}
			default:
				p.logger.Warn().Str("signal", sig).Msg("Ignoring unknown signal")
			}
		case <-ctx.Done():
			if p.beginShutdown() {
				p.logger.Info().Msg("Context canceled, shutting down")
				return p.shutdown()
			}
			return nil
		}
	}
}

// beginShutdown flips the shutdown flag. It returns false when shutdown had
// already begun.
func (p *Provisioner) beginShutdown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopping {
		return false
	}
	p.stopping = true
	p.status = StatusShuttingDown
	return true
}

// shutdown deletes every tenant, waits for all workers to be reaped and
// unregisters. Workers still alive after the shutdown timeout get SIGKILL.
func (p *Provisioner) shutdown() error {
	p.mu.Lock()
	for id, tm := range p.tenants {
		tm.Delete()
		p.terminating[id] = struct{}{}
	}
	p.mu.Unlock()

	deadline := time.NewTimer(p.cfg.ShutdownTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(reapPollInterval)
	defer ticker.Stop()

	killed := false
	for {
		p.VerifyTenants()
		remaining := p.NumWorkers()
		if remaining == 0 {
			break
		}

		select {
		case sig := <-p.signals:
			if sig != SignalChild {
				p.logger.Debug().Str("signal", sig).Msg("Already shutting down")
			}
		case <-ticker.C:
		case <-deadline.C:
			if !killed {
				p.logger.Warn().Int("workers", remaining).Msg("Workers did not exit in time, killing them")
				p.killAll()
				killed = true
			}
		}
	}
	p.logger.Info().Msg("All workers exited")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.unregister(ctx); err != nil {
		p.logger.Error().Err(err).Msg("Failed to unregister from central server")
		return err
	}
	return nil
}

func (p *Provisioner) killAll() {
	p.mu.Lock()
	managers := lo.Values(p.tenants)
	p.mu.Unlock()
	for _, tm := range managers {
		tm.Kill()
	}
}

func killProcessGroup() {
	_ = syscall.Kill(0, syscall.SIGKILL)
}

func (p *Provisioner) unregister(ctx context.Context) error {
	// a 404 means the server already forgot us; retrying cannot change that
	err := retry.Do(ctx, 3, func() error {
		if err := p.cfg.Server.Unregister(ctx, p.id); !errors.Is(err, client.ErrNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to unregister %s: %w", p.id, err)
	}

	p.mu.Lock()
	p.registered = false
	p.mu.Unlock()

	p.logger.Info().Msg("Unregistered from central server")
	p.events.Publish(&events.Event{
		Type:     events.EventProvisionerUnregistered,
		Message:  fmt.Sprintf("provisioner %s unregistered", p.id),
		Metadata: map[string]string{"provisioner_id": p.id},
	})
	return nil
}

// Register announces this provisioner to the central server
func (p *Provisioner) Register(ctx context.Context) error {
	err := p.cfg.Server.Register(ctx, types.RegisterRequest{
		ID:            p.id,
		CapacityTotal: p.cfg.Capacity,
		Host:          p.cfg.Host,
		Port:          p.cfg.Port,
	})
	metrics.Registrations.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		metrics.SetComponent(metrics.ComponentRegistration, false, err.Error())
		return err
	}

	p.mu.Lock()
	p.registered = true
	if p.status == StatusStarting {
		p.status = StatusOK
	}
	p.mu.Unlock()

	metrics.SetComponent(metrics.ComponentRegistration, true, "")
	p.logger.Info().Int("capacity", p.cfg.Capacity).Msg("Registered with central server")
	p.events.Publish(&events.Event{
		Type:     events.EventProvisionerRegistered,
		Message:  fmt.Sprintf("provisioner %s registered", p.id),
		Metadata: map[string]string{"provisioner_id": p.id},
	})
	return nil
}

// Heartbeat performs one heartbeat tick: register if needed, report usage,
// and register again if the server has forgotten this provisioner
func (p *Provisioner) Heartbeat(ctx context.Context) {
	if !p.Registered() {
		if err := p.Register(ctx); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to register with central server")
			return
		}
	}

	err := p.cfg.Server.Heartbeat(ctx, p.id, p.HeartbeatRequest())
	switch {
	case err == nil:
		metrics.Heartbeats.WithLabelValues("success").Inc()
		metrics.SetComponent(metrics.ComponentHeartbeat, true, "")
	case errors.Is(err, client.ErrNotFound):
		metrics.Heartbeats.WithLabelValues("not_found").Inc()
		p.logger.Warn().Msg("Central server does not know this provisioner, registering again")
		p.mu.Lock()
		p.registered = false
		p.mu.Unlock()
		if err := p.Register(ctx); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to register with central server")
		}
	default:
		metrics.Heartbeats.WithLabelValues("failure").Inc()
		metrics.SetComponent(metrics.ComponentHeartbeat, false, err.Error())
		p.logger.Warn().Err(err).Msg("Heartbeat failed")
	}
}

// HeartbeatRequest builds the payload sent on every heartbeat
func (p *Provisioner) HeartbeatRequest() types.HeartbeatRequest {
	return types.HeartbeatRequest{Usage: p.Usage()}
}

func (p *Provisioner) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.HeartbeatInterval)
	defer ticker.Stop()

	p.logger.Info().Dur("interval", p.cfg.HeartbeatInterval).Msg("Heartbeat loop started")
	p.Heartbeat(ctx)
	for {
		select {
		case <-ticker.C:
			p.Heartbeat(ctx)
		case <-ctx.Done():
			p.logger.Info().Msg("Heartbeat loop stopped")
			return
		}
	}
}

func (p *Provisioner) resourceLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.ResourcePollInterval)
	defer ticker.Stop()

	p.logger.Info().Msg("Resource loop started")
	for {
		select {
		case <-ticker.C:
			p.ReconcileResources(ctx)
		case <-ctx.Done():
			p.logger.Info().Msg("Resource loop stopped")
			return
		}
	}
}

// ReconcileResources syncs and resumes every STALE tenant whose workers have
// all exited. Tenants with live workers are left for a later pass.
func (p *Provisioner) ReconcileResources(ctx context.Context) {
	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		return
	}
	candidates := lo.Filter(lo.Values(p.tenants), func(tm *tenant.Manager, _ int) bool {
		return tm.ResourceSyncNeeded() && tm.NumWorkers() == 0
	})
	for _, tm := range candidates {
		p.syncing[tm.ID()] = struct{}{}
	}
	p.mu.Unlock()

	for _, tm := range candidates {
		p.syncTenant(ctx, tm)
	}

	if len(candidates) > 0 {
		p.mu.Lock()
		for _, tm := range candidates {
			delete(p.syncing, tm.ID())
		}
		p.finalizeDeletionsLocked()
		p.mu.Unlock()
	}
}

func (p *Provisioner) syncTenant(ctx context.Context, tm *tenant.Manager) {
	logger := p.logger.With().Str("tenant_id", tm.ID()).Logger()

	if err := tm.Sync(ctx); err != nil {
		logger.Warn().Err(err).Msg("Resource sync failed, will retry")
		return
	}
	if err := tm.Resume(); err != nil {
		logger.Error().Err(err).Msg("Failed to resume tenant")
	}
}
