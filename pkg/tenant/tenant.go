package tenant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"syscall"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/process"
	"github.com/cuemby/burrow/pkg/resource"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Status is the lifecycle state of a tenant
type Status string

const (
	StatusStarting Status = "STARTING"
	StatusActive   Status = "ACTIVE"
	StatusStale    Status = "STALE"
	StatusDeleting Status = "DELETING"
)

var (
	// ErrInsufficientWorkers is returned when a scale down asks for more
	// workers than are running and not already terminating
	ErrInsufficientWorkers = errors.New("not enough workers to terminate")
	// ErrWorkersRunning is returned by Sync while the tenant still has live workers
	ErrWorkersRunning = errors.New("tenant workers are still running")
	// ErrDeleting is returned when updating a tenant that is being deleted
	ErrDeleting = errors.New("tenant is being deleted")
)

// Resources is the tenant's view of its resource manager
type Resources interface {
	SetSpec(spec types.ResourceSpec)
	Sync(ctx context.Context) error
	ActiveVersions() (map[string]types.Version, error)
	Purge() error
}

// Config configures a tenant Manager
type Config struct {
	Spec          types.TenantSpec
	ProvisionerID string
	Launcher      process.Launcher
	Resources     Resources
	// WorkerArgs are appended to every worker command line
	WorkerArgs []string
	Events     events.Publisher
}

// Manager owns one tenant's worker pool and resources.
//
// Worker PIDs are kept in spawn order so scale downs can pick the most
// recently spawned ones. A PID stays tracked until it has been reaped.
type Manager struct {
	id            string
	provisionerID string
	launcher      process.Launcher
	resources     Resources
	workerArgs    []string
	events        events.Publisher
	logger        zerolog.Logger

	mu           sync.Mutex
	spec         types.TenantSpec
	status       Status
	pids         []int
	terminating  map[int]struct{}
	pendingSyncs int
	syncErr      string
}

// NewManager creates a tenant manager in the STARTING state. No worker is
// started until Spawn.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.Spec.Validate(); err != nil {
		return nil, err
	}
	if cfg.Launcher == nil || cfg.Resources == nil {
		return nil, fmt.Errorf("launcher and resources are required")
	}
	publisher := cfg.Events
	if publisher == nil {
		publisher = events.Discard
	}

	cfg.Resources.SetSpec(cfg.Spec.Resources)

	return &Manager{
		id:            cfg.Spec.ID,
		provisionerID: cfg.ProvisionerID,
		launcher:      cfg.Launcher,
		resources:     cfg.Resources,
		workerArgs:    cfg.WorkerArgs,
		events:        publisher,
		logger:        log.WithTenantID(cfg.Spec.ID).With().Str("component", "tenant").Logger(),
		spec:          cfg.Spec,
		status:        StatusStarting,
		terminating:   make(map[int]struct{}),
	}, nil
}

// ID returns the tenant ID
func (m *Manager) ID() string {
	return m.id
}

// Spec returns the current desired state
func (m *Manager) Spec() types.TenantSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spec
}

// Status returns the lifecycle state
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Spawn brings a new tenant up. A tenant with resources goes STALE with one
// pending sync so its workers only start once the resources are in place.
func (m *Manager) Spawn() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusStarting {
		return fmt.Errorf("tenant %s already started", m.id)
	}

	if !m.spec.Resources.IsEmpty() {
		m.markStaleLocked()
		return nil
	}

	m.status = StatusActive
	return m.spawnLocked(m.spec.Workers)
}

// Update applies a new desired state.
//
// A resource change marks the tenant STALE, queues a sync and terminates every
// worker; the worker count is then restored by Resume. Otherwise the worker
// pool is grown or shrunk by the difference. A shrink that cannot find enough
// workers returns ErrInsufficientWorkers and leaves the current spec in place.
func (m *Manager) Update(spec types.TenantSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	if spec.ID != m.id {
		return fmt.Errorf("spec for tenant %s applied to tenant %s", spec.ID, m.id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status == StatusDeleting {
		return fmt.Errorf("tenant %s: %w", m.id, ErrDeleting)
	}

	if !spec.Resources.Equal(m.spec.Resources) {
		m.resources.SetSpec(spec.Resources)
		m.spec = spec
		m.markStaleLocked()
		m.terminateAllLocked("resync")
		return nil
	}

	if m.status != StatusActive {
		// the latest count is spawned by Resume
		m.spec = spec
		return nil
	}

	diff := spec.Workers - m.spec.Workers
	switch {
	case diff > 0:
		before := len(m.pids)
		if err := m.spawnLocked(diff); err != nil {
			// keep the count that was reached so the next update converges
			spec.Workers = m.spec.Workers + len(m.pids) - before
			m.spec = spec
			return err
		}
		m.spec = spec
	case diff < 0:
		if err := m.terminateNewestLocked(-diff); err != nil {
			return err
		}
		m.spec = spec
	default:
		m.spec = spec
	}

	m.events.Publish(&events.Event{
		Type:     events.EventTenantUpdated,
		Message:  fmt.Sprintf("tenant %s updated", spec.ID),
		Metadata: map[string]string{"tenant_id": spec.ID, "workers": strconv.Itoa(spec.Workers)},
	})
	return nil
}

// VerifyWorkers reaps exited workers and forgets them. It returns the PIDs
// that were removed.
func (m *Manager) VerifyWorkers() []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var gone []int
	remaining := m.pids[:0]
	for _, pid := range m.pids {
		exited, err := m.launcher.Reap(pid)
		if err != nil {
			m.logger.Warn().Err(err).Int("pid", pid).Msg("Failed to check worker")
		}
		if !exited {
			remaining = append(remaining, pid)
			continue
		}
		gone = append(gone, pid)
		delete(m.terminating, pid)
	}
	m.pids = remaining

	for _, pid := range gone {
		metrics.WorkersReaped.Inc()
		m.logger.Info().Int("pid", pid).Msg("Worker exited")
		m.events.Publish(&events.Event{
			Type:     events.EventWorkerExited,
			Message:  fmt.Sprintf("worker %d exited", pid),
			Metadata: map[string]string{"tenant_id": m.id, "pid": strconv.Itoa(pid)},
		})
	}
	return gone
}

// Delete marks the tenant DELETING and terminates every worker. The tenant
// stays tracked until NumWorkers reaches zero.
func (m *Manager) Delete() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusDeleting {
		m.logger.Info().Int("workers", len(m.pids)).Msg("Deleting tenant")
	}
	m.status = StatusDeleting
	m.terminateAllLocked("delete")
}

// Kill sends SIGKILL to every tracked worker
func (m *Manager) Kill() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, pid := range m.pids {
		if err := m.launcher.Signal(pid, syscall.SIGKILL); err != nil {
			m.logger.Warn().Err(err).Int("pid", pid).Msg("Failed to kill worker")
			continue
		}
		m.terminating[pid] = struct{}{}
		metrics.WorkersTerminated.WithLabelValues("kill").Inc()
	}
}

// NumWorkers returns the number of tracked worker processes, terminating ones included
func (m *Manager) NumWorkers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pids)
}

// ResourceSyncNeeded reports whether the tenant is STALE with a sync pending
func (m *Manager) ResourceSyncNeeded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == StatusStale && m.pendingSyncs > 0
}

// Sync runs resource syncs until no request is pending. Requests arriving
// while a sync runs are folded into one more pass.
//
// A partial sync still consumes the pending requests so the tenant can resume
// with the resources that did sync. The failure is kept in the tenant status
// until a later sync succeeds. On any other failure the pending requests are
// kept so the next call retries.
func (m *Manager) Sync(ctx context.Context) error {
	for {
		m.mu.Lock()
		if len(m.pids) > 0 {
			m.mu.Unlock()
			return ErrWorkersRunning
		}
		pending := m.pendingSyncs
		m.mu.Unlock()

		if pending == 0 {
			return nil
		}

		err := m.resources.Sync(ctx)
		if err != nil && !errors.Is(err, resource.ErrPartialSync) {
			return fmt.Errorf("failed to sync resources for tenant %s: %w", m.id, err)
		}
		if err != nil {
			m.logger.Warn().Err(err).Msg("Tenant resources partially synced")
		}

		m.mu.Lock()
		m.pendingSyncs -= pending
		again := m.pendingSyncs > 0
		m.syncErr = ""
		if err != nil {
			m.syncErr = err.Error()
		}
		m.mu.Unlock()

		if !again {
			break
		}
		m.logger.Debug().Msg("Sync requested during sync, syncing again")
	}

	m.logger.Info().Msg("Tenant resources synced")
	m.events.Publish(&events.Event{
		Type:     events.EventTenantSynced,
		Message:  fmt.Sprintf("tenant %s resources synced", m.id),
		Metadata: map[string]string{"tenant_id": m.id},
	})
	return nil
}

// Resume makes a synced STALE tenant ACTIVE again and spawns its workers
func (m *Manager) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status != StatusStale {
		return nil
	}
	if m.pendingSyncs > 0 {
		return fmt.Errorf("tenant %s has %d pending syncs", m.id, m.pendingSyncs)
	}

	m.status = StatusActive
	live := len(m.pids) - len(m.terminating)
	m.logger.Info().Int("workers", m.spec.Workers).Msg("Resuming tenant")
	m.events.Publish(&events.Event{
		Type:     events.EventTenantResumed,
		Message:  fmt.Sprintf("tenant %s resumed", m.id),
		Metadata: map[string]string{"tenant_id": m.id},
	})
	return m.spawnLocked(m.spec.Workers - live)
}

// Purge drops the tenant's resource activations after it is removed
func (m *Manager) Purge() error {
	return m.resources.Purge()
}

// TenantStatus returns the tenant's entry of the status document
func (m *Manager) TenantStatus() types.TenantStatus {
	active, err := m.resources.ActiveVersions()
	if err != nil {
		m.logger.Warn().Err(err).Msg("Failed to read active resources")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return types.TenantStatus{
		ID:              m.id,
		Status:          string(m.status),
		Workers:         m.spec.Workers,
		LiveWorkers:     len(m.pids),
		Terminating:     len(m.terminating),
		PendingSyncs:    m.pendingSyncs,
		SyncError:       m.syncErr,
		ActiveResources: active,
	}
}

// PIDs returns the tracked worker PIDs in spawn order
func (m *Manager) PIDs() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.pids...)
}

func (m *Manager) markStaleLocked() {
	m.status = StatusStale
	m.pendingSyncs++
	m.logger.Info().Int("pending_syncs", m.pendingSyncs).Msg("Tenant resources are stale")
	m.events.Publish(&events.Event{
		Type:     events.EventTenantStale,
		Message:  fmt.Sprintf("tenant %s resources changed", m.id),
		Metadata: map[string]string{"tenant_id": m.id},
	})
}

func (m *Manager) spawnLocked(n int) error {
	for i := 0; i < n; i++ {
		name := "worker-" + m.id + "-" + uuid.NewString()[:8]
		args := append([]string{
			"worker",
			"--tenant", m.id,
			"--provisioner", m.provisionerID,
			"--name", name,
		}, m.workerArgs...)

		pid, err := m.launcher.Spawn(args)
		if err != nil {
			return fmt.Errorf("failed to spawn worker for tenant %s: %w", m.id, err)
		}
		m.pids = append(m.pids, pid)

		metrics.WorkersSpawned.Inc()
		m.logger.Info().Int("pid", pid).Str("worker", name).Msg("Worker spawned")
		m.events.Publish(&events.Event{
			Type:     events.EventWorkerSpawned,
			Message:  fmt.Sprintf("worker %s spawned", name),
			Metadata: map[string]string{"tenant_id": m.id, "pid": strconv.Itoa(pid), "worker": name},
		})
	}
	return nil
}

// terminateNewestLocked signals the n most recently spawned workers that are
// not terminating yet. Nothing is signaled when fewer than n are eligible.
func (m *Manager) terminateNewestLocked(n int) error {
	eligible := lo.Filter(m.pids, func(pid int, _ int) bool {
		_, ok := m.terminating[pid]
		return !ok
	})
	if len(eligible) < n {
		return fmt.Errorf("tenant %s: asked to terminate %d workers, %d eligible: %w",
			m.id, n, len(eligible), ErrInsufficientWorkers)
	}

	for _, pid := range eligible[len(eligible)-n:] {
		m.terminateLocked(pid, "scale_down")
	}
	return nil
}

func (m *Manager) terminateAllLocked(reason string) {
	for _, pid := range m.pids {
		if _, ok := m.terminating[pid]; ok {
			continue
		}
		m.terminateLocked(pid, reason)
	}
}

func (m *Manager) terminateLocked(pid int, reason string) {
	if err := m.launcher.Signal(pid, syscall.SIGTERM); err != nil {
		m.logger.Warn().Err(err).Int("pid", pid).Msg("Failed to terminate worker")
		return
	}
	m.terminating[pid] = struct{}{}

	metrics.WorkersTerminated.WithLabelValues(reason).Inc()
	m.logger.Info().Int("pid", pid).Str("reason", reason).Msg("Worker terminating")
	m.events.Publish(&events.Event{
		Type:     events.EventWorkerTerminating,
		Message:  fmt.Sprintf("worker %d terminating", pid),
		Metadata: map[string]string{"tenant_id": m.id, "pid": strconv.Itoa(pid), "reason": reason},
	})
}
