package provisioner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/process"
	"github.com/cuemby/burrow/pkg/resource"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/tenant"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Status is the lifecycle state of the master
type Status string

const (
	StatusStarting     Status = "STARTING"
	StatusOK           Status = "OK"
	StatusShuttingDown Status = "SHUTTING_DOWN"
)

var (
	// ErrTenantNotFound is returned for operations on an unknown tenant
	ErrTenantNotFound = errors.New("tenant not found")
	// ErrTenantDeleting is returned when a tenant pending deletion is updated
	ErrTenantDeleting = errors.New("tenant is being deleted")
	// ErrCapacityExceeded is returned when the desired workers would exceed capacity
	ErrCapacityExceeded = errors.New("worker capacity exceeded")
	// ErrShuttingDown is returned for tenant changes once shutdown has started
	ErrShuttingDown = errors.New("provisioner is shutting down")
)

// Server is the central server as seen by the master
type Server interface {
	Register(ctx context.Context, req types.RegisterRequest) error
	Heartbeat(ctx context.Context, provisionerID string, req types.HeartbeatRequest) error
	Unregister(ctx context.Context, provisionerID string) error
}

// Config configures a Provisioner
type Config struct {
	// ID defaults to NewID()
	ID       string
	Server   Server
	Host     string
	Port     int
	Capacity int

	DataDir  string
	WorkDir  string
	Store    storage.Store
	Fetcher  resource.Fetcher
	Launcher process.Launcher
	// WorkerArgs are appended to every worker command line
	WorkerArgs []string

	HeartbeatInterval    time.Duration
	ResourcePollInterval time.Duration
	ShutdownTimeout      time.Duration

	Events events.Publisher
}

// Provisioner is the master: it owns every tenant manager and keeps the
// central server informed of its usage.
type Provisioner struct {
	id     string
	cfg    Config
	events events.Publisher
	logger zerolog.Logger

	signals chan string
	// killGroup is the last resort when the signal loop dies
	killGroup func()

	mu          sync.Mutex
	tenants     map[string]*tenant.Manager
	terminating map[string]struct{}
	syncing     map[string]struct{}
	registered  bool
	status      Status
	stopping    bool
}

// NewID returns the provisioner id for this process: master-<hostname>-<pid>
func NewID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	return "master-" + hostname + "-" + strconv.Itoa(os.Getpid())
}

// New creates a provisioner
func New(cfg Config) (*Provisioner, error) {
	if cfg.Server == nil || cfg.Store == nil || cfg.Fetcher == nil || cfg.Launcher == nil {
		return nil, fmt.Errorf("server, store, fetcher and launcher are required")
	}
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive, got %d", cfg.Capacity)
	}
	if cfg.ID == "" {
		cfg.ID = NewID()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 10 * time.Second
	}
	if cfg.ResourcePollInterval <= 0 {
		cfg.ResourcePollInterval = time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 60 * time.Second
	}
	publisher := cfg.Events
	if publisher == nil {
		publisher = events.Discard
	}

	return &Provisioner{
		id:          cfg.ID,
		cfg:         cfg,
		events:      publisher,
		logger:      log.WithProvisionerID(cfg.ID).With().Str("component", "provisioner").Logger(),
		signals:     make(chan string, 64),
		killGroup:   killProcessGroup,
		tenants:     make(map[string]*tenant.Manager),
		terminating: make(map[string]struct{}),
		syncing:     make(map[string]struct{}),
		status:      StatusStarting,
	}, nil
}

// ID returns the provisioner id
func (p *Provisioner) ID() string {
	return p.id
}

// PutTenant creates a tenant or applies a new spec to an existing one.
// It reports whether the tenant was created.
func (p *Provisioner) PutTenant(spec types.TenantSpec) (bool, error) {
	if err := spec.Validate(); err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopping {
		return false, ErrShuttingDown
	}
	if _, ok := p.terminating[spec.ID]; ok {
		return false, fmt.Errorf("tenant %s: %w", spec.ID, ErrTenantDeleting)
	}
	if used := p.desiredWorkersLocked(spec.ID); used+spec.Workers > p.cfg.Capacity {
		return false, fmt.Errorf("tenant %s wants %d workers, %d of %d in use: %w",
			spec.ID, spec.Workers, used, p.cfg.Capacity, ErrCapacityExceeded)
	}

	if tm, ok := p.tenants[spec.ID]; ok {
		if err := tm.Update(spec); err != nil {
			if errors.Is(err, tenant.ErrDeleting) {
				return false, fmt.Errorf("tenant %s: %w", spec.ID, ErrTenantDeleting)
			}
			return false, err
		}
		return false, nil
	}

	rm, err := resource.NewManager(resource.Config{
		TenantID: spec.ID,
		DataDir:  filepath.Join(p.cfg.DataDir, "tenants", spec.ID),
		WorkDir:  filepath.Join(p.cfg.WorkDir, spec.ID),
		Store:    p.cfg.Store,
		Fetcher:  p.cfg.Fetcher,
	})
	if err != nil {
		return false, fmt.Errorf("failed to create resource manager for tenant %s: %w", spec.ID, err)
	}

	tm, err := tenant.NewManager(tenant.Config{
		Spec:          spec,
		ProvisionerID: p.id,
		Launcher:      p.cfg.Launcher,
		Resources:     rm,
		WorkerArgs:    append([]string{"--work-dir", rm.WorkDir()}, p.cfg.WorkerArgs...),
		Events:        p.events,
	})
	if err != nil {
		return false, err
	}
	p.tenants[spec.ID] = tm

	p.logger.Info().Str("tenant_id", spec.ID).Int("workers", spec.Workers).Msg("Tenant created")
	p.events.Publish(&events.Event{
		Type:     events.EventTenantCreated,
		Message:  fmt.Sprintf("tenant %s created", spec.ID),
		Metadata: map[string]string{"tenant_id": spec.ID},
	})

	if err := tm.Spawn(); err != nil {
		return true, err
	}
	return true, nil
}

// DeleteTenant requests deletion of a tenant. Its workers are terminated and
// it is removed once the last one has been reaped.
func (p *Provisioner) DeleteTenant(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tm, ok := p.tenants[id]
	if !ok {
		return fmt.Errorf("tenant %s: %w", id, ErrTenantNotFound)
	}

	tm.Delete()
	p.terminating[id] = struct{}{}
	p.finalizeDeletionsLocked()
	return nil
}

// Tenant returns a tenant's status entry
func (p *Provisioner) Tenant(id string) (types.TenantStatus, error) {
	p.mu.Lock()
	tm, ok := p.tenants[id]
	p.mu.Unlock()
	if !ok {
		return types.TenantStatus{}, fmt.Errorf("tenant %s: %w", id, ErrTenantNotFound)
	}
	return tm.TenantStatus(), nil
}

// VerifyTenants reaps exited workers of every tenant and removes tenants
// whose deletion has completed
func (p *Provisioner) VerifyTenants() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, tm := range p.tenants {
		tm.VerifyWorkers()
	}
	p.finalizeDeletionsLocked()
}

// Usage returns tenant id -> number of worker processes
func (p *Provisioner) Usage() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo.MapValues(p.tenants, func(tm *tenant.Manager, _ string) int {
		return tm.NumWorkers()
	})
}

// Status returns the status document
func (p *Provisioner) Status() types.ProvisionerStatus {
	p.mu.Lock()
	managers := lo.Values(p.tenants)
	st := types.ProvisionerStatus{
		ID:            p.id,
		Status:        string(p.status),
		Registered:    p.registered,
		CapacityTotal: p.cfg.Capacity,
		CapacityFree:  max(p.cfg.Capacity-p.desiredWorkersLocked(""), 0),
	}
	p.mu.Unlock()

	st.Tenants = lo.Map(managers, func(tm *tenant.Manager, _ int) types.TenantStatus {
		return tm.TenantStatus()
	})
	sort.Slice(st.Tenants, func(i, j int) bool { return st.Tenants[i].ID < st.Tenants[j].ID })
	return st
}

// Registered reports whether the central server knows this provisioner
func (p *Provisioner) Registered() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.registered
}

// NumWorkers returns the number of worker processes across all tenants
func (p *Provisioner) NumWorkers() int {
	return lo.Sum(lo.Values(p.Usage()))
}

// desiredWorkersLocked sums desired workers over tenants that are not being
// deleted, skipping exclude
func (p *Provisioner) desiredWorkersLocked(exclude string) int {
	total := 0
	for id, tm := range p.tenants {
		if _, ok := p.terminating[id]; ok || id == exclude {
			continue
		}
		total += tm.Spec().Workers
	}
	return total
}

func (p *Provisioner) finalizeDeletionsLocked() {
	for id := range p.terminating {
		tm := p.tenants[id]
		if tm == nil {
			delete(p.terminating, id)
			continue
		}
		if _, busy := p.syncing[id]; busy || tm.NumWorkers() > 0 {
			continue
		}

		delete(p.tenants, id)
		delete(p.terminating, id)
		if err := tm.Purge(); err != nil {
			p.logger.Warn().Err(err).Str("tenant_id", id).Msg("Failed to purge tenant resources")
		}

		p.logger.Info().Str("tenant_id", id).Msg("Tenant deleted")
		p.events.Publish(&events.Event{
			Type:     events.EventTenantDeleted,
			Message:  fmt.Sprintf("tenant %s deleted", id),
			Metadata: map[string]string{"tenant_id": id},
		})
	}
}
