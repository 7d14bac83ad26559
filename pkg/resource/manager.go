package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// ErrPartialSync is returned by Sync when some resources could not be fetched
// or activated. Every other resource was activated and the tenant can run.
var ErrPartialSync = errors.New("resources partially synced")

// Fetcher retrieves one version of a resource from the resource store
type Fetcher interface {
	FetchResource(ctx context.Context, resourcePath string, version types.Version) (io.ReadCloser, error)
}

// Config configures a Manager
type Config struct {
	TenantID string
	// DataDir holds one subtree per resource and version
	DataDir string
	// WorkDir holds one link per resource pointing at its active version
	WorkDir string
	Store   storage.Store
	Fetcher Fetcher
}

// Manager keeps a tenant's active resource set in line with its ResourceSpec.
//
// Content lives under DataDir/{resourcePath}/{version}/{resourceName}. The
// active version of each resource is recorded in the Store, and a link at
// WorkDir/{resourcePath} points plugins at the active content.
type Manager struct {
	tenantID string
	dataDir  string
	workDir  string
	store    storage.Store
	fetcher  Fetcher
	logger   zerolog.Logger

	mu   sync.Mutex
	spec types.ResourceSpec
}

// NewManager creates a resource manager for one tenant
func NewManager(cfg Config) (*Manager, error) {
	if !types.ValidName(cfg.TenantID) {
		return nil, fmt.Errorf("invalid tenant id %q", cfg.TenantID)
	}
	if cfg.Store == nil || cfg.Fetcher == nil {
		return nil, fmt.Errorf("store and fetcher are required")
	}
	for _, dir := range []string{cfg.DataDir, cfg.WorkDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	return &Manager{
		tenantID: cfg.TenantID,
		dataDir:  cfg.DataDir,
		workDir:  cfg.WorkDir,
		store:    cfg.Store,
		fetcher:  cfg.Fetcher,
		logger: log.WithComponent("resource").With().
			Str("tenant_id", cfg.TenantID).Logger(),
	}, nil
}

// SetSpec replaces the desired resource set. It takes effect on the next Sync.
func (m *Manager) SetSpec(spec types.ResourceSpec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spec = spec
}

// Spec returns the desired resource set
func (m *Manager) Spec() types.ResourceSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spec
}

// ActiveVersions returns resourcePath -> active version
func (m *Manager) ActiveVersions() (map[string]types.Version, error) {
	active, err := m.store.ListActivations(m.tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load activations: %w", err)
	}
	return active, nil
}

// Sync brings the active resource set in line with the current spec.
//
// Every active resource is deactivated first, then missing versions are
// fetched, then every desired version is activated. Callers must make sure no
// worker of the tenant is running. A fetch failure skips that resource only;
// all failures are returned joined under ErrPartialSync and the next Sync
// fetches again. Any other error leaves the active set incomplete.
func (m *Manager) Sync(ctx context.Context) error {
	spec := m.Spec()
	timer := metrics.NewTimer()

	err := m.sync(ctx, spec)

	timer.ObserveDuration(metrics.ResourceSyncDuration)
	metrics.ResourceSyncs.WithLabelValues(metrics.Result(err)).Inc()
	return err
}

func (m *Manager) sync(ctx context.Context, spec types.ResourceSpec) error {
	active, err := m.ActiveVersions()
	if err != nil {
		return err
	}

	for path := range active {
		if err := m.Deactivate(path); err != nil {
			return err
		}
	}
	active = map[string]types.Version{}

	// Sorted so fetch order and logs are stable
	paths := lo.Keys(spec.Resources)
	sort.Strings(paths)

	var errs []error
	failed := map[string]bool{}
	for _, path := range paths {
		version := spec.Resources[path]
		if m.IsSynced(spec, path, version) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.fetch(ctx, spec, path, version); err != nil {
			m.logger.Warn().Err(err).
				Str("resource", path).
				Str("version", string(version)).
				Msg("Failed to fetch resource")
			errs = append(errs, err)
			failed[path] = true
		}
	}

	for _, path := range paths {
		version := spec.Resources[path]
		if failed[path] || active[path] == version {
			continue
		}
		if err := m.Activate(spec, path, version); err != nil {
			m.logger.Error().Err(err).
				Str("resource", path).
				Str("version", string(version)).
				Msg("Failed to activate resource")
			errs = append(errs, err)
			continue
		}
		active[path] = version
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrPartialSync, errors.Join(errs...))
	}

	m.logger.Debug().Int("resources", len(active)).Msg("Resources synced")
	return nil
}

// IsSynced reports whether a version is present in the content store.
// An archive is synced when its directory exists. A file is synced when it
// exists and, if a permission is configured, its mode matches exactly.
func (m *Manager) IsSynced(spec types.ResourceSpec, resourcePath string, version types.Version) bool {
	info, err := os.Lstat(m.contentPath(resourcePath, version))
	if err != nil {
		return false
	}

	if spec.FormatOf(resourcePath) == types.ResourceFormatArchive {
		return info.IsDir()
	}
	if !info.Mode().IsRegular() {
		return false
	}
	if perm, ok := spec.PermissionOf(resourcePath); ok {
		return unixMode(info.Mode()) == perm&0o7777
	}
	return true
}

// Activate points the resource's work link at the given version
func (m *Manager) Activate(spec types.ResourceSpec, resourcePath string, version types.Version) error {
	if !m.IsSynced(spec, resourcePath, version) {
		return fmt.Errorf("cannot activate %s version %s: not synced", resourcePath, version)
	}

	link := m.linkPath(resourcePath)
	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		return fmt.Errorf("failed to create link directory: %w", err)
	}
	if err := removeLink(link); err != nil {
		return err
	}
	if err := os.Symlink(m.contentPath(resourcePath, version), link); err != nil {
		return fmt.Errorf("failed to link %s: %w", resourcePath, err)
	}
	if err := m.store.SetActivation(m.tenantID, resourcePath, version); err != nil {
		return fmt.Errorf("failed to record activation of %s: %w", resourcePath, err)
	}

	m.logger.Info().
		Str("resource", resourcePath).
		Str("version", string(version)).
		Msg("Resource activated")
	return nil
}

// Deactivate removes the resource's work link and its activation record
func (m *Manager) Deactivate(resourcePath string) error {
	if err := removeLink(m.linkPath(resourcePath)); err != nil {
		return err
	}
	if err := m.store.DeleteActivation(m.tenantID, resourcePath); err != nil {
		return fmt.Errorf("failed to clear activation of %s: %w", resourcePath, err)
	}
	m.logger.Debug().Str("resource", resourcePath).Msg("Resource deactivated")
	return nil
}

// Purge deactivates everything and forgets the tenant's activation records.
// Fetched content stays in the data directory.
func (m *Manager) Purge() error {
	if err := os.RemoveAll(m.workDir); err != nil {
		return fmt.Errorf("failed to remove work directory: %w", err)
	}
	if err := m.store.DeleteTenant(m.tenantID); err != nil {
		return fmt.Errorf("failed to clear activations: %w", err)
	}
	return nil
}

// WorkDir returns the directory holding the tenant's active resource links
func (m *Manager) WorkDir() string {
	return m.workDir
}

func (m *Manager) fetch(ctx context.Context, spec types.ResourceSpec, resourcePath string, version types.Version) error {
	format := spec.FormatOf(resourcePath)

	rc, err := m.fetcher.FetchResource(ctx, resourcePath, version)
	if err != nil {
		metrics.ResourceFetches.WithLabelValues(string(format), "failure").Inc()
		return err
	}
	defer rc.Close()

	target := m.contentPath(resourcePath, version)
	if format == types.ResourceFormatArchive {
		err = extractArchive(rc, target)
	} else {
		perm, hasPerm := spec.PermissionOf(resourcePath)
		err = writeFile(rc, target, perm, hasPerm)
	}
	metrics.ResourceFetches.WithLabelValues(string(format), metrics.Result(err)).Inc()
	if err != nil {
		return fmt.Errorf("failed to store %s version %s: %w", resourcePath, version, err)
	}

	m.logger.Info().
		Str("resource", resourcePath).
		Str("version", string(version)).
		Str("format", string(format)).
		Msg("Resource fetched")
	return nil
}

func (m *Manager) contentPath(resourcePath string, version types.Version) string {
	return filepath.Join(m.dataDir, filepath.FromSlash(resourcePath), string(version), types.NameOf(resourcePath))
}

func (m *Manager) linkPath(resourcePath string) string {
	return filepath.Join(m.workDir, filepath.FromSlash(resourcePath))
}

func removeLink(link string) error {
	if err := os.Remove(link); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove link %s: %w", link, err)
	}
	return nil
}
