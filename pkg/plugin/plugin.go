package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// ErrUnknownPlugin is returned when no plugin is registered under a name
var ErrUnknownPlugin = errors.New("unknown plugin")

// Provider handles machine lifecycle tasks
type Provider interface {
	Create(ctx context.Context, task *types.Task) (types.TaskResult, error)
	Confirm(ctx context.Context, task *types.Task) (types.TaskResult, error)
	Delete(ctx context.Context, task *types.Task) (types.TaskResult, error)
}

// Automator handles software lifecycle tasks on a machine
type Automator interface {
	Bootstrap(ctx context.Context, task *types.Task) (types.TaskResult, error)
	Install(ctx context.Context, task *types.Task) (types.TaskResult, error)
	Configure(ctx context.Context, task *types.Task) (types.TaskResult, error)
	Initialize(ctx context.Context, task *types.Task) (types.TaskResult, error)
	Start(ctx context.Context, task *types.Task) (types.TaskResult, error)
	Stop(ctx context.Context, task *types.Task) (types.TaskResult, error)
	Remove(ctx context.Context, task *types.Task) (types.TaskResult, error)
}

// Env is what a plugin gets to know about the worker running it
type Env struct {
	TenantID string
	// WorkDir holds the tenant's active resources
	WorkDir string
	Logger  zerolog.Logger
}

// ProviderFactory builds a provider for one worker
type ProviderFactory func(env Env) (Provider, error)

// AutomatorFactory builds an automator for one worker
type AutomatorFactory func(env Env) (Automator, error)

var (
	factoriesMu        sync.RWMutex
	providerFactories  = make(map[string]ProviderFactory)
	automatorFactories = make(map[string]AutomatorFactory)
)

// RegisterProvider makes a provider available under name. It panics when
// the name is taken.
func RegisterProvider(name string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, present := providerFactories[name]; present {
		panic(fmt.Sprintf("provider %s registered twice", name))
	}
	providerFactories[name] = factory
}

// RegisterAutomator makes an automator available under name. It panics when
// the name is taken.
func RegisterAutomator(name string, factory AutomatorFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if _, present := automatorFactories[name]; present {
		panic(fmt.Sprintf("automator %s registered twice", name))
	}
	automatorFactories[name] = factory
}

// Registry holds the plugin instances of one worker, looked up by exact name
type Registry struct {
	providers  map[string]Provider
	automators map[string]Automator
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{
		providers:  make(map[string]Provider),
		automators: make(map[string]Automator),
	}
}

// Load instantiates every registered plugin
func Load(env Env) (*Registry, error) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	r := NewRegistry()
	for name, factory := range providerFactories {
		p, err := factory(env)
		if err != nil {
			return nil, fmt.Errorf("failed to load provider %s: %w", name, err)
		}
		r.AddProvider(name, p)
	}
	for name, factory := range automatorFactories {
		a, err := factory(env)
		if err != nil {
			return nil, fmt.Errorf("failed to load automator %s: %w", name, err)
		}
		r.AddAutomator(name, a)
	}
	return r, nil
}

// AddProvider adds a provider instance under name
func (r *Registry) AddProvider(name string, p Provider) {
	r.providers[name] = p
}

// AddAutomator adds an automator instance under name
func (r *Registry) AddAutomator(name string, a Automator) {
	r.automators[name] = a
}

// Provider looks a provider up by name
func (r *Registry) Provider(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", name, ErrUnknownPlugin)
	}
	return p, nil
}

// Automator looks an automator up by name
func (r *Registry) Automator(name string) (Automator, error) {
	a, ok := r.automators[name]
	if !ok {
		return nil, fmt.Errorf("automator %q: %w", name, ErrUnknownPlugin)
	}
	return a, nil
}

// ProviderNames returns the provider names in sorted order
func (r *Registry) ProviderNames() []string {
	names := lo.Keys(r.providers)
	sort.Strings(names)
	return names
}

// AutomatorNames returns the automator names in sorted order
func (r *Registry) AutomatorNames() []string {
	names := lo.Keys(r.automators)
	sort.Strings(names)
	return names
}
