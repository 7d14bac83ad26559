package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopProvider struct{ env Env }

func (nopProvider) Create(context.Context, *types.Task) (types.TaskResult, error) {
	return types.TaskResult{"status": 0}, nil
}
func (nopProvider) Confirm(context.Context, *types.Task) (types.TaskResult, error) {
	return types.TaskResult{"status": 0}, nil
}
func (nopProvider) Delete(context.Context, *types.Task) (types.TaskResult, error) {
	return types.TaskResult{"status": 0}, nil
}

func TestRegisterTwicePanics(t *testing.T) {
	factory := func(env Env) (Provider, error) { return nopProvider{env: env}, nil }
	RegisterProvider("plugin-test-twice", factory)
	assert.Panics(t, func() { RegisterProvider("plugin-test-twice", factory) })
}

func TestLoadAndLookup(t *testing.T) {
	RegisterProvider("plugin-test-nop", func(env Env) (Provider, error) {
		return nopProvider{env: env}, nil
	})

	r, err := Load(Env{TenantID: "t1", WorkDir: "/tmp/t1"})
	require.NoError(t, err)

	p, err := r.Provider("plugin-test-nop")
	require.NoError(t, err)
	assert.Equal(t, "t1", p.(nopProvider).env.TenantID)
	assert.Contains(t, r.ProviderNames(), "plugin-test-nop")

	_, err = r.Provider("openstack")
	assert.True(t, errors.Is(err, ErrUnknownPlugin))
	_, err = r.Automator("chef-solo")
	assert.True(t, errors.Is(err, ErrUnknownPlugin))
}

func TestLoadFactoryError(t *testing.T) {
	RegisterAutomator("plugin-test-broken", func(Env) (Automator, error) {
		return nil, errors.New("missing knife binary")
	})
	t.Cleanup(func() {
		factoriesMu.Lock()
		delete(automatorFactories, "plugin-test-broken")
		factoriesMu.Unlock()
	})

	_, err := Load(Env{})
	assert.ErrorContains(t, err, "plugin-test-broken")
}

func TestNamesSorted(t *testing.T) {
	r := NewRegistry()
	r.AddProvider("b", nopProvider{})
	r.AddProvider("a", nopProvider{})
	assert.Equal(t, []string{"a", "b"}, r.ProviderNames())
	assert.Empty(t, r.AutomatorNames())
}
