// Package fixed is a provider for machines that already exist. Create and
// confirm hand back the address configured in the task; delete is a no-op.
package fixed

import (
	"context"
	"fmt"

	"github.com/cuemby/burrow/pkg/plugin"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// Name is the providertype tasks use to select this provider
const Name = "fixed"

func init() {
	plugin.RegisterProvider(Name, New)
}

// Provider returns pre-provisioned hosts
type Provider struct {
	logger zerolog.Logger
}

// New builds the provider
func New(env plugin.Env) (plugin.Provider, error) {
	return &Provider{logger: env.Logger.With().Str("plugin", Name).Logger()}, nil
}

// Create reports the configured host as created
func (p *Provider) Create(_ context.Context, task *types.Task) (types.TaskResult, error) {
	return p.describe(task)
}

// Confirm reports the configured host as reachable
func (p *Provider) Confirm(_ context.Context, task *types.Task) (types.TaskResult, error) {
	return p.describe(task)
}

// Delete leaves the host alone
func (p *Provider) Delete(_ context.Context, task *types.Task) (types.TaskResult, error) {
	p.logger.Debug().Str("task_id", task.TaskID).Msg("Nothing to delete for fixed host")
	return types.TaskResult{types.ResultStatus: 0}, nil
}

func (p *Provider) describe(task *types.Task) (types.TaskResult, error) {
	if task.Config.Provider == nil {
		return nil, fmt.Errorf("task %s has no provider config", task.TaskID)
	}
	settings := task.Config.Provider.Provisioner

	ip, _ := settings["ipaddress"].(string)
	if ip == "" {
		return nil, fmt.Errorf("task %s: provisioner.ipaddress is required", task.TaskID)
	}
	hostname, _ := settings["hostname"].(string)
	if hostname == "" {
		hostname = task.Config.Hostname
	}
	if hostname == "" {
		hostname = ip
	}

	p.logger.Info().
		Str("task_id", task.TaskID).
		Str("hostname", hostname).
		Str("ipaddress", ip).
		Msg("Using fixed host")

	return types.TaskResult{
		types.ResultStatus: 0,
		"ipaddress":        ip,
		"hostname":         hostname,
	}, nil
}
