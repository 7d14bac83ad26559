// Package shell is an automator that runs the action script of a task with
// /bin/sh inside the tenant work dir.
//
// The script is invoked as
//
//	/bin/sh <script> <taskName> [data]
//
// Relative script paths resolve against the work dir, which is where the
// tenant's active resources are linked. The task id, name, tenant and host
// are exported as BURROW_TASK_ID, BURROW_TASK_NAME, BURROW_TENANT_ID and
// BURROW_HOSTNAME. A non-zero exit code is a result, not an error.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/cuemby/burrow/pkg/plugin"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

// Name is the action type tasks use to select this automator
const Name = "shell"

// Interpreter runs every script
const Interpreter = "/bin/sh"

func init() {
	plugin.RegisterAutomator(Name, New)
}

// Automator runs scripts
type Automator struct {
	tenantID string
	workDir  string
	logger   zerolog.Logger
}

// New builds the automator for one worker
func New(env plugin.Env) (plugin.Automator, error) {
	return &Automator{
		tenantID: env.TenantID,
		workDir:  env.WorkDir,
		logger:   env.Logger.With().Str("plugin", Name).Logger(),
	}, nil
}

// Bootstrap runs the action script when the task has one. Bootstrap fans out
// to every automator, so a task without a shell action succeeds untouched.
func (a *Automator) Bootstrap(ctx context.Context, task *types.Task) (types.TaskResult, error) {
	if task.Config.Service == nil || task.Config.Service.Action.Script == "" {
		return types.TaskResult{types.ResultStatus: 0}, nil
	}
	return a.run(ctx, task)
}

func (a *Automator) Install(ctx context.Context, task *types.Task) (types.TaskResult, error) {
	return a.run(ctx, task)
}

func (a *Automator) Configure(ctx context.Context, task *types.Task) (types.TaskResult, error) {
	return a.run(ctx, task)
}

func (a *Automator) Initialize(ctx context.Context, task *types.Task) (types.TaskResult, error) {
	return a.run(ctx, task)
}

func (a *Automator) Start(ctx context.Context, task *types.Task) (types.TaskResult, error) {
	return a.run(ctx, task)
}

func (a *Automator) Stop(ctx context.Context, task *types.Task) (types.TaskResult, error) {
	return a.run(ctx, task)
}

func (a *Automator) Remove(ctx context.Context, task *types.Task) (types.TaskResult, error) {
	return a.run(ctx, task)
}

func (a *Automator) run(ctx context.Context, task *types.Task) (types.TaskResult, error) {
	if task.Config.Service == nil {
		return nil, fmt.Errorf("task %s has no service config", task.TaskID)
	}
	action := task.Config.Service.Action
	if action.Script == "" {
		return nil, fmt.Errorf("task %s: action.script is required", task.TaskID)
	}

	script := action.Script
	if !filepath.IsAbs(script) {
		script = filepath.Join(a.workDir, script)
	}

	args := []string{script, task.TaskName}
	if action.Data != "" {
		args = append(args, action.Data)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, Interpreter, args...)
	cmd.Dir = a.workDir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(),
		"BURROW_TASK_ID="+task.TaskID,
		"BURROW_TASK_NAME="+task.TaskName,
		"BURROW_TENANT_ID="+a.tenantID,
		"BURROW_HOSTNAME="+task.Config.Hostname,
	)

	logger := a.logger.With().Str("task_id", task.TaskID).Str("script", script).Logger()
	logger.Debug().Str("task", task.TaskName).Msg("Running script")

	status := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to run %s: %w", script, err)
		}
		status = exitErr.ExitCode()
		logger.Warn().Int("status", status).Msg("Script exited with non-zero status")
	}

	return types.TaskResult{
		types.ResultStatus: status,
		types.ResultStdout: stdout.String(),
		types.ResultStderr: stderr.String(),
	}, nil
}
