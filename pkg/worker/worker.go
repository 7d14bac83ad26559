package worker

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime/debug"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/plugin"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/rs/zerolog"
)

var (
	// ErrUnknownTask is returned for a task name no plugin method handles
	ErrUnknownTask = errors.New("unknown task")

	// ErrNoPlugins means the worker cannot resolve a provider or an automator
	ErrNoPlugins = errors.New("at least one provider and one automator plugin are required")
)

// Task names
const (
	TaskCreate     = "create"
	TaskConfirm    = "confirm"
	TaskDelete     = "delete"
	TaskBootstrap  = "bootstrap"
	TaskInstall    = "install"
	TaskConfigure  = "configure"
	TaskInitialize = "initialize"
	TaskStart      = "start"
	TaskStop       = "stop"
	TaskRemove     = "remove"
)

// Client is the part of the central server API a worker talks to
type Client interface {
	TakeTask(ctx context.Context, req types.TakeRequest) (*types.Task, error)
	FinishTask(ctx context.Context, result types.TaskResult) error
}

// Config holds worker configuration
type Config struct {
	ID            string
	TenantID      string
	ProvisionerID string

	Client  Client
	Plugins *plugin.Registry

	// Once makes Run return after the first take, whatever it returned
	Once          bool
	PollInterval  time.Duration
	ErrorInterval time.Duration
}

// Worker takes tasks for one tenant and runs them one at a time
type Worker struct {
	cfg    Config
	logger zerolog.Logger
}

// New checks the plugin registry and returns a worker
func New(cfg Config) (*Worker, error) {
	if cfg.Plugins == nil || len(cfg.Plugins.ProviderNames()) == 0 || len(cfg.Plugins.AutomatorNames()) == 0 {
		return nil, ErrNoPlugins
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.ErrorInterval <= 0 {
		cfg.ErrorInterval = 10 * time.Second
	}

	return &Worker{
		cfg: cfg,
		logger: log.WithWorkerID(cfg.ID).With().
			Str("tenant_id", cfg.TenantID).
			Str("provisioner_id", cfg.ProvisionerID).
			Logger(),
	}, nil
}

// Run polls for tasks until ctx is cancelled. Cancellation is only observed
// between tasks: a take request in flight is allowed to complete, and a task
// that has been taken is always dispatched and its result reported before Run
// returns. The server hands a task out once, so abandoning the take would lose it.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().
		Strs("providers", w.cfg.Plugins.ProviderNames()).
		Strs("automators", w.cfg.Plugins.AutomatorNames()).
		Msg("Worker started")
	defer func() { w.logger.Info().Msg("Worker stopped") }()

	req := types.TakeRequest{
		ProvisionerID: w.cfg.ProvisionerID,
		WorkerID:      w.cfg.ID,
		TenantID:      w.cfg.TenantID,
	}

	for ctx.Err() == nil {
		// bounded by the client timeout
		task, err := w.cfg.Client.TakeTask(context.WithoutCancel(ctx), req)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			if w.cfg.Once {
				return err
			}
			w.logger.Warn().Err(err).Dur("retry_in", w.cfg.ErrorInterval).Msg("Failed to take task")
			sleep(ctx, w.cfg.ErrorInterval)

		case task == nil:
			if w.cfg.Once {
				return nil
			}
			sleep(ctx, w.cfg.PollInterval)

		default:
			w.Process(context.WithoutCancel(ctx), task)
			if w.cfg.Once {
				return nil
			}
		}
	}
	return nil
}

// Process dispatches one task and reports its result. Finish failures are
// logged only.
func (w *Worker) Process(ctx context.Context, task *types.Task) types.TaskResult {
	logger := w.logger.With().Str("task_id", task.TaskID).Str("task", task.TaskName).Logger()
	logger.Info().Msg("Processing task")

	timer := metrics.NewTimer()
	result, err := w.safeDispatch(ctx, task)
	timer.ObserveDurationVec(metrics.TaskDuration, task.TaskName)

	if err != nil {
		logger.Error().Err(err).Msg("Task failed")
		result = types.FailureResult("", err.Error())
	}
	if result == nil {
		result = types.TaskResult{}
	}
	w.stamp(result, task)

	status := "success"
	if err != nil || result.Status() != 0 {
		status = "failure"
	}
	metrics.TasksProcessed.WithLabelValues(task.TaskName, status).Inc()

	if err := w.cfg.Client.FinishTask(ctx, result); err != nil {
		logger.Error().Err(err).Msg("Failed to report task result")
	} else {
		logger.Info().Int("status", result.Status()).Dur("duration", timer.Duration()).Msg("Task finished")
	}
	return result
}

func (w *Worker) stamp(result types.TaskResult, task *types.Task) {
	result[types.ResultWorkerID] = w.cfg.ID
	result[types.ResultTaskID] = task.TaskID
	result[types.ResultProvisionerID] = w.cfg.ProvisionerID
	result[types.ResultTenantID] = w.cfg.TenantID
}

// safeDispatch turns a plugin panic into a task error carrying the stack
func (w *Worker) safeDispatch(ctx context.Context, task *types.Task) (result types.TaskResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return w.Dispatch(ctx, task)
}

// Dispatch routes a task to the plugin method named by its task name
func (w *Worker) Dispatch(ctx context.Context, task *types.Task) (types.TaskResult, error) {
	switch task.TaskName {
	case TaskCreate, TaskConfirm, TaskDelete:
		if task.Config.Provider == nil {
			return nil, fmt.Errorf("task %s: config.provider is required", task.TaskID)
		}
		p, err := w.cfg.Plugins.Provider(task.Config.Provider.ProviderType)
		if err != nil {
			return nil, err
		}
		switch task.TaskName {
		case TaskCreate:
			return p.Create(ctx, task)
		case TaskConfirm:
			return p.Confirm(ctx, task)
		default:
			return p.Delete(ctx, task)
		}

	case TaskBootstrap:
		return w.bootstrap(ctx, task)

	case TaskInstall, TaskConfigure, TaskInitialize, TaskStart, TaskStop, TaskRemove:
		if task.Config.Service == nil {
			return nil, fmt.Errorf("task %s: config.service is required", task.TaskID)
		}
		a, err := w.cfg.Plugins.Automator(task.Config.Service.Action.Type)
		if err != nil {
			return nil, err
		}
		switch task.TaskName {
		case TaskInstall:
			return a.Install(ctx, task)
		case TaskConfigure:
			return a.Configure(ctx, task)
		case TaskInitialize:
			return a.Initialize(ctx, task)
		case TaskStart:
			return a.Start(ctx, task)
		case TaskStop:
			return a.Stop(ctx, task)
		default:
			return a.Remove(ctx, task)
		}
	}

	return nil, fmt.Errorf("task %s: %q: %w", task.TaskID, task.TaskName, ErrUnknownTask)
}

// bootstrap runs the listed automators in order, or all of them, merging
// results. Later automators overwrite keys set by earlier ones.
func (w *Worker) bootstrap(ctx context.Context, task *types.Task) (types.TaskResult, error) {
	names := task.Config.Automators
	if len(names) == 0 {
		names = w.cfg.Plugins.AutomatorNames()
	}

	merged := types.TaskResult{}
	for _, name := range names {
		a, err := w.cfg.Plugins.Automator(name)
		if err != nil {
			return nil, err
		}
		result, err := a.Bootstrap(ctx, task)
		if err != nil {
			return nil, fmt.Errorf("automator %s: %w", name, err)
		}
		maps.Copy(merged, result)
	}
	return merged, nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
