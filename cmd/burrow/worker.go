package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/anandvarma/namegen"
	"github.com/cuemby/burrow/pkg/client"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/plugin"
	"github.com/cuemby/burrow/pkg/worker"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a task worker for one tenant",
	Long: `Run a task worker for one tenant.

Workers are normally spawned by the master. A SIGTERM or SIGINT received
while a task is running is honored once the task result has been reported.`,
	RunE: runWorker,
}

func init() {
	config.AddWorkerFlags(workerCmd.Flags())
}

func runWorker(cmd *cobra.Command, args []string) error {
	v, err := config.NewViper(cmd.Flags())
	if err != nil {
		return err
	}
	cfg, err := config.LoadWorker(v)
	if err != nil {
		return err
	}

	initLogging("worker", cfg.LogLevel, cfg.LogJSON)

	name := cfg.Name
	if name == "" {
		// Started by hand rather than by a master
		name = fmt.Sprintf("worker-%s-%s", cfg.Tenant, namegen.New().Get())
	}
	workDir, err := filepath.Abs(cfg.WorkDir)
	if err != nil {
		return fmt.Errorf("failed to resolve work dir: %w", err)
	}

	registry, err := plugin.Load(plugin.Env{
		TenantID: cfg.Tenant,
		WorkDir:  workDir,
		Logger:   log.WithWorkerID(name),
	})
	if err != nil {
		return err
	}

	w, err := worker.New(worker.Config{
		ID:            name,
		TenantID:      cfg.Tenant,
		ProvisionerID: cfg.Provisioner,
		Client: client.NewClient(client.Config{
			BaseURL:  cfg.ServerURI,
			UserID:   cfg.UserID,
			TenantID: cfg.Tenant,
		}),
		Plugins:       registry,
		Once:          cfg.Once,
		PollInterval:  cfg.PollInterval,
		ErrorInterval: cfg.ErrorInterval,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	return w.Run(ctx)
}
