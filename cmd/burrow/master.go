package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cuemby/burrow/pkg/api"
	"github.com/cuemby/burrow/pkg/client"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/process"
	"github.com/cuemby/burrow/pkg/provisioner"
	"github.com/cuemby/burrow/pkg/storage"
	"github.com/spf13/cobra"
)

var masterCmd = &cobra.Command{
	Use:   "master",
	Short: "Run the provisioning master",
	Long: `Run the provisioning master.

The master registers with the central server, heartbeats its per-tenant
worker usage, and serves the tenant API the server pushes specs to. It
exits after a SIGTERM or SIGINT once every worker has been reaped.`,
	RunE: runMaster,
}

func init() {
	config.AddMasterFlags(masterCmd.Flags())
}

func runMaster(cmd *cobra.Command, args []string) error {
	v, err := config.NewViper(cmd.Flags())
	if err != nil {
		return err
	}
	cfg, err := config.LoadMaster(v)
	if err != nil {
		return err
	}

	initLogging("master", cfg.LogLevel, cfg.LogJSON)
	metrics.SetVersion(Version)
	logger := log.WithComponent("master")

	for _, dir := range []string{cfg.DataDir, cfg.WorkDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	binary := cfg.WorkerBinary
	if binary == "" {
		if binary, err = os.Executable(); err != nil {
			return fmt.Errorf("failed to locate worker binary: %w", err)
		}
	}

	server := client.NewClient(client.Config{BaseURL: cfg.ServerURI, UserID: cfg.UserID})

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	go logEvents(sub)

	p, err := provisioner.New(provisioner.Config{
		Server:   server,
		Host:     cfg.Host,
		Port:     cfg.Port,
		Capacity: cfg.Capacity,
		DataDir:  cfg.DataDir,
		WorkDir:  cfg.WorkDir,
		Store:    store,
		Fetcher:  server,
		Launcher: process.NewOSLauncher(process.Config{Binary: binary}),
		WorkerArgs: []string{
			"--" + config.ServerURI, cfg.ServerURI,
			"--" + config.UserID, cfg.UserID,
			"--" + config.LogLevel, cfg.LogLevel,
			"--" + config.LogJSON + "=" + strconv.FormatBool(cfg.LogJSON),
		},
		HeartbeatInterval:    cfg.HeartbeatInterval,
		ResourcePollInterval: cfg.ResourcePollInterval,
		ShutdownTimeout:      cfg.ShutdownTimeout,
		Events:               broker,
	})
	if err != nil {
		return err
	}

	logger.Info().
		Str("provisioner_id", p.ID()).
		Str("server", cfg.ServerURI).
		Int("capacity", cfg.Capacity).
		Str("worker_binary", binary).
		Msg("Starting master")

	stopSignals := p.NotifySignals()
	defer stopSignals()

	apiServer := api.NewServer(p)
	if err := apiServer.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		return err
	}

	collector := metrics.NewCollector(p, 15*time.Second)
	collector.Start()
	defer collector.Stop()

	runErr := p.Run(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Stop(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to stop API server")
	}

	if runErr != nil {
		return fmt.Errorf("master stopped: %w", runErr)
	}
	logger.Info().Msg("Shutdown complete")
	return nil
}

func logEvents(sub events.Subscriber) {
	logger := log.WithComponent("events")
	for event := range sub {
		e := logger.Debug().Str("event_id", event.ID).Str("type", string(event.Type))
		for k, v := range event.Metadata {
			e = e.Str(k, v)
		}
		e.Msg(event.Message)
	}
}
