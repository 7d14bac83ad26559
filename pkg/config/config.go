package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/samber/lo"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. BURROW_SERVER_URI
const EnvPrefix = "burrow"

const (
	ConfigFile = "config"
	LogLevel   = "log-level"
	LogJSON    = "log-json"
	ServerURI  = "server-uri"
	UserID     = "user-id"
	WorkDir    = "work-dir"

	// master
	Host                 = "host"
	Port                 = "port"
	Capacity             = "capacity"
	DataDir              = "data-dir"
	HeartbeatInterval    = "heartbeat-interval"
	ResourcePollInterval = "resource-poll-interval"
	ShutdownTimeout      = "shutdown-timeout"
	WorkerBinary         = "worker-binary"

	// worker
	Tenant        = "tenant"
	Provisioner   = "provisioner"
	Name          = "name"
	Once          = "once"
	PollInterval  = "poll-interval"
	ErrorInterval = "error-interval"
)

// MasterConfig holds everything the master process needs
type MasterConfig struct {
	ServerURI            string
	UserID               string
	Host                 string
	Port                 int
	Capacity             int
	DataDir              string
	WorkDir              string
	HeartbeatInterval    time.Duration
	ResourcePollInterval time.Duration
	ShutdownTimeout      time.Duration
	WorkerBinary         string
	LogLevel             string
	LogJSON              bool
}

// WorkerConfig holds everything a worker process needs
type WorkerConfig struct {
	ServerURI     string
	UserID        string
	Tenant        string
	Provisioner   string
	Name          string
	WorkDir       string
	Once          bool
	PollInterval  time.Duration
	ErrorInterval time.Duration
	LogLevel      string
	LogJSON       bool
}

func addCommonFlags(flags *flag.FlagSet) {
	flags.String(ConfigFile, "", "path to a YAML config file")
	flags.String(LogLevel, "info", "minimum log level (debug, info, warn, error)")
	flags.Bool(LogJSON, false, "emit logs as JSON")
	flags.String(ServerURI, "http://localhost:55054", "central server base URI")
	flags.String(UserID, "admin", "user identity sent with every request")
}

// AddMasterFlags registers the master flags on a command's flag set
func AddMasterFlags(flags *flag.FlagSet) {
	addCommonFlags(flags)
	flags.String(Host, lo.Must(os.Hostname()), "host the master API is reachable on")
	flags.Int(Port, 55056, "master API port")
	flags.Int(Capacity, 10, "maximum number of workers across all tenants")
	flags.String(DataDir, "/var/lib/burrow/data", "resource content store")
	flags.String(WorkDir, "/var/lib/burrow/work", "per-tenant working directories holding active resource links")
	flags.Duration(HeartbeatInterval, 10*time.Second, "interval between heartbeats to the central server")
	flags.Duration(ResourcePollInterval, time.Second, "interval between resource reconciliation passes")
	flags.Duration(ShutdownTimeout, 60*time.Second, "how long to wait for workers to exit before killing them")
	flags.String(WorkerBinary, "", "worker executable (defaults to this binary)")
}

// AddWorkerFlags registers the worker flags on a command's flag set
func AddWorkerFlags(flags *flag.FlagSet) {
	addCommonFlags(flags)
	flags.String(Tenant, "", "tenant this worker belongs to")
	flags.String(Provisioner, "", "id of the master that spawned this worker")
	flags.String(Name, "", "worker name (generated when empty)")
	flags.String(WorkDir, ".", "tenant working directory")
	flags.Bool(Once, false, "take at most one task, then exit")
	flags.Duration(PollInterval, time.Second, "sleep after an empty take")
	flags.Duration(ErrorInterval, 10*time.Second, "sleep after a failed take")
}

// NewViper binds a flag set into a fresh viper instance with env overrides.
// When the config flag is set, the YAML file is read as the lowest-priority layer.
func NewViper(flags *flag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if path := v.GetString(ConfigFile); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	return v, nil
}

// LoadMaster reads and validates the master configuration
func LoadMaster(v *viper.Viper) (*MasterConfig, error) {
	cfg := &MasterConfig{
		ServerURI:            v.GetString(ServerURI),
		UserID:               v.GetString(UserID),
		Host:                 v.GetString(Host),
		Port:                 v.GetInt(Port),
		Capacity:             v.GetInt(Capacity),
		DataDir:              v.GetString(DataDir),
		WorkDir:              v.GetString(WorkDir),
		HeartbeatInterval:    v.GetDuration(HeartbeatInterval),
		ResourcePollInterval: v.GetDuration(ResourcePollInterval),
		ShutdownTimeout:      v.GetDuration(ShutdownTimeout),
		WorkerBinary:         v.GetString(WorkerBinary),
		LogLevel:             v.GetString(LogLevel),
		LogJSON:              v.GetBool(LogJSON),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWorker reads and validates the worker configuration
func LoadWorker(v *viper.Viper) (*WorkerConfig, error) {
	cfg := &WorkerConfig{
		ServerURI:     v.GetString(ServerURI),
		UserID:        v.GetString(UserID),
		Tenant:        v.GetString(Tenant),
		Provisioner:   v.GetString(Provisioner),
		Name:          v.GetString(Name),
		WorkDir:       v.GetString(WorkDir),
		Once:          v.GetBool(Once),
		PollInterval:  v.GetDuration(PollInterval),
		ErrorInterval: v.GetDuration(ErrorInterval),
		LogLevel:      v.GetString(LogLevel),
		LogJSON:       v.GetBool(LogJSON),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the master configuration
func (c *MasterConfig) Validate() error {
	if c.ServerURI == "" {
		return fmt.Errorf("%s is required", ServerURI)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535, got %d", Port, c.Port)
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("%s must be positive, got %d", Capacity, c.Capacity)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.DataDir == "" || c.WorkDir == "" {
		return fmt.Errorf("%s and %s are required", DataDir, WorkDir)
	}
	for key, d := range map[string]time.Duration{
		HeartbeatInterval:    c.HeartbeatInterval,
		ResourcePollInterval: c.ResourcePollInterval,
		ShutdownTimeout:      c.ShutdownTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}
	return nil
}

// Validate checks the worker configuration
func (c *WorkerConfig) Validate() error {
	if c.ServerURI == "" {
		return fmt.Errorf("%s is required", ServerURI)
	}
	if c.Tenant == "" {
		return fmt.Errorf("%s is required", Tenant)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.PollInterval <= 0 || c.ErrorInterval <= 0 {
		return fmt.Errorf("%s and %s must be positive", PollInterval, ErrorInterval)
	}
	return nil
}
