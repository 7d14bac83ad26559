package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func masterFlags(t *testing.T, args ...string) *flag.FlagSet {
	t.Helper()
	flags := flag.NewFlagSet("master", flag.ContinueOnError)
	AddMasterFlags(flags)
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestLoadMasterDefaults(t *testing.T) {
	v, err := NewViper(masterFlags(t))
	require.NoError(t, err)

	cfg, err := LoadMaster(v)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.HeartbeatInterval)
	assert.Equal(t, time.Second, cfg.ResourcePollInterval)
	assert.Equal(t, 60*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 10, cfg.Capacity)
	assert.Equal(t, "admin", cfg.UserID)
}

func TestLoadMasterOverrides(t *testing.T) {
	t.Setenv("BURROW_CAPACITY", "3")

	dir := t.TempDir()
	file := filepath.Join(dir, "burrow.yaml")
	require.NoError(t, os.WriteFile(file, []byte("server-uri: http://central:8080\nport: 9000\ncapacity: 7\n"), 0o644))

	v, err := NewViper(masterFlags(t, "--config", file, "--port", "9100"))
	require.NoError(t, err)

	cfg, err := LoadMaster(v)
	require.NoError(t, err)
	assert.Equal(t, "http://central:8080", cfg.ServerURI, "file beats default")
	assert.Equal(t, 9100, cfg.Port, "flag beats file")
	assert.Equal(t, 3, cfg.Capacity, "env beats file")
}

func TestMasterValidate(t *testing.T) {
	valid := MasterConfig{
		ServerURI:            "http://central",
		Port:                 55056,
		Capacity:             1,
		DataDir:              "/d",
		WorkDir:              "/w",
		HeartbeatInterval:    time.Second,
		ResourcePollInterval: time.Second,
		ShutdownTimeout:      time.Second,
	}

	tests := []struct {
		name   string
		mutate func(c *MasterConfig)
	}{
		{"no server", func(c *MasterConfig) { c.ServerURI = "" }},
		{"bad port", func(c *MasterConfig) { c.Port = 0 }},
		{"no capacity", func(c *MasterConfig) { c.Capacity = 0 }},
		{"no data dir", func(c *MasterConfig) { c.DataDir = "" }},
		{"zero heartbeat", func(c *MasterConfig) { c.HeartbeatInterval = 0 }},
		{"negative shutdown", func(c *MasterConfig) { c.ShutdownTimeout = -time.Second }},
		{"bad log level", func(c *MasterConfig) { c.LogLevel = "trace" }},
	}

	require.NoError(t, valid.Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoadWorker(t *testing.T) {
	flags := flag.NewFlagSet("worker", flag.ContinueOnError)
	AddWorkerFlags(flags)

	v, err := NewViper(flags)
	require.NoError(t, err)
	_, err = LoadWorker(v)
	assert.Error(t, err, "tenant is required")

	require.NoError(t, flags.Parse([]string{"--tenant", "t1", "--provisioner", "master-h-1", "--once"}))
	cfg, err := LoadWorker(v)
	require.NoError(t, err)
	assert.Equal(t, "t1", cfg.Tenant)
	assert.Equal(t, "master-h-1", cfg.Provisioner)
	assert.True(t, cfg.Once)
	assert.Equal(t, 10*time.Second, cfg.ErrorInterval)
}
