package main

import (
	"fmt"
	"os"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/spf13/cobra"

	// Built-in plugins register themselves with the plugin registry
	_ "github.com/cuemby/burrow/pkg/plugin/fixed"
	_ "github.com/cuemby/burrow/pkg/plugin/shell"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "burrow",
	Short: "Burrow - provisioning master and worker",
	Long: `Burrow runs provisioning work for the tenants of a central server.

A master registers with the server, keeps one pool of worker processes per
tenant sized to the tenant spec, and syncs the resources those workers need.
Each worker takes tasks from the server and runs them through provider and
automator plugins.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Burrow version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.AddCommand(masterCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(tenantCmd)
}

func initLogging(role, level string, jsonOutput bool) {
	log.Init(log.Config{
		Level:      log.Level(level),
		JSONOutput: jsonOutput,
		Role:       role,
	})
}
