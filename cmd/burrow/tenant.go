package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cuemby/burrow/pkg/client"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Tenant commands talk to a master's API
var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants on a master",
}

var tenantApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create or update a tenant from a YAML file",
	Long: `Create or update a tenant from a YAML file.

Example tenant.yaml:

  id: acme
  workers: 3
  resources:
    resources:
      automatortypes/shell/scripts/setup.sh: 2
    resourcePermissions:
      automatortypes/shell/scripts: "0755"

Examples:
  burrow tenant apply -f tenant.yaml
  burrow tenant apply -f tenant.yaml --master http://10.0.0.4:55056`,
	RunE: runTenantApply,
}

var tenantDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a tenant and stop its workers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := masterClient(cmd)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := c.DeleteTenant(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("%s Tenant deletion requested: %s\n", color.HiGreenString("✓"), args[0])
		return nil
	},
}

var tenantStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the master status and its tenants",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := masterClient(cmd)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		status, err := c.Status(ctx)
		if err != nil {
			return err
		}
		printStatus(status)
		return nil
	},
}

func init() {
	tenantCmd.PersistentFlags().String("master", "http://localhost:55056", "Master API address")
	tenantCmd.PersistentFlags().String("user-id", "admin", "User identity sent with every request")

	tenantApplyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = tenantApplyCmd.MarkFlagRequired("file")

	tenantCmd.AddCommand(tenantApplyCmd)
	tenantCmd.AddCommand(tenantDeleteCmd)
	tenantCmd.AddCommand(tenantStatusCmd)
}

func masterClient(cmd *cobra.Command) *client.Client {
	addr, _ := cmd.Flags().GetString("master")
	userID, _ := cmd.Flags().GetString("user-id")
	return client.NewClient(client.Config{BaseURL: addr, UserID: userID})
}

func runTenantApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	spec, err := types.ParseTenantSpecYAML(data)
	if err != nil {
		return err
	}

	c := masterClient(cmd)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.PutTenant(ctx, spec); err != nil {
		return err
	}
	fmt.Printf("%s Tenant applied: %s (workers=%d, resources=%d)\n", color.HiGreenString("✓"), spec.ID, spec.Workers, len(spec.Resources.Resources))
	return nil
}

func printStatus(status *types.ProvisionerStatus) {
	fmt.Printf("Provisioner: %s\n", status.ID)
	fmt.Printf("  Status: %s\n", statusColor(status.Status))
	fmt.Printf("  Registered: %t\n", status.Registered)
	fmt.Printf("  Capacity: %d free of %d\n", status.CapacityFree, status.CapacityTotal)
	fmt.Println()

	if len(status.Tenants) == 0 {
		fmt.Println("No tenants")
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TENANT\tSTATUS\tWORKERS\tLIVE\tTERMINATING\tRESOURCES")
	for _, t := range status.Tenants {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			t.ID, t.Status, t.Workers, t.LiveWorkers, t.Terminating, formatResources(t.ActiveResources))
	}
	tw.Flush()

	for _, t := range status.Tenants {
		if t.SyncError != "" {
			fmt.Printf("%s %s: %s\n", color.HiYellowString("sync error"), t.ID, t.SyncError)
		}
	}
}

func formatResources(active map[string]types.Version) string {
	if len(active) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(active))
	for path, version := range active {
		parts = append(parts, fmt.Sprintf("%s@%s", path, version))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func statusColor(status string) string {
	switch status {
	case "OK":
		return color.HiGreenString(status)
	case "SHUTTING_DOWN":
		return color.HiYellowString(status)
	}
	return status
}
