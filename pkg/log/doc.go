/*
Package log provides structured logging for burrow using zerolog.

Both the master and the worker processes call Init once at startup. Components
take a child logger tagged with their name, and tenant-scoped code adds the
tenant ID so the output of a master running many tenants can be filtered:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("provisioner")
	logger.Info().Str("tenant_id", "t1").Int("workers", 3).Msg("Tenant updated")

Workers spawned by the master inherit its level and output format through
command line flags, so one log pipeline can parse both.

The console writer is the default for interactive use; JSON output is meant
for log shippers.
*/
package log
