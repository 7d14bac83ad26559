/*
Package plugin defines the handlers a worker dispatches tasks to.

Providers manage machines (create, confirm, delete). Automators manage the
software on them (bootstrap, install, configure, initialize, start, stop,
remove). Each handler takes a task and returns a result map whose "status"
key is the exit code reported to the central server.

Plugins register a factory from an init function:

	func init() {
		plugin.RegisterAutomator(Name, New)
	}

	func New(env plugin.Env) (plugin.Automator, error) { ... }

A worker blank-imports the plugins it ships with and calls Load to build a
Registry bound to its tenant and work directory. Lookups for a name that was
never registered fail with ErrUnknownPlugin.
*/
package plugin
