/*
Package resource keeps a tenant's versioned on-disk resources in line with
its ResourceSpec.

A resource path has four segments, pluginType/pluginName/resourceType/
resourceName, for example automatortypes/shell/scripts/setup.sh. Each version
is fetched once into the content store and kept there; activation only moves
a link.

# Layout

	DataDir/
	  automatortypes/shell/scripts/setup.sh/
	    1/setup.sh                       fetched content, version 1
	    2/setup.sh                       fetched content, version 2
	  automatortypes/chef/cookbooks/base/
	    3/base/...                       extracted archive
	WorkDir/
	  automatortypes/shell/scripts/setup.sh  → DataDir/.../2/setup.sh
	  automatortypes/chef/cookbooks/base     → DataDir/.../3/base

The active version of every resource is also recorded in the Store, so a
restarted master knows what its workers last saw.

# Sync

	┌──────────────────────────────────────────────┐
	│ 1. Deactivate every active resource          │
	│ 2. Fetch each desired version not on disk    │
	│ 3. Activate each desired version             │
	└──────────────────────────────────────────────┘

Sync must only run while no worker of the tenant is alive; pkg/tenant
enforces that. A failed fetch skips that resource and Sync returns
ErrPartialSync with every failure joined. Other resources are still
activated. Cancellation and store failures are returned as they are.

# Formats

A resource type prefix may be configured as "file" (the default) or
"archive". Files are written to a temp file and renamed into place, with the
configured permission applied exactly. Archives are gzip-compressed tar
streams extracted into a staging directory and renamed once complete.
Entries that leave the archive root are rejected, whether through "..",
an absolute path, a symlink target, or a path that runs through a symlink
extracted earlier.
*/
package resource
