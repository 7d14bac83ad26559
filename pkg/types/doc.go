/*
Package types defines the data model shared by the burrow master, its workers
and the central server client.

# Tenants

A TenantSpec is the desired state of one tenant: how many worker processes it
should have and which resource versions those workers must see. Equality is
structural on (Workers, Resources); the ID is identity and is only used for
lookup.

	spec := types.TenantSpec{
		ID:      "t1",
		Workers: 5,
		Resources: types.ResourceSpec{
			Resources: map[string]types.Version{
				"automatortypes/chef/cookbooks/base": "4",
			},
			Formats: map[string]types.ResourceFormat{
				"automatortypes/chef/cookbooks": types.ResourceFormatArchive,
			},
		},
	}

# Resources

Resource paths have four segments: pluginType/pluginName/resourceType/resourceName.
Formats and permissions are keyed by the first three segments (the resource
type prefix). A resource without a configured format is a single file.

# Tasks

Task is the JSON document returned by the central server's take endpoint.
Dispatch only looks at TaskName, Config.Provider.ProviderType,
Config.Service.Action.Type and Config.Automators; the raw config document is
kept so plugins can read any other field. TaskResult is the free-form map a
plugin returns, with well-known keys for status, stdout and stderr.
*/
package types
