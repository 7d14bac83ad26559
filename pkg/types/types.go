package types

import (
	"encoding/json"
	"fmt"
	"maps"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// ValidName reports whether s can be used as a single path segment on disk.
// Tenant IDs, resource path segments and versions all become directory names.
func ValidName(s string) bool {
	return s != "." && s != ".." && namePattern.MatchString(s)
}

// TenantSpec is the desired state of one tenant as pushed by the central server
type TenantSpec struct {
	ID        string       `json:"id" yaml:"id"`
	Workers   int          `json:"workers" yaml:"workers"`
	Resources ResourceSpec `json:"resources" yaml:"resources"`
}

// Equal compares the desired state only. The tenant ID is identity, not state.
func (s TenantSpec) Equal(other TenantSpec) bool {
	return s.Workers == other.Workers && s.Resources.Equal(other.Resources)
}

// Validate checks the spec before it is handed to a tenant manager
func (s TenantSpec) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("tenant id is required")
	}
	if !ValidName(s.ID) {
		return fmt.Errorf("tenant id %q: only letters, digits, '.', '_' and '-' are allowed", s.ID)
	}
	if s.Workers < 0 {
		return fmt.Errorf("tenant %s: workers must be >= 0, got %d", s.ID, s.Workers)
	}
	return s.Resources.Validate()
}

// ResourceFormat tells the resource manager how a fetched resource is laid out on disk
type ResourceFormat string

const (
	ResourceFormatFile    ResourceFormat = "file"
	ResourceFormatArchive ResourceFormat = "archive"
)

// ResourceSpec is the set of resource versions a tenant's workers must see
type ResourceSpec struct {
	// Resources maps pluginType/pluginName/resourceType/resourceName to a version
	Resources map[string]Version `json:"resources,omitempty" yaml:"resources,omitempty"`
	// Formats maps a resource type prefix (pluginType/pluginName/resourceType) to a format
	Formats map[string]ResourceFormat `json:"resourceFormats,omitempty" yaml:"resourceFormats,omitempty"`
	// Permissions maps a resource type prefix to an octal mode string such as "0755"
	Permissions map[string]string `json:"resourcePermissions,omitempty" yaml:"resourcePermissions,omitempty"`
}

// Equal is structural equality on all three maps. Nil and empty maps are equal.
func (r ResourceSpec) Equal(other ResourceSpec) bool {
	return maps.Equal(r.Resources, other.Resources) &&
		maps.Equal(r.Formats, other.Formats) &&
		maps.Equal(r.Permissions, other.Permissions)
}

// IsEmpty reports whether the spec names no resources
func (r ResourceSpec) IsEmpty() bool {
	return len(r.Resources) == 0
}

// Validate checks resource paths, formats and permission strings
func (r ResourceSpec) Validate() error {
	for path, version := range r.Resources {
		segments := strings.Split(path, "/")
		if len(segments) != 4 {
			return fmt.Errorf("resource %q: expected pluginType/pluginName/resourceType/resourceName", path)
		}
		for _, seg := range segments {
			if !ValidName(seg) {
				return fmt.Errorf("resource %q: invalid path segment %q", path, seg)
			}
		}
		if version == "" {
			return fmt.Errorf("resource %q: version is required", path)
		}
		if !ValidName(string(version)) {
			return fmt.Errorf("resource %q: invalid version %q", path, version)
		}
	}
	for prefix, format := range r.Formats {
		if format != ResourceFormatFile && format != ResourceFormatArchive {
			return fmt.Errorf("resource type %q: unknown format %q", prefix, format)
		}
	}
	for prefix, perm := range r.Permissions {
		if _, err := strconv.ParseUint(perm, 8, 32); err != nil {
			return fmt.Errorf("resource type %q: invalid permissions %q", prefix, perm)
		}
	}
	return nil
}

// TypeOf returns the resource type prefix of a resource path
func TypeOf(resourcePath string) string {
	if i := strings.LastIndex(resourcePath, "/"); i >= 0 {
		return resourcePath[:i]
	}
	return ""
}

// NameOf returns the last segment of a resource path
func NameOf(resourcePath string) string {
	if i := strings.LastIndex(resourcePath, "/"); i >= 0 {
		return resourcePath[i+1:]
	}
	return resourcePath
}

// FormatOf returns the configured format for a resource, defaulting to file
func (r ResourceSpec) FormatOf(resourcePath string) ResourceFormat {
	if f, ok := r.Formats[TypeOf(resourcePath)]; ok {
		return f
	}
	return ResourceFormatFile
}

// PermissionOf returns the configured mode for a resource and whether one is set
func (r ResourceSpec) PermissionOf(resourcePath string) (uint32, bool) {
	perm, ok := r.Permissions[TypeOf(resourcePath)]
	if !ok {
		return 0, false
	}
	mode, err := strconv.ParseUint(perm, 8, 32)
	if err != nil {
		return 0, false
	}
	return uint32(mode), true
}

// Version identifies one version of a resource. The server sends either a
// number or a string; both decode to the same value.
type Version string

// UnmarshalJSON accepts 3 and "3" alike
func (v *Version) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Version(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid resource version %s", string(data))
	}
	*v = Version(n.String())
	return nil
}

// UnmarshalYAML accepts scalar numbers and strings
func (v *Version) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: resource version must be a scalar", node.Line)
	}
	*v = Version(node.Value)
	return nil
}
