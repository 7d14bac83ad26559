package types

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseTenantSpecYAML reads a tenant definition written for `burrow tenant apply`
func ParseTenantSpecYAML(data []byte) (TenantSpec, error) {
	var spec TenantSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return TenantSpec{}, fmt.Errorf("failed to parse tenant spec: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return TenantSpec{}, err
	}
	return spec, nil
}
