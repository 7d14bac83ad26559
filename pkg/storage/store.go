package storage

import (
	"github.com/cuemby/burrow/pkg/types"
)

// Store defines the interface for master-local state.
// It holds the activation record: which version of each resource is the
// current one for a tenant.
type Store interface {
	// Activations
	ListActivations(tenantID string) (map[string]types.Version, error)
	SetActivation(tenantID, resourcePath string, version types.Version) error
	DeleteActivation(tenantID, resourcePath string) error
	DeleteTenant(tenantID string) error

	// Utility
	Close() error
}
