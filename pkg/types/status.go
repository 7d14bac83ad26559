package types

// TenantStatus is one tenant's entry in the master status document
type TenantStatus struct {
	ID              string             `json:"id"`
	Status          string             `json:"status"`
	Workers         int                `json:"workers"`
	LiveWorkers     int                `json:"liveWorkers"`
	Terminating     int                `json:"terminating"`
	PendingSyncs    int                `json:"pendingSyncs"`
	SyncError       string             `json:"syncError,omitempty"`
	ActiveResources map[string]Version `json:"activeResources,omitempty"`
}

// ProvisionerStatus is served by the master on GET /status
type ProvisionerStatus struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	Registered    bool           `json:"registered"`
	CapacityTotal int            `json:"capacityTotal"`
	CapacityFree  int            `json:"capacityFree"`
	Tenants       []TenantStatus `json:"tenants"`
}
