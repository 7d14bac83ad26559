package types

import (
	"encoding/json"
)

// Task is one unit of provisioning work handed out by the central server.
// Workers never persist tasks; a task lives for one take, dispatch, finish cycle.
type Task struct {
	TaskID    string     `json:"taskId"`
	TaskName  string     `json:"taskName"`
	JobID     string     `json:"jobId,omitempty"`
	ClusterID string     `json:"clusterId,omitempty"`
	Config    TaskConfig `json:"config"`
}

// TaskConfig carries the fields the dispatcher routes on, plus the raw
// document so plugins can read anything else the server sent.
type TaskConfig struct {
	Provider   *ProviderConfig `json:"provider,omitempty"`
	Service    *ServiceConfig  `json:"service,omitempty"`
	Automators []string        `json:"automators,omitempty"`
	Hostname   string          `json:"hostname,omitempty"`

	Raw json.RawMessage `json:"-"`
}

type taskConfigAlias TaskConfig

// UnmarshalJSON decodes the known fields and keeps a copy of the whole object
func (c *TaskConfig) UnmarshalJSON(data []byte) error {
	var alias taskConfigAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*c = TaskConfig(alias)
	c.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON writes the raw document back when there is one
func (c TaskConfig) MarshalJSON() ([]byte, error) {
	if len(c.Raw) > 0 {
		return c.Raw, nil
	}
	return json.Marshal(taskConfigAlias(c))
}

// ProviderConfig selects the provider plugin
type ProviderConfig struct {
	ProviderType string         `json:"providertype"`
	Provisioner  map[string]any `json:"provisioner,omitempty"`
}

// ServiceConfig selects the automator plugin through its action
type ServiceConfig struct {
	Name   string       `json:"name,omitempty"`
	Action ActionConfig `json:"action"`
}

// ActionConfig describes what an automator should run
type ActionConfig struct {
	Type   string `json:"type"`
	Script string `json:"script,omitempty"`
	Data   string `json:"data,omitempty"`
}

// TaskResult is the free-form result map a plugin returns and the worker
// reports back. Well-known keys are defined below.
type TaskResult map[string]any

const (
	ResultStatus        = "status"
	ResultStdout        = "stdout"
	ResultStderr        = "stderr"
	ResultWorkerID      = "workerId"
	ResultTaskID        = "taskId"
	ResultProvisionerID = "provisionerId"
	ResultTenantID      = "tenantId"
)

// Status returns the numeric status of a result, or -1 when missing
func (r TaskResult) Status() int {
	switch v := r[ResultStatus].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return -1
		}
		return int(n)
	}
	return -1
}

// FailureResult builds the result reported when a handler fails
func FailureResult(stdout, stderr string) TaskResult {
	return TaskResult{
		ResultStatus: 1,
		ResultStdout: stdout,
		ResultStderr: stderr,
	}
}

// TakeRequest is sent by a worker asking for its next task
type TakeRequest struct {
	ProvisionerID string `json:"provisionerId"`
	WorkerID      string `json:"workerId"`
	TenantID      string `json:"tenantId"`
}

// RegisterRequest announces a provisioner to the central server
type RegisterRequest struct {
	ID            string `json:"id"`
	CapacityTotal int    `json:"capacityTotal"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
}

// HeartbeatRequest reports live worker counts per tenant
type HeartbeatRequest struct {
	Usage map[string]int `json:"usage"`
}
