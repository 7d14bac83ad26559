package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cuemby/burrow/pkg/types"
)

const (
	// HeaderUserID carries the caller's user identity on every request
	HeaderUserID = "Burrow-UserID"
	// HeaderTenantID carries the caller's tenant identity on every request
	HeaderTenantID = "Burrow-TenantID"

	// SuperadminTenant is the tenant identity the master uses for its own calls
	SuperadminTenant = "superadmin"
)

// ErrNotFound is returned when the server answers 404
var ErrNotFound = errors.New("not found")

// StatusError is returned for any other unexpected HTTP status
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.Code, e.Body)
	}
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.Code)
}

// Config holds client configuration
type Config struct {
	BaseURL  string
	UserID   string
	TenantID string
	Timeout  time.Duration
}

// Client talks JSON over HTTP to the central server, or to a master's tenant API
type Client struct {
	baseURL  string
	userID   string
	tenantID string
	http     *http.Client
}

// NewClient creates a new client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	userID := cfg.UserID
	if userID == "" {
		userID = "admin"
	}
	tenantID := cfg.TenantID
	if tenantID == "" {
		tenantID = SuperadminTenant
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		userID:   userID,
		tenantID: tenantID,
		http:     &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the server address this client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Register announces a provisioner (PUT /v2/provisioners/{id})
func (c *Client) Register(ctx context.Context, req types.RegisterRequest) error {
	resp, err := c.do(ctx, http.MethodPut, "/v2/provisioners/"+url.PathEscape(req.ID), req)
	if err != nil {
		return fmt.Errorf("failed to register provisioner: %w", err)
	}
	defer drain(resp)
	return checkStatus(resp, http.StatusOK)
}

// Heartbeat reports usage (POST /v2/provisioners/{id}/heartbeat).
// A 404 means the server no longer knows this provisioner and yields ErrNotFound.
func (c *Client) Heartbeat(ctx context.Context, provisionerID string, req types.HeartbeatRequest) error {
	resp, err := c.do(ctx, http.MethodPost, "/v2/provisioners/"+url.PathEscape(provisionerID)+"/heartbeat", req)
	if err != nil {
		return fmt.Errorf("failed to send heartbeat: %w", err)
	}
	defer drain(resp)
	return checkStatus(resp, http.StatusOK)
}

// Unregister removes a provisioner (DELETE /v2/provisioners/{id})
func (c *Client) Unregister(ctx context.Context, provisionerID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/v2/provisioners/"+url.PathEscape(provisionerID), nil)
	if err != nil {
		return fmt.Errorf("failed to unregister provisioner: %w", err)
	}
	defer drain(resp)
	return checkStatus(resp, http.StatusOK, http.StatusNoContent)
}

// TakeTask asks for the next task (POST /v2/tasks/take).
// It returns nil, nil when the server has nothing to hand out.
func (c *Client) TakeTask(ctx context.Context, req types.TakeRequest) (*types.Task, error) {
	resp, err := c.do(ctx, http.MethodPost, "/v2/tasks/take", req)
	if err != nil {
		return nil, fmt.Errorf("failed to take task: %w", err)
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil
	case http.StatusOK:
	default:
		return nil, checkStatus(resp, http.StatusOK)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read task: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var task types.Task
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	return &task, nil
}

// FinishTask reports a task result (POST /v2/tasks/finish)
func (c *Client) FinishTask(ctx context.Context, result types.TaskResult) error {
	resp, err := c.do(ctx, http.MethodPost, "/v2/tasks/finish", result)
	if err != nil {
		return fmt.Errorf("failed to finish task: %w", err)
	}
	defer drain(resp)
	return checkStatus(resp, http.StatusOK, http.StatusNoContent)
}

// FetchResource streams one version of a resource from the resource store.
// The caller must close the returned reader.
func (c *Client) FetchResource(ctx context.Context, resourcePath string, version types.Version) (io.ReadCloser, error) {
	path := "/v2/plugins/" + escapePath(resourcePath) + "/versions/" + url.PathEscape(string(version))
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s version %s: %w", resourcePath, version, err)
	}
	if err := checkStatus(resp, http.StatusOK); err != nil {
		drain(resp)
		return nil, err
	}
	return resp.Body, nil
}

// PutTenant creates or updates a tenant on a master (PUT /v2/tenants/{id})
func (c *Client) PutTenant(ctx context.Context, spec types.TenantSpec) error {
	resp, err := c.do(ctx, http.MethodPut, "/v2/tenants/"+url.PathEscape(spec.ID), spec)
	if err != nil {
		return fmt.Errorf("failed to put tenant: %w", err)
	}
	defer drain(resp)
	return checkStatus(resp, http.StatusOK, http.StatusCreated)
}

// DeleteTenant requests deletion of a tenant on a master (DELETE /v2/tenants/{id})
func (c *Client) DeleteTenant(ctx context.Context, tenantID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/v2/tenants/"+url.PathEscape(tenantID), nil)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	defer drain(resp)
	return checkStatus(resp, http.StatusOK, http.StatusAccepted, http.StatusNoContent)
}

// Status reads a master's status document (GET /status)
func (c *Client) Status(ctx context.Context) (*types.ProvisionerStatus, error) {
	resp, err := c.do(ctx, http.MethodGet, "/status", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	defer drain(resp)
	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}
	var status types.ProvisionerStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &status, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set(HeaderUserID, c.userID)
	req.Header.Set(HeaderTenantID, c.tenantID)

	return c.http.Do(req)
}

func checkStatus(resp *http.Response, accepted ...int) error {
	for _, code := range accepted {
		if resp.StatusCode == code {
			return nil
		}
	}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", resp.Request.Method, resp.Request.URL.Path, ErrNotFound)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return &StatusError{
		Method: resp.Request.Method,
		URL:    resp.Request.URL.Path,
		Code:   resp.StatusCode,
		Body:   strings.TrimSpace(string(body)),
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
