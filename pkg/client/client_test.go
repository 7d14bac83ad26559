package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", TenantID: "t1"})
}

func TestRegister(t *testing.T) {
	var got types.RegisterRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/v2/provisioners/master-host-42", r.URL.Path)
		assert.Equal(t, "admin", r.Header.Get(HeaderUserID))
		assert.Equal(t, "t1", r.Header.Get(HeaderTenantID))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	})

	req := types.RegisterRequest{ID: "master-host-42", CapacityTotal: 10, Host: "host", Port: 55056}
	require.NoError(t, c.Register(context.Background(), req))
	assert.Equal(t, req, got)
}

func TestHeartbeat(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		notFound bool
		wantErr  bool
	}{
		{name: "ok", status: http.StatusOK},
		{name: "forgotten", status: http.StatusNotFound, notFound: true, wantErr: true},
		{name: "server error", status: http.StatusInternalServerError, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v2/provisioners/p1/heartbeat", r.URL.Path)
				var hb types.HeartbeatRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&hb))
				assert.Equal(t, 2, hb.Usage["t1"])
				w.WriteHeader(tt.status)
			})

			err := c.Heartbeat(context.Background(), "p1", types.HeartbeatRequest{Usage: map[string]int{"t1": 2}})
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.notFound, errors.Is(err, ErrNotFound))

			var se *StatusError
			assert.Equal(t, !tt.notFound, errors.As(err, &se))
		})
	}
}

func TestTakeTask(t *testing.T) {
	t.Run("task returned", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v2/tasks/take", r.URL.Path)
			var req types.TakeRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, types.TakeRequest{ProvisionerID: "p1", WorkerID: "w1", TenantID: "t1"}, req)
			_, _ = io.WriteString(w, `{"taskId":"x1","taskName":"install","config":{"service":{"action":{"type":"shell"}}}}`)
		})

		task, err := c.TakeTask(context.Background(), types.TakeRequest{ProvisionerID: "p1", WorkerID: "w1", TenantID: "t1"})
		require.NoError(t, err)
		require.NotNil(t, task)
		assert.Equal(t, "x1", task.TaskID)
		assert.Equal(t, "shell", task.Config.Service.Action.Type)
	})

	t.Run("no content", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		task, err := c.TakeTask(context.Background(), types.TakeRequest{})
		require.NoError(t, err)
		assert.Nil(t, task)
	})

	t.Run("empty ok body", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		task, err := c.TakeTask(context.Background(), types.TakeRequest{})
		require.NoError(t, err)
		assert.Nil(t, task)
	})

	t.Run("server error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		})
		_, err := c.TakeTask(context.Background(), types.TakeRequest{})
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusBadGateway, se.Code)
		assert.Equal(t, "boom", se.Body)
	})
}

func TestFetchResource(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/plugins/automatortypes/shell/scripts/setup.sh/versions/2" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, "#!/bin/sh\necho ok\n")
	})

	rc, err := c.FetchResource(context.Background(), "automatortypes/shell/scripts/setup.sh", "2")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "#!/bin/sh\necho ok\n", string(data))

	_, err = c.FetchResource(context.Background(), "automatortypes/shell/scripts/setup.sh", "3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFinishAndUnregister(t *testing.T) {
	var finished types.TaskResult
	var unregistered bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v2/tasks/finish":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&finished))
		case r.Method == http.MethodDelete && r.URL.Path == "/v2/provisioners/p1":
			unregistered = true
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	})

	require.NoError(t, c.FinishTask(context.Background(), types.TaskResult{"taskId": "x1", "status": 0}))
	assert.Equal(t, "x1", finished["taskId"])
	assert.Equal(t, 0, finished.Status())

	require.NoError(t, c.Unregister(context.Background(), "p1"))
	assert.True(t, unregistered)
}

func TestTransportError(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
	err := c.Heartbeat(context.Background(), "p1", types.HeartbeatRequest{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}
