package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetHealth(t *testing.T) {
	t.Helper()
	health = newHealthRegistry()
	t.Cleanup(func() { health = newHealthRegistry() })
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name       string
		components map[string]bool
		want       string
	}{
		{"nothing reported", nil, StatusHealthy},
		{"all healthy", map[string]bool{ComponentAPI: true, ComponentRegistration: true, ComponentHeartbeat: true}, StatusHealthy},
		{"heartbeat failing", map[string]bool{ComponentAPI: true, ComponentRegistration: true, ComponentHeartbeat: false}, StatusDegraded},
		{"registration failing", map[string]bool{ComponentAPI: true, ComponentRegistration: false, ComponentHeartbeat: false}, StatusUnhealthy},
		{"api failing", map[string]bool{ComponentAPI: false}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth(t)
			for name, ok := range tt.components {
				SetComponent(name, ok, "msg")
			}
			s := GetHealth()
			assert.Equal(t, tt.want, s.Status)
			assert.Len(t, s.Components, len(tt.components))
		})
	}
}

func TestGetReadiness(t *testing.T) {
	resetHealth(t)

	s := GetReadiness()
	assert.Equal(t, StatusNotReady, s.Status)
	assert.Equal(t, "waiting for api", s.Message)

	SetComponent(ComponentAPI, true, "")
	SetComponent(ComponentRegistration, false, "central server unreachable")
	s = GetReadiness()
	assert.Equal(t, StatusNotReady, s.Status)
	assert.Equal(t, "registration: central server unreachable", s.Message)

	SetComponent(ComponentRegistration, true, "")
	SetComponent(ComponentHeartbeat, false, "timeout")
	assert.Equal(t, StatusReady, GetReadiness().Status)
}

func TestHealthHandlers(t *testing.T) {
	resetHealth(t)
	SetVersion("1.2.3")
	SetComponent(ComponentAPI, true, "")
	SetComponent(ComponentRegistration, true, "")
	SetComponent(ComponentHeartbeat, false, "timeout")

	w := httptest.NewRecorder()
	HealthHandler()(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var body HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, StatusDegraded, body.Status)
	assert.Equal(t, "1.2.3", body.Version)
	assert.False(t, body.Components[ComponentHeartbeat].Healthy)
	assert.Equal(t, "timeout", body.Components[ComponentHeartbeat].Message)

	SetComponent(ComponentRegistration, false, "404")
	w = httptest.NewRecorder()
	HealthHandler()(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	ReadyHandler()(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	LivenessHandler()(w, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var live map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&live))
	assert.Equal(t, "alive", live["status"])
	assert.NotEmpty(t, live["uptime"])
}
