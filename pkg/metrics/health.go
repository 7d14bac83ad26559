package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Components tracked by the master
const (
	ComponentAPI          = "api"
	ComponentRegistration = "registration"
	ComponentHeartbeat    = "heartbeat"
)

// Health states
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// The master is ready once it serves its API and the central server knows it.
// A failing heartbeat only degrades health.
var criticalComponents = []string{ComponentAPI, ComponentRegistration}

// ComponentHealth is the last reported state of one component
type ComponentHealth struct {
	Healthy bool      `json:"healthy"`
	Message string    `json:"message,omitempty"`
	Updated time.Time `json:"updated"`
}

// HealthStatus is the body of /health and /ready
type HealthStatus struct {
	Status     string                     `json:"status"`
	Message    string                     `json:"message,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
	Version    string                     `json:"version,omitempty"`
	Uptime     string                     `json:"uptime"`
	Timestamp  time.Time                  `json:"timestamp"`
}

type healthRegistry struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	started    time.Time
	version    string
}

var health = newHealthRegistry()

func newHealthRegistry() *healthRegistry {
	return &healthRegistry{
		components: make(map[string]ComponentHealth),
		started:    time.Now(),
	}
}

// SetVersion sets the version reported by the health endpoints
func SetVersion(version string) {
	health.mu.Lock()
	defer health.mu.Unlock()
	health.version = version
}

// SetComponent records the current state of a component
func SetComponent(name string, healthy bool, message string) {
	health.mu.Lock()
	defer health.mu.Unlock()
	health.components[name] = ComponentHealth{Healthy: healthy, Message: message, Updated: time.Now()}
}

func (h *healthRegistry) snapshot() HealthStatus {
	return HealthStatus{
		Components: lo.Assign(h.components),
		Version:    h.version,
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		Timestamp:  time.Now(),
	}
}

// GetHealth is unhealthy when a critical component fails and degraded when
// any other component fails
func GetHealth() HealthStatus {
	health.mu.RLock()
	defer health.mu.RUnlock()

	s := health.snapshot()
	s.Status = StatusHealthy

	failing := lo.Keys(lo.PickBy(health.components, func(_ string, c ComponentHealth) bool { return !c.Healthy }))
	sort.Strings(failing)
	for _, name := range failing {
		if lo.Contains(criticalComponents, name) {
			s.Status = StatusUnhealthy
			s.Message = name + ": " + health.components[name].Message
			return s
		}
		s.Status = StatusDegraded
		s.Message = name + ": " + health.components[name].Message
	}
	return s
}

// GetReadiness is ready once every critical component has reported healthy
func GetReadiness() HealthStatus {
	health.mu.RLock()
	defer health.mu.RUnlock()

	s := health.snapshot()
	s.Status = StatusReady
	for _, name := range criticalComponents {
		c, ok := health.components[name]
		switch {
		case !ok:
			s.Status = StatusNotReady
			s.Message = "waiting for " + name
			return s
		case !c.Healthy:
			s.Status = StatusNotReady
			s.Message = name + ": " + c.Message
			return s
		}
	}
	return s
}

// HealthHandler serves /health: 503 when unhealthy, 200 otherwise
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := GetHealth()
		writeHealth(w, s, s.Status != StatusUnhealthy)
	}
}

// ReadyHandler serves /ready: 503 until ready
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := GetReadiness()
		writeHealth(w, s, s.Status == StatusReady)
	}
}

// LivenessHandler serves /live, which answers 200 as long as the process does
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health.mu.RLock()
		uptime := time.Since(health.started).Round(time.Second).String()
		health.mu.RUnlock()
		writeHealth(w, map[string]string{"status": "alive", "uptime": uptime}, true)
	}
}

func writeHealth(w http.ResponseWriter, body any, ok bool) {
	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(body)
}
