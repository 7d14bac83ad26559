package api

import (
	"net/http"

	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/gorilla/mux"
)

// registerHealthRoutes exposes liveness, readiness, component health and metrics
func registerHealthRoutes(r *mux.Router) {
	r.HandleFunc("/health", metrics.HealthHandler()).Methods(http.MethodGet)
	r.HandleFunc("/ready", metrics.ReadyHandler()).Methods(http.MethodGet)
	r.HandleFunc("/live", metrics.LivenessHandler()).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}
