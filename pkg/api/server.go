package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/provisioner"
	"github.com/cuemby/burrow/pkg/tenant"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// Provisioner is the part of the master the API adapts onto HTTP
type Provisioner interface {
	PutTenant(spec types.TenantSpec) (bool, error)
	DeleteTenant(id string) error
	Tenant(id string) (types.TenantStatus, error)
	Status() types.ProvisionerStatus
	HeartbeatRequest() types.HeartbeatRequest
}

// Server is the master HTTP API
type Server struct {
	provisioner Provisioner
	router      *mux.Router
	http        *http.Server
	logger      zerolog.Logger
}

// NewServer creates a new API server
func NewServer(p Provisioner) *Server {
	s := &Server{
		provisioner: p,
		router:      mux.NewRouter(),
		logger:      log.WithComponent("api"),
	}

	s.router.Use(s.instrument)

	v2 := s.router.PathPrefix("/v2").Subrouter()
	v2.HandleFunc("/tenants", s.createTenant).Methods(http.MethodPost)
	v2.HandleFunc("/tenants/{id}", s.putTenant).Methods(http.MethodPut)
	v2.HandleFunc("/tenants/{id}", s.getTenant).Methods(http.MethodGet)
	v2.HandleFunc("/tenants/{id}", s.deleteTenant).Methods(http.MethodDelete)

	s.router.HandleFunc("/heartbeat", s.heartbeat).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.status).Methods(http.MethodGet)
	registerHealthRoutes(s.router)

	return s
}

// Handler returns the HTTP handler for embedding in other servers
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on addr and serves in the background
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		metrics.SetComponent(metrics.ComponentAPI, false, err.Error())
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.http = &http.Server{
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := s.http.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			metrics.SetComponent(metrics.ComponentAPI, false, err.Error())
			s.logger.Error().Err(err).Msg("API server stopped")
		}
	}()

	metrics.SetComponent(metrics.ComponentAPI, true, "")
	s.logger.Info().Str("addr", lis.Addr().String()).Msg("API listening")
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) createTenant(w http.ResponseWriter, r *http.Request) {
	var spec types.TenantSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid tenant body: %w", err))
		return
	}
	s.applyTenant(w, spec)
}

func (s *Server) putTenant(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var spec types.TenantSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid tenant body: %w", err))
		return
	}
	if spec.ID != "" && spec.ID != id {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("body id %q does not match path id %q", spec.ID, id))
		return
	}
	spec.ID = id
	s.applyTenant(w, spec)
}

func (s *Server) applyTenant(w http.ResponseWriter, spec types.TenantSpec) {
	if err := spec.Validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := s.provisioner.PutTenant(spec)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	st, err := s.provisioner.Tenant(spec.ID)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, st)
}

func (s *Server) getTenant(w http.ResponseWriter, r *http.Request) {
	st, err := s.provisioner.Tenant(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// deleteTenant answers 202: workers drain asynchronously
func (s *Server) deleteTenant(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.provisioner.DeleteTenant(id); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": string(tenant.StatusDeleting)})
}

func (s *Server) heartbeat(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.provisioner.HeartbeatRequest())
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.provisioner.Status())
}

// statusFor maps provisioner errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, provisioner.ErrTenantNotFound):
		return http.StatusNotFound
	case errors.Is(err, provisioner.ErrCapacityExceeded),
		errors.Is(err, provisioner.ErrTenantDeleting),
		errors.Is(err, tenant.ErrInsufficientWorkers):
		return http.StatusConflict
	case errors.Is(err, provisioner.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the body of every non-2xx answer
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Int("status", code).Msg("Request failed")
	} else {
		s.logger.Warn().Err(err).Int("status", code).Msg("Request rejected")
	}
	writeJSON(w, code, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
