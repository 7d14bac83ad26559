package api

import (
	"net/http"
	"strconv"

	"github.com/cuemby/burrow/pkg/client"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/gorilla/mux"
)

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request metrics and an access log line per request
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		op := r.Method + " " + route

		metrics.APIRequestsTotal.WithLabelValues(op, strconv.Itoa(rec.code)).Inc()
		timer.ObserveDurationVec(metrics.APIRequestDuration, op)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.code).
			Str("user_id", r.Header.Get(client.HeaderUserID)).
			Str("tenant", r.Header.Get(client.HeaderTenantID)).
			Dur("duration", timer.Duration()).
			Msg("Request served")
	})
}
