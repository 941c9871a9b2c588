package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
)

// HealthCheck reports whether a dependency of the service is reachable.
type HealthCheck func(ctx context.Context) error

type handler struct {
	checks map[string]HealthCheck
}

// NewRouter serves /healthz and, when metrics is not nil, /metrics.
func NewRouter(log *slog.Logger, metrics http.Handler, checks map[string]HealthCheck) http.Handler {
	h := handler{checks: checks}

	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.healthz).Methods("GET")
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods("GET")
	}

	r.Use(Instrument(log))

	return r
}
