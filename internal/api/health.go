package api

import (
	"context"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"time"
)

const healthCheckTimeout = 3 * time.Second

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// healthz runs every dependency check. A failing check turns the response
// into 503 and is named on the request log line.
func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	code := http.StatusOK

	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
	}

	var failed []any
	for _, name := range slices.Sorted(maps.Keys(h.checks)) {
		err := h.checks[name](ctx)
		if err != nil {
			resp.Checks[name] = err.Error()
			failed = append(failed, slog.String(name, err.Error()))
			continue
		}
		resp.Checks[name] = "ok"
	}

	if len(failed) > 0 {
		resp.Status = "unavailable"
		code = http.StatusServiceUnavailable
		annotate(w, slog.Group("failed_checks", failed...))
	}

	jsonResponse(w, code, resp)
}
