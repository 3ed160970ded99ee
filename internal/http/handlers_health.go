package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	healthResponse = `{"status":"ok"}`
	readyTimeout   = 2 * time.Second
)

// healthHandler returns a simple 200 OK status for liveness checks.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.WriteString(w, healthResponse); err != nil {
		// Nothing more to do if the client connection is gone.
		return
	}
}

// ReadinessCheck reports whether one dependency can serve traffic.
type ReadinessCheck struct {
	Name string
	// Required failures make the service unready; optional ones are only reported.
	Required bool
	Check    func(ctx context.Context) error
}

// readyHandler runs every check under a short timeout.
func readyHandler(checks []ReadinessCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				results[c.Name] = "unavailable"
				if c.Required {
					status = http.StatusServiceUnavailable
				}
				logger.WarnContext(ctx, "readiness check failed", "check", c.Name, "error", err)
				continue
			}
			results[c.Name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "unavailable"
		}
		WriteJSON(w, status, map[string]any{"status": overall, "checks": results})
	}
}
