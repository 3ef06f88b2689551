// Package health provides the liveness and readiness handlers served by the
// daemon's optional debug listener.
//
// Two endpoints are exposed:
//
//   - /healthz: liveness; always 200 while the process serves HTTP.
//   - /readyz: readiness; 200 only when every registered [Checker] passes,
//     meaning the daemon could handle a hotkey press right now.
//
// Responses are JSON with a top-level "status" ("ok" or "fail") and a
// "checks" map naming each probe's result.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/voiceinput/voiceinput/internal/resilience"
)

// checkTimeout bounds a single readiness check. Every check is local (a
// device node stat, breaker state), so anything slower is itself a failure.
const checkTimeout = 2 * time.Second

// Checker is a named readiness probe. Check returns nil when the dependency
// is usable and an error describing the problem otherwise.
type Checker struct {
	// Name keys this check in the JSON response, e.g. "keyboard" or
	// "providers".
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// ProviderChecker reports ready while at least one transcription backend's
// circuit breaker still admits calls. status is typically
// [resilience.Chain.Status].
func ProviderChecker(status func() []resilience.ProviderStatus) Checker {
	return Checker{
		Name: "providers",
		Check: func(_ context.Context) error {
			st := status()
			if len(st) == 0 {
				return errors.New("no transcription providers configured")
			}
			var open []string
			for _, s := range st {
				if s.State != resilience.StateOpen {
					return nil
				}
				open = append(open, s.Name)
			}
			return fmt.Errorf("all transcription providers unavailable: %s",
				strings.Join(open, ", "))
		},
	}
}

// result is the JSON body for both endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. The checker list is fixed at
// construction, so the handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that runs the given checkers, in order, on each
// /readyz request.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz always returns 200. A process that can answer is alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz returns 200 only when every registered [Checker] passes. Each check
// runs under a [checkTimeout] deadline derived from the request context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	ready := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			ready = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !ready {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
