package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// HealthChecker aggregates named dependency probes into one verdict.
type HealthChecker struct {
	mu     sync.RWMutex
	checks map[string]HealthCheck
}

// NewHealthChecker creates an empty checker.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: make(map[string]HealthCheck)}
}

// Register adds or replaces a named check.
func (h *HealthChecker) Register(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// HealthStatus is one probe's result.
type HealthStatus struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// Check runs every probe with a shared deadline.
func (h *HealthChecker) Check(ctx context.Context) map[string]HealthStatus {
	h.mu.RLock()
	checks := make(map[string]HealthCheck, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	results := make(map[string]HealthStatus, len(checks))
	for name, check := range checks {
		if err := check(ctx); err != nil {
			results[name] = HealthStatus{Healthy: false, Error: err.Error()}
		} else {
			results[name] = HealthStatus{Healthy: true}
		}
	}
	return results
}

// Healthy reports whether every probe passes.
func (h *HealthChecker) Healthy(ctx context.Context) bool {
	for _, st := range h.Check(ctx) {
		if !st.Healthy {
			return false
		}
	}
	return true
}

// Handler serves the aggregate health as JSON: 200 when everything passes,
// 503 otherwise.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results := h.Check(r.Context())

		code := http.StatusOK
		for _, st := range results {
			if !st.Healthy {
				code = http.StatusServiceUnavailable
				break
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(results)
	})
}
