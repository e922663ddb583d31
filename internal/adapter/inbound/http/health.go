package http

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/Sentinel-Gate/Contractgate/internal/service"
)

// HealthResponse is the JSON response from the /healthz endpoint.
type HealthResponse struct {
	Status  string            `json:"status"` // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
	Stats   *service.Stats    `json:"stats,omitempty"`
}

// Pinger reports whether a store backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SchedulerStatus reports the enforcement scheduler state.
type SchedulerStatus interface {
	IsRunning() bool
	NextRun() *time.Time
}

// StatsSource supplies the in-process counters shown on /healthz.
type StatsSource interface {
	GetStats() service.Stats
}

// HealthChecker verifies component health.
type HealthChecker struct {
	store     Pinger
	scheduler SchedulerStatus
	stats     StatsSource
	version   string
	timeout   time.Duration
}

// NewHealthChecker creates a HealthChecker. Pass nil for components that
// aren't configured.
func NewHealthChecker(store Pinger, scheduler SchedulerStatus, version string) *HealthChecker {
	return &HealthChecker{
		store:     store,
		scheduler: scheduler,
		version:   version,
		timeout:   2 * time.Second,
	}
}

// WithStats adds the counters of src to every response.
func (h *HealthChecker) WithStats(src StatsSource) *HealthChecker {
	h.stats = src
	return h
}

// Check performs health checks on all components. A stopped scheduler is
// reported but does not make the gate unhealthy.
func (h *HealthChecker) Check(ctx context.Context) HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.store != nil {
		pctx, cancel := context.WithTimeout(ctx, h.timeout)
		err := h.store.Ping(pctx)
		cancel()
		if err != nil {
			checks["store"] = "error: " + err.Error()
			healthy = false
		} else {
			checks["store"] = "ok"
		}
	} else {
		checks["store"] = "memory"
	}

	switch {
	case h.scheduler == nil:
		checks["sweep"] = "not configured"
	case !h.scheduler.IsRunning():
		checks["sweep"] = "stopped"
	default:
		if next := h.scheduler.NextRun(); next != nil {
			checks["sweep"] = "ok: next run " + next.UTC().Format(time.RFC3339)
		} else {
			checks["sweep"] = "ok"
		}
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	resp := HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
	if h.stats != nil {
		stats := h.stats.GetStats()
		resp.Stats = &stats
	}
	return resp
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check(r.Context())
		status := http.StatusOK
		if health.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, health)
	})
}
