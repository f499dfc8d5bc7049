package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"riskgate/internal/workers"
	"riskgate/pkg/logger"
)

// Check probes one dependency
type Check func(ctx context.Context) error

// WorkerHealthSource is implemented by *workers.Scheduler
type WorkerHealthSource interface {
	Health() map[string]workers.WorkerHealth
}

// Handler provides health check endpoints
type Handler struct {
	log         *logger.Logger
	required    map[string]Check
	optional    map[string]Check
	workers     WorkerHealthSource
	startTime   time.Time
	serviceName string
	version     string
}

// New creates a new health check handler
func New(log *logger.Logger, serviceName, version string) *Handler {
	return &Handler{
		log:         log.With("component", "health"),
		required:    make(map[string]Check),
		optional:    make(map[string]Check),
		startTime:   time.Now(),
		serviceName: serviceName,
		version:     version,
	}
}

// Require registers a dependency the service cannot run without
func (h *Handler) Require(name string, check Check) *Handler {
	h.required[name] = check
	return h
}

// Optional registers a dependency whose outage only degrades the service
func (h *Handler) Optional(name string, check Check) *Handler {
	h.optional[name] = check
	return h
}

// WithWorkers adds scheduler state to the detailed health report
func (h *Handler) WithWorkers(src WorkerHealthSource) *Handler {
	h.workers = src
	return h
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status    string                          `json:"status"` // healthy|degraded|unhealthy
	Service   string                          `json:"service"`
	Version   string                          `json:"version"`
	Uptime    string                          `json:"uptime"`
	Timestamp string                          `json:"timestamp"`
	Checks    map[string]ComponentHealth      `json:"checks"`
	Workers   map[string]workers.WorkerHealth `json:"workers,omitempty"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Status       string `json:"status"`
	Required     bool   `json:"required"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// HandleLiveness returns 200 OK while the process runs
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HandleReadiness fails when a required dependency is down
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.evaluate(ctx)
	code := http.StatusOK
	if status.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
		h.log.Warnw("Readiness check failed", "checks", status.Checks)
	}
	writeJSON(w, code, status)
}

// HandleHealth returns the detailed status including workers
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status := h.evaluate(ctx)
	if h.workers != nil {
		status.Workers = h.workers.Health()
	}

	code := http.StatusOK
	if status.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

func (h *Handler) evaluate(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "healthy",
		Service:   h.serviceName,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    make(map[string]ComponentHealth, len(h.required)+len(h.optional)),
	}

	for _, name := range sortedNames(h.required) {
		c := h.probe(ctx, name, h.required[name], true)
		status.Checks[name] = c
		if c.Status != "healthy" {
			status.Status = "unhealthy"
		}
	}
	for _, name := range sortedNames(h.optional) {
		c := h.probe(ctx, name, h.optional[name], false)
		status.Checks[name] = c
		if c.Status != "healthy" && status.Status == "healthy" {
			status.Status = "degraded"
		}
	}
	return status
}

func (h *Handler) probe(ctx context.Context, name string, check Check, required bool) ComponentHealth {
	start := time.Now()
	err := check(ctx)
	elapsed := time.Since(start)

	if err != nil {
		h.log.Errorw("Health check failed", "component", name, "error", err, "elapsed", elapsed)
		return ComponentHealth{
			Status:       "unhealthy",
			Required:     required,
			ResponseTime: elapsed.String(),
			Error:        err.Error(),
		}
	}
	return ComponentHealth{
		Status:       "healthy",
		Required:     required,
		ResponseTime: elapsed.String(),
	}
}

func sortedNames(m map[string]Check) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
