package server

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/mohammedemad618/amir-sub000/internal/storage"
	"github.com/mohammedemad618/amir-sub000/pkg/metrics"
)

const (
	statusHealthy   = "healthy"
	statusWarning   = "warning"
	statusUnhealthy = "unhealthy"
)

// HealthResponse is the /health body
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Checks    map[string]string      `json:"checks"`
	Metrics   map[string]interface{} `json:"metrics,omitempty"`
}

// HealthChecker reports database reachability and runtime pressure
type HealthChecker struct {
	storage   storage.Storage
	startTime time.Time
	version   string
}

func NewHealthChecker(storage storage.Storage, version string) *HealthChecker {
	return &HealthChecker{
		storage:   storage,
		startTime: time.Now(),
		version:   version,
	}
}

// HealthHandler answers 200 while the database is reachable and 503 otherwise
func (h *HealthChecker) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	overall := statusHealthy

	if err := h.checkDatabase(ctx); err != nil {
		checks["database"] = statusUnhealthy + ": " + err.Error()
		overall = statusUnhealthy
	} else {
		checks["database"] = statusHealthy
	}

	for name, status := range map[string]string{
		"memory":     h.checkMemory(),
		"goroutines": h.checkGoroutines(),
	} {
		checks[name] = status
		if status != statusHealthy && overall == statusHealthy {
			overall = statusWarning
		}
	}

	response := HealthResponse{
		Status:    overall,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    checks,
		Metrics:   h.collectMetrics(),
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if overall == statusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(response)
}

func (h *HealthChecker) checkDatabase(ctx context.Context) error {
	if h.storage == nil {
		return nil
	}
	return h.storage.Ping(ctx)
}

func (h *HealthChecker) checkMemory() string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.MemoryUsage.Set(float64(m.Alloc))

	const (
		warningLimit  = 256 << 20
		criticalLimit = 512 << 20
	)
	switch {
	case m.Alloc > criticalLimit:
		return "critical: memory usage > 512MB"
	case m.Alloc > warningLimit:
		return "warning: memory usage > 256MB"
	}
	return statusHealthy
}

func (h *HealthChecker) checkGoroutines() string {
	count := runtime.NumGoroutine()
	metrics.GoroutinesCount.Set(float64(count))

	// each pending reminder holds a timer, not a goroutine
	switch {
	case count > 2000:
		return "critical: too many goroutines"
	case count > 500:
		return "warning: high goroutine count"
	}
	return statusHealthy
}

func (h *HealthChecker) collectMetrics() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"memory": map[string]interface{}{
			"alloc_bytes": m.Alloc,
			"sys_bytes":   m.Sys,
			"num_gc":      m.NumGC,
		},
		"runtime": map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"gomaxprocs": runtime.GOMAXPROCS(0),
			"version":    runtime.Version(),
		},
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
	}
}
