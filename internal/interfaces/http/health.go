package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/sawpanic/volumerun/internal/persistence"
)

// BreakerState reports the circuit breaker state of a dependency
type BreakerState interface {
	State() string
}

// HealthHandler serves the /health endpoint
type HealthHandler struct {
	db        persistence.RepositoryHealth
	cache     BreakerState
	startTime time.Time
	version   string
}

// NewHealthHandler creates a health handler. db and cache may be nil when the
// dependency is not configured.
func NewHealthHandler(db persistence.RepositoryHealth, cache BreakerState, version string) *HealthHandler {
	return &HealthHandler{
		db:        db,
		cache:     cache,
		startTime: time.Now(),
		version:   version,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                   `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp time.Time                `json:"timestamp"`
	Uptime    string                   `json:"uptime"`
	Version   string                   `json:"version"`
	System    SystemInfo               `json:"system"`
	Database  *persistence.HealthCheck `json:"database,omitempty"`
	Checks    map[string]CheckResult   `json:"checks"`
}

// SystemInfo provides system-level information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	MemAlloc      uint64 `json:"mem_alloc_bytes"`
	MemSys        uint64 `json:"mem_sys_bytes"`
	NumGC         uint32 `json:"num_gc"`
}

// CheckResult represents individual health check results
type CheckResult struct {
	Status    string        `json:"status"` // "pass", "warn", "fail"
	Message   string        `json:"message"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// ServeHTTP implements the health check endpoint
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := h.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	switch response.Status {
	case "healthy", "degraded":
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// Check gathers every health signal
func (h *HealthHandler) Check(ctx context.Context) HealthResponse {
	now := time.Now()
	response := HealthResponse{
		Timestamp: now,
		Uptime:    time.Since(h.startTime).String(),
		Version:   h.version,
		System:    systemInfo(),
		Checks:    make(map[string]CheckResult),
	}

	h.addDatabaseCheck(ctx, &response)
	h.addCacheCheck(&response)
	addSystemChecks(&response)

	response.Status = overallStatus(response.Checks)
	return response
}

func (h *HealthHandler) addDatabaseCheck(ctx context.Context, response *HealthResponse) {
	if h.db == nil {
		response.Checks["database"] = CheckResult{Status: "warn", Message: "Database not configured", Timestamp: time.Now()}
		return
	}

	start := time.Now()
	hc := h.db.Health(ctx)
	response.Database = &hc

	check := CheckResult{Status: "pass", Message: "Database reachable", Duration: time.Since(start), Timestamp: time.Now()}
	if !hc.Healthy {
		check.Status = "fail"
		check.Message = fmt.Sprintf("Database unhealthy: %v", hc.Errors)
	}
	response.Checks["database"] = check
}

func (h *HealthHandler) addCacheCheck(response *HealthResponse) {
	if h.cache == nil {
		response.Checks["score_cache"] = CheckResult{Status: "pass", Message: "Score cache disabled", Timestamp: time.Now()}
		return
	}

	// an open breaker means scores are served from Postgres only
	switch state := h.cache.State(); state {
	case "closed":
		response.Checks["score_cache"] = CheckResult{Status: "pass", Message: "Score cache breaker closed", Timestamp: time.Now()}
	default:
		response.Checks["score_cache"] = CheckResult{
			Status:    "warn",
			Message:   fmt.Sprintf("Score cache breaker %s: bypassing cache", state),
			Timestamp: time.Now(),
		}
	}
}

func systemInfo() SystemInfo {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		MemAlloc:      memStats.Alloc,
		MemSys:        memStats.Sys,
		NumGC:         memStats.NumGC,
	}
}

func addSystemChecks(response *HealthResponse) {
	if response.System.NumGoroutines > 1000 {
		response.Checks["goroutines"] = CheckResult{
			Status:    "warn",
			Message:   fmt.Sprintf("High goroutine count: %d", response.System.NumGoroutines),
			Timestamp: time.Now(),
		}
	} else {
		response.Checks["goroutines"] = CheckResult{
			Status:    "pass",
			Message:   fmt.Sprintf("Goroutine count normal: %d", response.System.NumGoroutines),
			Timestamp: time.Now(),
		}
	}
}

// overallStatus is unhealthy on any failed check and degraded on any warning
func overallStatus(checks map[string]CheckResult) string {
	status := "healthy"
	for _, check := range checks {
		switch check.Status {
		case "fail":
			return "unhealthy"
		case "warn":
			status = "degraded"
		}
	}
	return status
}
