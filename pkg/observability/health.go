package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// DependencyStatus reports the health of a single dependency.
type DependencyStatus struct {
	Status    string        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Latency   time.Duration `json:"latency_ms,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// HealthStatus is the aggregate readiness report.
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyCheck probes one dependency.
type DependencyCheck func(ctx context.Context) DependencyStatus

type dependency struct {
	name     string
	optional bool
	check    DependencyCheck
}

// HealthChecker aggregates dependency probes into liveness and readiness
// handlers. Optional dependencies degrade overall health instead of failing
// it.
type HealthChecker struct {
	version string
	deps    []dependency
}

// NewHealthChecker creates an empty health checker reporting the given
// version.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{version: version}
}

// AddCheck registers a required dependency.
func (h *HealthChecker) AddCheck(name string, check DependencyCheck) {
	h.deps = append(h.deps, dependency{name: name, check: check})
}

// AddOptionalCheck registers a dependency whose failure only degrades
// overall health.
func (h *HealthChecker) AddOptionalCheck(name string, check DependencyCheck) {
	h.deps = append(h.deps, dependency{name: name, optional: true, check: check})
}

// Check runs all registered probes.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus),
	}

	for _, dep := range h.deps {
		depStatus := dep.check(ctx)
		status.Dependencies[dep.name] = depStatus

		switch {
		case depStatus.Status == StatusUnhealthy && dep.optional:
			if status.Status != StatusUnhealthy {
				status.Status = StatusDegraded
			}
		case depStatus.Status == StatusUnhealthy:
			status.Status = StatusUnhealthy
		case depStatus.Status == StatusDegraded && status.Status == StatusHealthy:
			status.Status = StatusDegraded
		}
	}

	return status
}

// Liveness always reports healthy while the process is serving.
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness runs all probes and returns 503 only when a required dependency
// is unhealthy.
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}

// DatabaseCheck probes a PostgreSQL connection pool.
func DatabaseCheck(db *sql.DB) DependencyCheck {
	return func(ctx context.Context) DependencyStatus {
		start := time.Now()
		status := DependencyStatus{
			Status:    StatusHealthy,
			Timestamp: start,
		}

		if err := db.PingContext(ctx); err != nil {
			status.Latency = time.Since(start)
			status.Status = StatusUnhealthy
			status.Message = err.Error()
			return status
		}

		var one int
		if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
			status.Latency = time.Since(start)
			status.Status = StatusUnhealthy
			status.Message = "query failed: " + err.Error()
			return status
		}
		status.Latency = time.Since(start)

		stats := db.Stats()
		if stats.MaxOpenConnections > 0 && stats.OpenConnections >= stats.MaxOpenConnections {
			status.Status = StatusDegraded
			status.Message = "connection pool exhausted"
		}

		return status
	}
}

// RedisCheck probes a Redis client.
func RedisCheck(client *redis.Client) DependencyCheck {
	return func(ctx context.Context) DependencyStatus {
		start := time.Now()
		status := DependencyStatus{
			Status:    StatusHealthy,
			Timestamp: start,
		}

		if err := client.Ping(ctx).Err(); err != nil {
			status.Status = StatusUnhealthy
			status.Message = err.Error()
		}
		status.Latency = time.Since(start)

		return status
	}
}
