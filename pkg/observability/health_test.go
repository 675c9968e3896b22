package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticCheck(status string) DependencyCheck {
	return func(ctx context.Context) DependencyStatus {
		return DependencyStatus{Status: status, Timestamp: time.Now()}
	}
}

func TestHealthCheckerAggregation(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(h *HealthChecker)
		expected string
	}{
		{
			name:     "no dependencies",
			setup:    func(h *HealthChecker) {},
			expected: StatusHealthy,
		},
		{
			name: "all healthy",
			setup: func(h *HealthChecker) {
				h.AddCheck("database", staticCheck(StatusHealthy))
				h.AddOptionalCheck("redis", staticCheck(StatusHealthy))
			},
			expected: StatusHealthy,
		},
		{
			name: "required dependency down",
			setup: func(h *HealthChecker) {
				h.AddCheck("database", staticCheck(StatusUnhealthy))
			},
			expected: StatusUnhealthy,
		},
		{
			name: "optional dependency down only degrades",
			setup: func(h *HealthChecker) {
				h.AddCheck("database", staticCheck(StatusHealthy))
				h.AddOptionalCheck("redis", staticCheck(StatusUnhealthy))
			},
			expected: StatusDegraded,
		},
		{
			name: "degraded dependency degrades overall",
			setup: func(h *HealthChecker) {
				h.AddCheck("database", staticCheck(StatusDegraded))
			},
			expected: StatusDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker("test")
			tt.setup(h)
			status := h.Check(context.Background())
			assert.Equal(t, tt.expected, status.Status)
		})
	}
}

func TestReadinessStatusCodes(t *testing.T) {
	h := NewHealthChecker("1.2.3")
	h.AddCheck("database", staticCheck(StatusUnhealthy))

	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, "1.2.3", status.Version)
	assert.Contains(t, status.Dependencies, "database")

	degraded := NewHealthChecker("1.2.3")
	degraded.AddOptionalCheck("redis", staticCheck(StatusUnhealthy))

	rec = httptest.NewRecorder()
	degraded.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLivenessAlwaysOK(t *testing.T) {
	h := NewHealthChecker("test")
	h.AddCheck("database", staticCheck(StatusUnhealthy))

	rec := httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
