package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/vpntrail/vpntrail/internal/sink"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status      Status    `json:"status"`
	Message     string    `json:"message,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// HealthCheck represents a health check function
type HealthCheck func(ctx context.Context) ComponentHealth

// Checker manages health checks for all components
type Checker struct {
	mu         sync.RWMutex
	components map[string]HealthCheck
	timeout    time.Duration
}

// NewChecker creates a new health checker
func NewChecker(timeout time.Duration) *Checker {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		components: make(map[string]HealthCheck),
		timeout:    timeout,
	}
}

// Register registers a health check for a component
func (c *Checker) Register(name string, check HealthCheck) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[name] = check
}

// Check runs all health checks and returns per-component results
func (c *Checker) Check(ctx context.Context) map[string]ComponentHealth {
	c.mu.RLock()
	components := make(map[string]HealthCheck, len(c.components))
	for k, v := range c.components {
		components[k] = v
	}
	c.mu.RUnlock()

	var wg sync.WaitGroup
	var resultMu sync.Mutex
	results := make(map[string]ComponentHealth, len(components))

	for name, check := range components {
		wg.Add(1)
		go func(n string, chk HealthCheck) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			result := chk(checkCtx)
			result.LastChecked = time.Now()

			resultMu.Lock()
			results[n] = result
			resultMu.Unlock()
		}(name, check)
	}

	wg.Wait()
	return results
}

// OverallStatus reduces all component results to one status
func (c *Checker) OverallStatus(ctx context.Context) Status {
	return reduce(c.Check(ctx))
}

func reduce(results map[string]ComponentHealth) Status {
	overall := StatusHealthy
	for _, result := range results {
		switch result.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

// HealthResponse represents the HTTP response for health checks
type HealthResponse struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// HTTPHandler returns an HTTP handler reporting all components
func (c *Checker) HTTPHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := c.Check(r.Context())
		overall := reduce(results)

		statusCode := http.StatusOK
		if overall == StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		json.NewEncoder(w).Encode(HealthResponse{
			Status:     overall,
			Components: results,
			Timestamp:  time.Now(),
		})
	}
}

// LivenessHandler returns a simple liveness probe handler
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}

// ReadinessHandler returns a readiness probe handler
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.OverallStatus(r.Context())

		statusCode := http.StatusOK
		if status == StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    status,
			"timestamp": time.Now(),
		})
	}
}

// SinkCheck reports whether the configured sink is reachable.
func SinkCheck(s sink.Sink) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		if err := s.Ping(ctx); err != nil {
			return ComponentHealth{
				Status:  StatusUnhealthy,
				Message: fmt.Sprintf("%s unreachable: %v", s.Name(), err),
			}
		}
		return ComponentHealth{Status: StatusHealthy}
	}
}

// FreshnessCheck reports degraded when the last completed pass is older
// than maxAge. A stalled scheduler still answers liveness, so this is
// the signal that monitoring actually stopped making progress.
func FreshnessCheck(lastTick func() time.Time, maxAge time.Duration) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		last := lastTick()
		if last.IsZero() {
			return ComponentHealth{
				Status:  StatusDegraded,
				Message: "no pass completed yet",
			}
		}
		if age := time.Since(last); age > maxAge {
			return ComponentHealth{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("last pass %s ago", age.Round(time.Second)),
			}
		}
		return ComponentHealth{Status: StatusHealthy}
	}
}
