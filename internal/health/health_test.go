package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func healthyCheck() HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusHealthy}
	}
}

func unhealthyCheck(msg string) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusUnhealthy, Message: msg}
	}
}

func TestOverallStatusEmpty(t *testing.T) {
	c := NewChecker(time.Second)
	if got := c.OverallStatus(context.Background()); got != StatusHealthy {
		t.Errorf("Empty checker should be healthy, got %s", got)
	}
}

func TestOverallStatusWorstWins(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("sink", healthyCheck())
	c.Register("scheduler", func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusDegraded}
	})
	if got := c.OverallStatus(context.Background()); got != StatusDegraded {
		t.Errorf("Expected degraded, got %s", got)
	}

	c.Register("broken", unhealthyCheck("down"))
	if got := c.OverallStatus(context.Background()); got != StatusUnhealthy {
		t.Errorf("Expected unhealthy, got %s", got)
	}
}

func TestCheckStampsLastChecked(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("sink", healthyCheck())

	results := c.Check(context.Background())
	sink, ok := results["sink"]
	if !ok {
		t.Fatal("Missing sink result")
	}
	if sink.LastChecked.IsZero() {
		t.Error("LastChecked should be stamped")
	}
}

func TestHTTPHandlerStatusCodes(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("sink", healthyCheck())

	rec := httptest.NewRecorder()
	c.HTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid JSON response: %v", err)
	}
	if resp.Status != StatusHealthy {
		t.Errorf("Expected healthy, got %s", resp.Status)
	}

	c.Register("sink", unhealthyCheck("connection refused"))
	rec = httptest.NewRecorder()
	c.HTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
}

func TestLivenessAlwaysOK(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("sink", unhealthyCheck("down"))

	rec := httptest.NewRecorder()
	c.LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Liveness should always be 200, got %d", rec.Code)
	}
}

func TestReadinessReflectsStatus(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("sink", unhealthyCheck("down"))

	rec := httptest.NewRecorder()
	c.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
}

func TestFreshnessCheck(t *testing.T) {
	var last time.Time
	check := FreshnessCheck(func() time.Time { return last }, time.Minute)

	if got := check(context.Background()); got.Status != StatusDegraded {
		t.Errorf("No pass yet should be degraded, got %s", got.Status)
	}

	last = time.Now()
	if got := check(context.Background()); got.Status != StatusHealthy {
		t.Errorf("Fresh pass should be healthy, got %s", got.Status)
	}

	last = time.Now().Add(-2 * time.Minute)
	if got := check(context.Background()); got.Status != StatusDegraded {
		t.Errorf("Stale pass should be degraded, got %s", got.Status)
	}
}

func TestCheckTimeoutApplies(t *testing.T) {
	c := NewChecker(50 * time.Millisecond)
	c.Register("slow", func(ctx context.Context) ComponentHealth {
		select {
		case <-ctx.Done():
			return ComponentHealth{Status: StatusUnhealthy, Message: "timed out"}
		case <-time.After(5 * time.Second):
			return ComponentHealth{Status: StatusHealthy}
		}
	})

	start := time.Now()
	results := c.Check(context.Background())
	if time.Since(start) > time.Second {
		t.Error("Check should return promptly on timeout")
	}
	if results["slow"].Status != StatusUnhealthy {
		t.Errorf("Expected timed-out check to be unhealthy, got %s", results["slow"].Status)
	}
}
