package monitoring

import (
	"context"
	"sync"
	"time"
)

type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Unhealthy HealthStatus = "unhealthy"
)

type HealthCheck struct {
	Name        string        `json:"name"`
	Status      HealthStatus  `json:"status"`
	Duration    time.Duration `json:"duration"`
	LastChecked time.Time     `json:"last_checked"`
	Error       string        `json:"error,omitempty"`
}

type HealthChecker struct {
	checks map[string]func(context.Context) error
	mu     sync.RWMutex
}

func CreateHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks: make(map[string]func(context.Context) error),
	}
}

func (hc *HealthChecker) AddCheck(name string, check func(context.Context) error) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[name] = check
}

// RunAll runs every registered check and reports whether all passed.
func (hc *HealthChecker) RunAll(ctx context.Context) ([]HealthCheck, bool) {
	hc.mu.RLock()
	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	hc.mu.RUnlock()

	results := make([]HealthCheck, 0, len(names))
	healthy := true
	for _, name := range names {
		result := hc.runCheck(ctx, name)
		if result.Status != Healthy {
			healthy = false
		}
		results = append(results, result)
	}
	return results, healthy
}

func (hc *HealthChecker) runCheck(ctx context.Context, name string) HealthCheck {
	hc.mu.RLock()
	check := hc.checks[name]
	hc.mu.RUnlock()

	start := time.Now()
	err := check(ctx)

	result := HealthCheck{
		Name:        name,
		Status:      Healthy,
		Duration:    time.Since(start),
		LastChecked: time.Now(),
	}
	if err != nil {
		result.Status = Unhealthy
		result.Error = err.Error()
	}
	return result
}
