package health

import (
	"context"
	"fmt"
	"time"
)

// Checkable is implemented by components that support health checks.
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// CheckResult is the outcome of a single dependency check.
type CheckResult struct {
	Name     string
	Healthy  bool
	Error    string
	Duration time.Duration
}

// AdapterChecker wraps a Checkable with a name and per-check timeout.
type AdapterChecker struct {
	name    string
	adapter Checkable
	timeout time.Duration
}

// NewAdapterChecker creates a health checker for an adapter.
func NewAdapterChecker(name string, adapter Checkable, timeout time.Duration) *AdapterChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AdapterChecker{
		name:    name,
		adapter: adapter,
		timeout: timeout,
	}
}

// Name returns the checker name.
func (c *AdapterChecker) Name() string {
	return c.name
}

// Check performs the health check with the configured timeout.
func (c *AdapterChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.adapter.HealthCheck(checkCtx)
	result := CheckResult{
		Name:     c.name,
		Healthy:  err == nil,
		Duration: time.Since(start),
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// CheckAll runs every checker and returns the first failure as an error
// alongside all individual results.
func CheckAll(ctx context.Context, checkers ...*AdapterChecker) ([]CheckResult, error) {
	results := make([]CheckResult, 0, len(checkers))
	var firstErr error
	for _, checker := range checkers {
		result := checker.Check(ctx)
		results = append(results, result)
		if !result.Healthy && firstErr == nil {
			firstErr = fmt.Errorf("%s: %s", result.Name, result.Error)
		}
	}
	return results, firstErr
}
