package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

type staticCheckable struct {
	err error
}

func (c *staticCheckable) HealthCheck(context.Context) error {
	return c.err
}

func TestAdapterCheckerHealthy(t *testing.T) {
	checker := NewAdapterChecker("queue", &staticCheckable{}, time.Second)
	result := checker.Check(context.Background())
	if !result.Healthy {
		t.Fatalf("expected healthy result, got %+v", result)
	}
	if result.Name != "queue" {
		t.Fatalf("unexpected name: %q", result.Name)
	}
}

func TestAdapterCheckerUnhealthy(t *testing.T) {
	checker := NewAdapterChecker("results", &staticCheckable{err: errors.New("down")}, time.Second)
	result := checker.Check(context.Background())
	if result.Healthy {
		t.Fatal("expected unhealthy result")
	}
	if result.Error != "down" {
		t.Fatalf("unexpected error message: %q", result.Error)
	}
}

func TestCheckAllReturnsFirstFailure(t *testing.T) {
	ok := NewAdapterChecker("queue", &staticCheckable{}, time.Second)
	bad := NewAdapterChecker("results", &staticCheckable{err: errors.New("down")}, time.Second)

	results, err := CheckAll(context.Background(), ok, bad)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if err == nil {
		t.Fatal("expected aggregate error")
	}
}
