package jobs

import (
	"errors"
	"testing"
	"time"
)

func TestExponentialBackoffDoublesAndCaps(t *testing.T) {
	strategy := &ExponentialBackoff{Base: time.Second, Max: 10 * time.Second}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{20, 10 * time.Second},
		{0, time.Second},
	}
	for _, tc := range cases {
		if got := strategy.Delay(tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: want %v got %v", tc.attempt, tc.want, got)
		}
	}
}

func TestJitteredBackoffStaysWithinCeiling(t *testing.T) {
	strategy := &JitteredBackoff{Base: time.Second, Max: 8 * time.Second}

	for attempt := 1; attempt <= 10; attempt++ {
		ceiling := (&ExponentialBackoff{Base: time.Second, Max: 8 * time.Second}).Delay(attempt)
		for i := 0; i < 50; i++ {
			got := strategy.Delay(attempt)
			if got < 0 || got > ceiling {
				t.Fatalf("attempt %d: delay %v outside [0, %v]", attempt, got, ceiling)
			}
		}
	}
}

func TestPermanentClassification(t *testing.T) {
	base := errors.New("unsupported document type")
	if !IsPermanent(Permanent(base)) {
		t.Fatal("wrapped error should classify as permanent")
	}
	if !errors.Is(Permanent(base), base) {
		t.Fatal("wrapping should preserve the original error")
	}
	if IsPermanent(base) {
		t.Fatal("plain error should classify as transient")
	}
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) should stay nil")
	}
}
