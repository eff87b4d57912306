package users

import (
	"testing"
	"time"
)

func TestLoginGuardLocksAfterMaxFailures(t *testing.T) {
	guard := NewLoginGuard(3, time.Minute)
	key := "renter@example.com|10.0.0.1"

	for i := 0; i < 3; i++ {
		if ok, _ := guard.Allow(key); !ok {
			t.Fatalf("attempt %d should be allowed", i)
		}
		guard.RecordFailure(key)
	}

	ok, retryAfter := guard.Allow(key)
	if ok {
		t.Fatal("key should be locked after max failures")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Fatalf("retryAfter = %v, want within (0, 1m]", retryAfter)
	}
}

func TestLoginGuardFailuresDecay(t *testing.T) {
	guard := NewLoginGuard(2, time.Minute)
	now := time.Now()
	guard.now = func() time.Time { return now }

	key := "renter@example.com|10.0.0.1"
	guard.RecordFailure(key)
	guard.RecordFailure(key)

	if ok, _ := guard.Allow(key); ok {
		t.Fatal("key should be locked")
	}

	// Advance past the window; the lock drains.
	now = now.Add(time.Minute + time.Second)
	if ok, _ := guard.Allow(key); !ok {
		t.Fatal("key should unlock after failures decay")
	}
}

func TestLoginGuardSuccessClearsHistory(t *testing.T) {
	guard := NewLoginGuard(2, time.Minute)
	key := "renter@example.com|10.0.0.1"

	guard.RecordFailure(key)
	guard.RecordSuccess(key)
	guard.RecordFailure(key)

	if ok, _ := guard.Allow(key); !ok {
		t.Fatal("single failure after success should not lock")
	}
}

func TestLoginGuardKeysAreIsolated(t *testing.T) {
	guard := NewLoginGuard(1, time.Minute)

	guard.RecordFailure("renter@example.com|10.0.0.1")
	if ok, _ := guard.Allow("renter@example.com|10.0.0.2"); !ok {
		t.Fatal("a different client IP must not share the lock")
	}
	if ok, _ := guard.Allow("renter@example.com|10.0.0.1"); ok {
		t.Fatal("the failing key should be locked")
	}
}

func TestLoginGuardSweep(t *testing.T) {
	guard := NewLoginGuard(2, time.Minute)
	now := time.Now()
	guard.now = func() time.Time { return now }

	guard.RecordFailure("a|1")
	guard.RecordFailure("b|1")
	now = now.Add(2 * time.Minute)
	guard.RecordFailure("c|1")

	guard.Sweep()

	guard.mu.Lock()
	defer guard.mu.Unlock()
	if _, ok := guard.failures["a|1"]; ok {
		t.Fatal("decayed key a|1 should be swept")
	}
	if _, ok := guard.failures["c|1"]; !ok {
		t.Fatal("fresh key c|1 should survive the sweep")
	}
}
