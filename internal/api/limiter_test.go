package api

import (
	"fmt"
	"testing"
	"time"
)

func TestUserLimiter_PerUserBuckets(t *testing.T) {
	l := newUserLimiter(1, 2)
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if !l.allow("alice") {
			t.Fatalf("allow(alice) #%d = false, want true within burst", i+1)
		}
	}
	if l.allow("alice") {
		t.Error("allow(alice) beyond burst = true, want false")
	}
	if !l.allow("bob") {
		t.Error("allow(bob) = false, want true")
	}

	now = now.Add(time.Second)
	if !l.allow("alice") {
		t.Error("allow(alice) after refill = false, want true")
	}
}

func TestUserLimiter_PrunesRefilledBuckets(t *testing.T) {
	l := newUserLimiter(1, 1)
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < minPruneSize; i++ {
		l.allow(fmt.Sprintf("user-%d", i))
	}
	if n := l.size(); n != minPruneSize {
		t.Fatalf("size() = %d, want %d", n, minPruneSize)
	}

	// Every bucket refills; the next new user triggers a prune.
	now = now.Add(time.Second)
	l.allow("user-0")
	l.allow("late")
	if n := l.size(); n != 2 {
		t.Errorf("size() after prune = %d, want 2 (user-0 and late)", n)
	}
}

func TestUserLimiter_Nil(t *testing.T) {
	var l *userLimiter
	if !l.allow("anyone") {
		t.Error("nil limiter should allow everything")
	}
}
