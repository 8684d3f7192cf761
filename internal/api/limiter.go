package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// minPruneSize is the map size below which idle limiters are kept.
const minPruneSize = 1024

// userLimiter hands out one token bucket per user. Buckets that have
// refilled completely are indistinguishable from new ones and are dropped
// whenever the map doubles in size.
type userLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
	pruneAt  int
	now      func() time.Time
}

func newUserLimiter(rps float64, burst int) *userLimiter {
	if burst < 1 {
		burst = 1
	}
	return &userLimiter{
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
		pruneAt:  minPruneSize,
		now:      time.Now,
	}
}

// allow reports whether userID may submit now. A nil limiter allows
// everything.
func (l *userLimiter) allow(userID string) bool {
	if l == nil {
		return true
	}
	now := l.now()

	l.mu.Lock()
	lim, ok := l.limiters[userID]
	if !ok {
		if len(l.limiters) >= l.pruneAt {
			l.prune(now)
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userID] = lim
	}
	l.mu.Unlock()
	return lim.AllowN(now, 1)
}

// prune drops full buckets. Callers hold l.mu.
func (l *userLimiter) prune(now time.Time) {
	for user, lim := range l.limiters {
		if lim.TokensAt(now) >= float64(l.burst) {
			delete(l.limiters, user)
		}
	}
	l.pruneAt = max(2*len(l.limiters), minPruneSize)
}

func (l *userLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
