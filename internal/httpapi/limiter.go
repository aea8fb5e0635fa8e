package httpapi

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 5 * time.Minute

type limiterEntry struct {
	lim  *rate.Limiter
	hits []time.Time
	seen time.Time
}

// limiterSet keeps one token bucket per client key, or with a window a log
// of recent hits holding at most burst entries. Idle keys are swept lazily
// on access.
type limiterSet struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	window    time.Duration
	ttl       time.Duration
	entries   map[string]*limiterEntry
	lastSweep time.Time
	now       func() time.Time
}

// newLimiterSet returns nil when perSecond or burst is not positive, which
// disables limiting.
func newLimiterSet(perSecond float64, burst int) *limiterSet {
	if perSecond <= 0 || burst <= 0 {
		return nil
	}
	return &limiterSet{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		ttl:     limiterIdleTTL,
		entries: make(map[string]*limiterEntry),
		now:     time.Now,
	}
}

// newLoginLimiter allows at most limit attempts in any window for each key.
func newLoginLimiter(limit int, window time.Duration) *limiterSet {
	if limit <= 0 || window <= 0 {
		return nil
	}
	ttl := limiterIdleTTL
	if window > ttl {
		ttl = window
	}
	return &limiterSet{
		burst:   limit,
		window:  window,
		ttl:     ttl,
		entries: make(map[string]*limiterEntry),
		now:     time.Now,
	}
}

// allow consumes one token for key. When the bucket is empty it reports how
// long the caller should wait.
func (s *limiterSet) allow(key string) (bool, time.Duration) {
	if s == nil {
		return true, 0
	}
	if key == "" {
		key = "unknown"
	}
	now := s.now()

	s.mu.Lock()
	if now.Sub(s.lastSweep) > s.ttl {
		for k, e := range s.entries {
			if now.Sub(e.seen) > s.ttl {
				delete(s.entries, k)
			}
		}
		s.lastSweep = now
	}
	e, ok := s.entries[key]
	if !ok {
		e = &limiterEntry{}
		if s.window <= 0 {
			e.lim = rate.NewLimiter(s.limit, s.burst)
		}
		s.entries[key] = e
	}
	e.seen = now
	if s.window > 0 {
		defer s.mu.Unlock()
		return e.record(now, s.window, s.burst)
	}
	s.mu.Unlock()

	res := e.lim.ReserveN(now, 1)
	if !res.OK() {
		return false, s.ttl
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// record admits a hit at now when fewer than limit hits fall within the
// window ending at now.
func (e *limiterEntry) record(now time.Time, window time.Duration, limit int) (bool, time.Duration) {
	start := now.Add(-window)
	kept := e.hits[:0]
	for _, h := range e.hits {
		if h.After(start) {
			kept = append(kept, h)
		}
	}
	e.hits = kept
	if len(e.hits) >= limit {
		return false, e.hits[0].Sub(start)
	}
	e.hits = append(e.hits, now)
	return true, 0
}

func (s *limiterSet) size() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
