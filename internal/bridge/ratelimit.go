package bridge

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// OriginRateLimitConfig controls the per-origin token bucket guarding the
// POST /bridge transport against a misbehaving or compromised content frame
// spamming intents; the event stream is not rate limited. The privileged chrome origin is the only origin that
// ever legitimately reaches the bridge, but a single compromised content
// process can still flood it with requests carrying a forged header.
type OriginRateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// DefaultOriginRateLimitConfig allows a generous steady rate with headroom
// for the query_shell_state poll-after-every-intent pattern.
func DefaultOriginRateLimitConfig() OriginRateLimitConfig {
	return OriginRateLimitConfig{RequestsPerSecond: 50, Burst: 100}
}

type originLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// OriginRateLimiter tracks one token bucket per origin string, evicting
// buckets that have been idle for longer than idleTTL so a long-lived
// process doesn't accumulate one bucket per connection forever.
type OriginRateLimiter struct {
	mu      sync.Mutex
	cfg     OriginRateLimitConfig
	idleTTL time.Duration
	origins map[string]*originLimiter
}

// NewOriginRateLimiter creates a limiter with the given config and a
// 10-minute idle eviction window.
func NewOriginRateLimiter(cfg OriginRateLimitConfig) *OriginRateLimiter {
	return &OriginRateLimiter{
		cfg:     cfg,
		idleTTL: 10 * time.Minute,
		origins: make(map[string]*originLimiter),
	}
}

// Allow reports whether a request from origin may proceed, consuming one
// token from that origin's bucket if so.
func (r *OriginRateLimiter) Allow(origin string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evictIdleLocked()

	ol, ok := r.origins[origin]
	if !ok {
		ol = &originLimiter{limiter: rate.NewLimiter(rate.Limit(r.cfg.RequestsPerSecond), r.cfg.Burst)}
		r.origins[origin] = ol
	}
	ol.lastSeen = time.Now()
	return ol.limiter.Allow()
}

func (r *OriginRateLimiter) evictIdleLocked() {
	now := time.Now()
	for origin, ol := range r.origins {
		if now.Sub(ol.lastSeen) > r.idleTTL {
			delete(r.origins, origin)
		}
	}
}
