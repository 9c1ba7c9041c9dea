package admission

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	limiterCleanupInterval = 5 * time.Minute
	limiterIdleTTL         = 10 * time.Minute
)

// RateLimitPolicy limits new connections per IP with an in-memory token
// bucket. Buckets idle for limiterIdleTTL are dropped.
type RateLimitPolicy struct {
	clock clockwork.Clock
	rate  rate.Limit
	burst int

	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	cleanupAt time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimitPolicy(perSecond float64, burst int, clock clockwork.Clock) *RateLimitPolicy {
	return &RateLimitPolicy{
		clock:     clock,
		rate:      rate.Limit(perSecond),
		burst:     burst,
		limiters:  make(map[string]*limiterEntry),
		cleanupAt: clock.Now().Add(limiterCleanupInterval),
	}
}

func (p *RateLimitPolicy) Evaluate(_ context.Context, req Request) (Decision, error) {
	if p.allow(req.RemoteIP) {
		return Allow(), nil
	}
	return Deny(ReasonRateLimited), nil
}

func (p *RateLimitPolicy) allow(ip string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	if now.After(p.cleanupAt) {
		p.cleanup(now)
		p.cleanupAt = now.Add(limiterCleanupInterval)
	}

	entry, ok := p.limiters[ip]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(p.rate, p.burst)}
		p.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// cleanup must be called with mu held.
func (p *RateLimitPolicy) cleanup(now time.Time) {
	cutoff := now.Add(-limiterIdleTTL)
	for ip, entry := range p.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(p.limiters, ip)
		}
	}
}

// ActiveLimiters returns the number of tracked IPs.
func (p *RateLimitPolicy) ActiveLimiters() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.limiters)
}
