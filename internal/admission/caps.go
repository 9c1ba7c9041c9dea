package admission

import (
	"context"
	"sync"
	"sync/atomic"
)

// ConnectionCaps bounds concurrent connections globally and per IP. An
// allowed decision holds one slot of each until it is released.
type ConnectionCaps struct {
	global *globalLimiter
	perIP  *ipLimiter
}

func NewConnectionCaps(maxTotal int64, maxPerIP int) *ConnectionCaps {
	return &ConnectionCaps{
		global: &globalLimiter{max: maxTotal},
		perIP:  &ipLimiter{ips: make(map[string]int), maxPer: maxPerIP},
	}
}

func (c *ConnectionCaps) Evaluate(_ context.Context, req Request) (Decision, error) {
	if !c.global.acquire() {
		return Deny(ReasonRateLimited), nil
	}
	if !c.perIP.acquire(req.RemoteIP) {
		c.global.release()
		return Deny(ReasonRateLimited), nil
	}

	ip := req.RemoteIP
	return AllowWithRelease(func() {
		c.perIP.release(ip)
		c.global.release()
	}), nil
}

// Current returns the number of held slots.
func (c *ConnectionCaps) Current() int64 {
	return c.global.current.Load()
}

// CountFor returns the number of held slots for ip.
func (c *ConnectionCaps) CountFor(ip string) int {
	return c.perIP.count(ip)
}

type globalLimiter struct {
	current atomic.Int64
	max     int64
}

func (l *globalLimiter) acquire() bool {
	for {
		current := l.current.Load()
		if current >= l.max {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (l *globalLimiter) release() {
	l.current.Add(-1)
}

type ipLimiter struct {
	mu     sync.Mutex
	ips    map[string]int
	maxPer int
}

func (l *ipLimiter) acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ips[ip] >= l.maxPer {
		return false
	}
	l.ips[ip]++
	return true
}

func (l *ipLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if count := l.ips[ip]; count > 1 {
		l.ips[ip] = count - 1
	} else {
		delete(l.ips, ip)
	}
}

func (l *ipLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ips[ip]
}
