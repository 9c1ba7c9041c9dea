package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"github.com/twx0504/sportz-websockets/internal/adapter/metrics"
)

const (
	defaultTimeout        = 2 * time.Second
	breakerOpenDuration   = 30 * time.Second
	breakerFailureTrigger = 5
)

// Gate is the single admission entry point for the upgrade endpoint.
type Gate struct {
	path    string
	policy  Policy
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	clock   clockwork.Clock
	metrics *metrics.AdmissionMetrics
}

type GateOption func(*Gate)

// WithTimeout bounds a single policy evaluation.
func WithTimeout(d time.Duration) GateOption {
	return func(g *Gate) { g.timeout = d }
}

func WithClock(clock clockwork.Clock) GateOption {
	return func(g *Gate) { g.clock = clock }
}

func WithMetrics(m *metrics.AdmissionMetrics) GateOption {
	return func(g *Gate) { g.metrics = m }
}

// WithBreakerSettings replaces the default circuit breaker around policy
// evaluation. OnStateChange is wrapped to keep the state gauge current.
func WithBreakerSettings(st gobreaker.Settings) GateOption {
	return func(g *Gate) { g.breaker = g.newBreaker(st) }
}

// NewGate creates a gate for path. A nil policy admits every request that
// targets path.
func NewGate(path string, policy Policy, opts ...GateOption) *Gate {
	g := &Gate{
		path:    path,
		policy:  policy,
		timeout: defaultTimeout,
		clock:   clockwork.NewRealClock(),
		metrics: metrics.NewAdmissionMetrics(prometheus.NewRegistry()),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.breaker == nil {
		g.breaker = g.newBreaker(gobreaker.Settings{
			Name:    "admission-policy",
			Timeout: breakerOpenDuration,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerFailureTrigger
			},
		})
	}
	return g
}

func (g *Gate) newBreaker(st gobreaker.Settings) *gobreaker.CircuitBreaker {
	next := st.OnStateChange
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		slog.Warn("Circuit breaker state changed", "component", name, "from", from.String(), "to", to.String())
		g.metrics.BreakerState.Set(breakerStateValue(to))
		if next != nil {
			next(name, from, to)
		}
	}
	return gobreaker.NewCircuitBreaker(st)
}

func (g *Gate) Path() string { return g.path }

// Evaluate decides on req. It has no side effects on connection state; an
// allowed decision must be released by the caller once the connection (or
// the failed upgrade) is over.
func (g *Gate) Evaluate(ctx context.Context, req Request) Decision {
	if req.Path != g.path {
		return g.record(Deny(ReasonNotFound))
	}
	if g.policy == nil {
		return g.record(Allow())
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := g.clock.Now()
	result, err := g.breaker.Execute(func() (any, error) {
		d, err := g.policy.Evaluate(ctx, req)
		if err != nil {
			return nil, err
		}
		return d, nil
	})
	g.metrics.EvaluationSeconds.Observe(g.clock.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("policy backend unavailable: %w", err)
		}
		slog.ErrorContext(ctx, "Admission policy failed", "remote_ip", req.RemoteIP, "error", err)
		return g.record(Deny(ReasonPolicyError))
	}

	d := result.(Decision)
	if !d.Allowed {
		slog.InfoContext(ctx, "Admission denied", "remote_ip", req.RemoteIP, "reason", d.Reason)
	}
	return g.record(d)
}

func (g *Gate) record(d Decision) Decision {
	g.metrics.Decisions.WithLabelValues(string(d.Reason)).Inc()
	return d
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
