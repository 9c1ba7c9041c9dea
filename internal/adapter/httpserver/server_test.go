package httpserver

import (
	"context"
	"sync"
	"testing"

	"github.com/twx0504/sportz-websockets/internal/adapter/metrics"
	"github.com/twx0504/sportz-websockets/internal/admission"
	"github.com/twx0504/sportz-websockets/internal/domain"
	"github.com/twx0504/sportz-websockets/internal/platform/config"
	"github.com/twx0504/sportz-websockets/internal/realtime"
)

type recordingNotifier struct {
	mu         sync.Mutex
	matches    []domain.Match
	commentary []domain.Commentary
}

func (n *recordingNotifier) NotifyMatchCreated(_ context.Context, m domain.Match) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.matches = append(n.matches, m)
}

func (n *recordingNotifier) NotifyCommentary(_ context.Context, c domain.Commentary) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.commentary = append(n.commentary, c)
}

type stubHub struct {
	stats   realtime.Stats
	stopped bool
}

func (h *stubHub) Accept(realtime.Transport, string) (*realtime.Connection, error) {
	return nil, realtime.ErrRegistryStopped
}

func (h *stubHub) Stats() realtime.Stats { return h.stats }

func (h *stubHub) Stopped() bool { return h.stopped }

type testServerOption func(*config.Config, *Dependencies)

func withHealthChecks(checks ...HealthCheck) testServerOption {
	return func(_ *config.Config, d *Dependencies) { d.HealthChecks = checks }
}

func withNotifyToken(token string) testServerOption {
	return func(c *config.Config, _ *Dependencies) { c.NotifyToken = token }
}

func withPolicy(p admission.Policy) testServerOption {
	return func(c *config.Config, d *Dependencies) { d.Gate = admission.NewGate(c.WebSocketPath, p) }
}

func withHub(h realtimeHub) testServerOption {
	return func(_ *config.Config, d *Dependencies) { d.Hub = h }
}

func withNotifier(n domain.Notifier) testServerOption {
	return func(_ *config.Config, d *Dependencies) { d.Notifier = n }
}

func withTrustedProxies(proxies string) testServerOption {
	return func(c *config.Config, _ *Dependencies) { c.TrustedProxies = proxies }
}

func withHTTPMetrics(m *metrics.HTTPMetrics) testServerOption {
	return func(_ *config.Config, d *Dependencies) { d.HTTPMetrics = m }
}

func withOrigins(origins string) testServerOption {
	return func(c *config.Config, _ *Dependencies) { c.AllowedOrigins = origins }
}

func newTestServer(t *testing.T, opts ...testServerOption) (*Server, *recordingNotifier) {
	t.Helper()

	cfg := &config.Config{
		AppEnv:        "test",
		Port:          "0",
		WebSocketPath: "/ws",
	}
	notifier := &recordingNotifier{}
	deps := Dependencies{
		Gate:     admission.NewGate(cfg.WebSocketPath, nil),
		Hub:      &stubHub{},
		Notifier: notifier,
	}
	for _, opt := range opts {
		opt(cfg, &deps)
	}

	return NewServer(cfg, deps), notifier
}
