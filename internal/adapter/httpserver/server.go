package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/twx0504/sportz-websockets/internal/adapter/metrics"
	"github.com/twx0504/sportz-websockets/internal/admission"
	"github.com/twx0504/sportz-websockets/internal/domain"
	"github.com/twx0504/sportz-websockets/internal/platform/config"
	"github.com/twx0504/sportz-websockets/internal/realtime"
)

type admissionGate interface {
	Path() string
	Evaluate(ctx context.Context, req admission.Request) admission.Decision
}

type realtimeHub interface {
	Accept(transport realtime.Transport, remoteAddr string) (*realtime.Connection, error)
	Stats() realtime.Stats
	Stopped() bool
}

// Dependencies are the collaborators the server routes requests to.
type Dependencies struct {
	Gate            admissionGate
	Hub             realtimeHub
	Notifier        domain.Notifier
	MetricsRegistry *prometheus.Registry
	HTTPMetrics     *metrics.HTTPMetrics
	HealthChecks    []HealthCheck
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	gate     admissionGate
	hub      realtimeHub
	notifier domain.Notifier
	upgrader websocket.Upgrader

	metricsRegistry *prometheus.Registry
	httpMetrics     *metrics.HTTPMetrics
	healthChecks    []HealthCheck
	startTime       time.Time
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = newIPExtractor(cfg.Proxies())

	srv := &Server{
		echo:            e,
		config:          cfg,
		gate:            deps.Gate,
		hub:             deps.Hub,
		notifier:        deps.Notifier,
		metricsRegistry: deps.MetricsRegistry,
		httpMetrics:     deps.HTTPMetrics,
		healthChecks:    deps.HealthChecks,
		startTime:       time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     NewCheckOrigin(cfg.Origins()),
		},
	}

	srv.registerRoutes()

	return srv
}

// newIPExtractor reads the client address from the socket peer unless
// trusted proxies are configured. Forwarding headers from anyone else are
// ignored so they cannot pick the address admission policies key on.
func newIPExtractor(proxies []string) echo.IPExtractor {
	if len(proxies) == 0 {
		return echo.ExtractIPDirect()
	}

	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, proxy := range proxies {
		ipNet, err := config.ParseProxy(proxy)
		if err != nil {
			slog.Warn("Ignoring trusted proxy", "proxy", proxy, "error", err)
			continue
		}
		opts = append(opts, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(opts...)
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port, "ws_path", s.config.WebSocketPath)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests. Upgraded connections are hijacked and
// must be closed through the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
