package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/twx0504/sportz-websockets/internal/adapter/httpserver"
	"github.com/twx0504/sportz-websockets/internal/adapter/metrics"
	"github.com/twx0504/sportz-websockets/internal/adapter/postgres"
	"github.com/twx0504/sportz-websockets/internal/adapter/redis"
	"github.com/twx0504/sportz-websockets/internal/admission"
	"github.com/twx0504/sportz-websockets/internal/platform/config"
	"github.com/twx0504/sportz-websockets/internal/platform/logging"
	"github.com/twx0504/sportz-websockets/internal/platform/version"
	"github.com/twx0504/sportz-websockets/internal/realtime"
)

type shutdownDeps struct {
	srv          *httpserver.Server
	hub          *realtime.Hub
	stopListener context.CancelFunc
	listenerDone *sync.WaitGroup
	timeout      time.Duration
}

func runGracefulShutdown(d shutdownDeps) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		d.stopListener()
		d.listenerDone.Wait()

		if err := d.hub.Stop(shutdownCtx); err != nil {
			slog.Error("Hub shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	if cfg.DatabaseURL == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	return pool
}

func setupRedis(ctx context.Context, cfg *config.Config, m *metrics.RedisMetrics) *goredis.Client {
	if cfg.RedisURL == "" {
		return nil
	}

	client, err := redis.NewClient(ctx, cfg.RedisURL, redis.NewMetricsHook(m), redis.NewCircuitBreakerHook(m))
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

// buildPolicy assembles the admission chain in the configured order. With
// no names configured the gate admits everything.
func buildPolicy(cfg *config.Config, rdb *goredis.Client, clock clockwork.Clock) admission.Policy {
	names := cfg.Policies()
	if len(names) == 0 {
		return nil
	}

	chain := make(admission.Chain, 0, len(names))
	for _, name := range names {
		switch name {
		case config.PolicyShield:
			chain = append(chain, admission.NewShieldPolicy())
		case config.PolicyBot:
			chain = append(chain, admission.NewBotPolicy(admission.CategorySearchEngine, admission.CategoryPreview))
		case config.PolicyRateLimit:
			if rdb != nil {
				chain = append(chain, redis.NewRateLimitPolicy(rdb, clock, cfg.RateLimitPerSecond, cfg.RateLimitBurst))
			} else {
				chain = append(chain, admission.NewRateLimitPolicy(cfg.RateLimitPerSecond, cfg.RateLimitBurst, clock))
			}
		case config.PolicyCaps:
			chain = append(chain, admission.NewConnectionCaps(cfg.MaxConnections, cfg.MaxConnectionsPerIP))
		}
	}

	slog.Info("Admission policies enabled", "policies", names, "distributed_rate_limit", rdb != nil)
	return chain
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", info.Version, "commit", info.Commit)

	registry := metrics.NewRegistry()
	wsMetrics := metrics.NewWebSocketMetrics(registry)
	admissionMetrics := metrics.NewAdmissionMetrics(registry)
	httpMetrics := metrics.NewHTTPMetrics(registry)
	redisMetrics := metrics.NewRedisMetrics(registry)

	var healthChecks []httpserver.HealthCheck

	redisClient := setupRedis(context.Background(), cfg, redisMetrics)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		healthChecks = append(healthChecks, httpserver.HealthCheck{Name: "redis", Check: redis.Pinger(redisClient)})
	}

	pool := setupDB(cfg)
	if pool != nil {
		defer pool.Close()
		healthChecks = append(healthChecks, httpserver.HealthCheck{Name: "postgres", Check: pool.Ping})
	}

	hub := realtime.NewHub(realtime.HubConfig{
		HeartbeatInterval: cfg.HeartbeatInterval,
		MaxFrameSize:      cfg.MaxFrameSize,
		SendBufferSize:    cfg.SendBufferSize,
	}, clock, wsMetrics)

	gate := admission.NewGate(cfg.WebSocketPath, buildPolicy(cfg, redisClient, clock),
		admission.WithTimeout(cfg.AdmissionTimeout),
		admission.WithClock(clock),
		admission.WithMetrics(admissionMetrics),
	)

	listenerCtx, stopListener := context.WithCancel(context.Background())
	var listenerDone sync.WaitGroup
	if pool != nil {
		listener := postgres.NewListener(pool, hub.Notifier(), clock)
		listenerDone.Add(1)
		go func() {
			defer listenerDone.Done()
			if err := listener.Run(listenerCtx); err != nil {
				slog.Error("Notification listener stopped", "error", err)
			}
		}()
	}

	srv := httpserver.NewServer(cfg, httpserver.Dependencies{
		Gate:            gate,
		Hub:             hub,
		Notifier:        hub.Notifier(),
		MetricsRegistry: registry,
		HTTPMetrics:     httpMetrics,
		HealthChecks:    healthChecks,
	})

	done := runGracefulShutdown(shutdownDeps{
		srv:          srv,
		hub:          hub,
		stopListener: stopListener,
		listenerDone: &listenerDone,
		timeout:      cfg.ShutdownTimeout,
	})

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
