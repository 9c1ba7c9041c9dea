package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Known admission policy names accepted in ADMISSION_POLICIES.
const (
	PolicyShield    = "shield"
	PolicyBot       = "bot"
	PolicyRateLimit = "ratelimit"
	PolicyCaps      = "caps"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8000"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	WebSocketPath     string        `env:"WS_PATH" default:"/ws"`
	MaxFrameSize      int64         `env:"MAX_FRAME_SIZE" default:"1048576"` // 1 MiB
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" default:"30s"`
	SendBufferSize    int           `env:"SEND_BUFFER_SIZE" default:"64"`
	AllowedOrigins    string        `env:"ALLOWED_ORIGINS"`
	TrustedProxies    string        `env:"TRUSTED_PROXIES"`

	AdmissionPolicies   string        `env:"ADMISSION_POLICIES"`
	AdmissionTimeout    time.Duration `env:"ADMISSION_TIMEOUT" default:"2s"`
	RateLimitPerSecond  float64       `env:"RATE_LIMIT_PER_SECOND" default:"5"`
	RateLimitBurst      int           `env:"RATE_LIMIT_BURST" default:"10"`
	MaxConnections      int64         `env:"MAX_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP int           `env:"MAX_CONNECTIONS_PER_IP" default:"20"`

	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`
	NotifyToken string `env:"NOTIFY_TOKEN"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Policies returns the normalized admission policy names. An empty result
// means admission is pass-through.
func (c *Config) Policies() []string {
	return splitList(c.AdmissionPolicies)
}

// Origins returns the allowed websocket origins. Empty allows every origin.
func (c *Config) Origins() []string {
	return splitList(c.AllowedOrigins)
}

// Proxies returns the IPs or CIDR ranges whose X-Forwarded-For is trusted.
// Empty means the socket peer address is the client address.
func (c *Config) Proxies() []string {
	return splitList(c.TrustedProxies)
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func validate(cfg *Config) error {
	if !strings.HasPrefix(cfg.WebSocketPath, "/") {
		return fmt.Errorf("WS_PATH must start with '/', got %q", cfg.WebSocketPath)
	}
	if cfg.MaxFrameSize <= 0 {
		return errors.New("MAX_FRAME_SIZE must be positive")
	}
	if cfg.HeartbeatInterval < time.Second {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be at least 1s, got %s", cfg.HeartbeatInterval)
	}
	if cfg.SendBufferSize <= 0 {
		return errors.New("SEND_BUFFER_SIZE must be positive")
	}
	if cfg.AdmissionTimeout <= 0 {
		return errors.New("ADMISSION_TIMEOUT must be positive")
	}

	for _, name := range cfg.Policies() {
		switch name {
		case PolicyShield, PolicyBot:
		case PolicyRateLimit:
			if cfg.RateLimitPerSecond <= 0 || cfg.RateLimitBurst <= 0 {
				return errors.New("RATE_LIMIT_PER_SECOND and RATE_LIMIT_BURST must be positive when ratelimit is enabled")
			}
		case PolicyCaps:
			if cfg.MaxConnections <= 0 || cfg.MaxConnectionsPerIP <= 0 {
				return errors.New("MAX_CONNECTIONS and MAX_CONNECTIONS_PER_IP must be positive when caps is enabled")
			}
		default:
			return fmt.Errorf("unknown admission policy %q", name)
		}
	}

	for _, proxy := range cfg.Proxies() {
		if _, err := ParseProxy(proxy); err != nil {
			return err
		}
	}

	if cfg.IsProduction() && cfg.NotifyToken == "" {
		return errors.New("NOTIFY_TOKEN is required in production")
	}

	return nil
}

// ParseProxy reads a TRUSTED_PROXIES entry. A bare IP is a single-address
// range.
func ParseProxy(entry string) (*net.IPNet, error) {
	if strings.Contains(entry, "/") {
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", entry, err)
		}
		return ipNet, nil
	}

	ip := net.ParseIP(entry)
	if ip == nil {
		return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q", entry)
	}
	bits := 8 * net.IPv6len
	if ip4 := ip.To4(); ip4 != nil {
		ip, bits = ip4, 8*net.IPv4len
	}
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
