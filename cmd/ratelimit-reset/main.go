package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/twx0504/sportz-websockets/internal/adapter/redis"
	"github.com/twx0504/sportz-websockets/internal/platform/logging"
)

func main() {
	var (
		redisURL = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL (or set REDIS_URL env)")
		ip       = flag.String("ip", "", "Only reset the bucket of this client IP (default: all)")
		dryRun   = flag.Bool("dry-run", false, "Dry run mode (don't write to Redis)")
		verbose  = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *redisURL == "" {
		log.Fatal("Redis URL required (--redis or REDIS_URL env)")
	}

	level := "info"
	if *verbose {
		level = "debug"
	}
	logging.InitLogger(level, "text")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	rdb, err := redis.NewClient(ctx, *redisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()
	slog.Info("Connected to Redis", "url", sanitizeURL(*redisURL))

	start := time.Now()
	n, err := redis.ResetRateLimits(ctx, rdb, *ip, *dryRun)
	if err != nil {
		log.Fatalf("Reset failed: %v", err)
	}

	slog.Info("Rate limit reset complete",
		"ip", *ip,
		"buckets", n,
		"dry_run", *dryRun,
		"duration_ms", time.Since(start).Milliseconds())
}

// sanitizeURL hides the password for logging.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
