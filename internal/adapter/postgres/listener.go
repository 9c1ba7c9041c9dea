package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/twx0504/sportz-websockets/internal/domain"
	"github.com/twx0504/sportz-websockets/internal/platform/logging"
	"github.com/twx0504/sportz-websockets/internal/platform/retry"
)

// Channels the CRUD layer notifies on after a write commits. Payloads are
// the match or commentary row as JSON, forwarded to clients unchanged.
const (
	ChannelMatchCreated      = "match_created"
	ChannelCommentaryCreated = "commentary_created"
)

var defaultReconnectPolicy = retry.Policy{
	InitialBackoff: time.Second,
	MaxBackoff:     30 * time.Second,
}

// Listener forwards Postgres notifications to a domain.Notifier. It holds
// one pooled connection for LISTEN and reconnects with backoff when it is
// lost.
type Listener struct {
	pool     *pgxpool.Pool
	notifier domain.Notifier
	clock    clockwork.Clock
	policy   retry.Policy
}

func NewListener(pool *pgxpool.Pool, notifier domain.Notifier, clock clockwork.Clock) *Listener {
	policy := defaultReconnectPolicy
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Notification listener reconnecting", "attempt", attempt, "backoff", backoff, "error", err)
	}
	return &Listener{pool: pool, notifier: notifier, clock: clock, policy: policy}
}

// Run listens until ctx is cancelled. It returns nil on cancellation.
func (l *Listener) Run(ctx context.Context) error {
	for {
		var conn *pgxpool.Conn
		err := retry.Do(ctx, l.clock, l.policy, func(ctx context.Context) error {
			c, err := l.listen(ctx)
			if err != nil {
				return err
			}
			conn = c
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		slog.Info("Notification listener started", "channels", []string{ChannelMatchCreated, ChannelCommentaryCreated})
		err = l.receive(ctx, conn.Conn())
		// the session may still hold LISTEN state; never return it to the pool
		_ = conn.Hijack().Close(context.Background())

		if ctx.Err() != nil {
			slog.Info("Notification listener stopped")
			return nil
		}
		slog.Warn("Notification listener connection lost", "error", err)
	}
}

func (l *Listener) listen(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire listener connection: %w", err)
	}

	for _, channel := range []string{ChannelMatchCreated, ChannelCommentaryCreated} {
		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
			conn.Release()
			return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
		}
	}
	return conn, nil
}

func (l *Listener) receive(ctx context.Context, conn *pgx.Conn) error {
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.dispatch(ctx, n)
	}
}

func (l *Listener) dispatch(ctx context.Context, n *pgconn.Notification) {
	ctx = logging.WithCorrelationID(ctx, logging.NewCorrelationID())

	if err := Dispatch(ctx, l.notifier, n.Channel, []byte(n.Payload)); err != nil {
		slog.WarnContext(ctx, "Dropping notification", "channel", n.Channel, "error", err)
	}
}

var ErrUnknownChannel = errors.New("unknown notification channel")

// Dispatch routes payload according to channel. The payload itself is
// forwarded unchanged; only its routing fields are read.
func Dispatch(ctx context.Context, notifier domain.Notifier, channel string, payload []byte) error {
	switch channel {
	case ChannelMatchCreated:
		match, err := domain.ParseMatch(payload)
		if err != nil {
			return err
		}
		notifier.NotifyMatchCreated(ctx, match)

	case ChannelCommentaryCreated:
		commentary, err := domain.ParseCommentary(payload)
		if err != nil {
			return err
		}
		notifier.NotifyCommentary(ctx, commentary)

	default:
		return fmt.Errorf("%w: %s", ErrUnknownChannel, channel)
	}
	return nil
}
