package realtime

import (
	"context"
	"log/slog"

	"github.com/twx0504/sportz-websockets/internal/adapter/metrics"
	"github.com/twx0504/sportz-websockets/internal/domain"
)

const (
	modeAll   = "all"
	modeTopic = "topic"
)

// Broadcaster fans events out to connections. Each event is encoded once and
// the same bytes are enqueued to every recipient; delivery never blocks.
type Broadcaster struct {
	registry *Registry
	table    *Table
	metrics  *metrics.WebSocketMetrics
}

func NewBroadcaster(registry *Registry, table *Table, m *metrics.WebSocketMetrics) *Broadcaster {
	return &Broadcaster{registry: registry, table: table, metrics: orDiscard(m)}
}

// BroadcastAll enqueues event to every open connection and returns the
// number of recipients.
func (b *Broadcaster) BroadcastAll(event Event) int {
	conns := b.registry.Connections()
	if len(conns) == 0 {
		return 0
	}

	frame, err := event.encode()
	if err != nil {
		slog.Error("Failed to encode broadcast", "type", event.Type, "error", err)
		return 0
	}
	return b.deliver(conns, frame, event.Type, modeAll)
}

// BroadcastTopic enqueues event to the topic's open subscribers. A topic
// without subscribers costs nothing, not even the encoding.
func (b *Broadcaster) BroadcastTopic(topicID int64, event Event) int {
	subs := b.table.SubscribersOf(topicID)
	if len(subs) == 0 {
		return 0
	}

	frame, err := event.encode()
	if err != nil {
		slog.Error("Failed to encode broadcast", "type", event.Type, "match_id", topicID, "error", err)
		return 0
	}
	return b.deliver(subs, frame, event.Type, modeTopic)
}

func (b *Broadcaster) deliver(conns []*Connection, frame []byte, frameType, mode string) int {
	sent := 0
	for _, c := range conns {
		if !c.IsOpen() {
			continue
		}
		if err := c.send(frame); err != nil {
			slog.Debug("Dropped frame", "connection_id", c.id, "type", frameType, "error", err)
			continue
		}
		sent++
	}

	b.metrics.FramesSent.WithLabelValues(frameType).Add(float64(sent))
	b.metrics.BroadcastRecipients.WithLabelValues(mode).Observe(float64(sent))
	return sent
}

// Greet enqueues the welcome frame. The registry runs it as OnOpen so the
// welcome is always a client's first frame.
func (b *Broadcaster) Greet(c *Connection) {
	if err := c.send(welcomeFrame); err != nil {
		return
	}
	b.metrics.FramesSent.WithLabelValues(FrameWelcome).Inc()
}

func (b *Broadcaster) NotifyMatchCreated(ctx context.Context, match domain.Match) {
	n := b.BroadcastAll(Event{Type: FrameMatchCreated, Data: match.Raw})
	slog.DebugContext(ctx, "Match created broadcast", "match_id", match.ID, "recipients", n)
}

func (b *Broadcaster) NotifyCommentary(ctx context.Context, commentary domain.Commentary) {
	if err := commentary.Validate(); err != nil {
		slog.WarnContext(ctx, "Dropping commentary without a valid match", "commentary_id", commentary.ID, "error", err)
		return
	}
	n := b.BroadcastTopic(commentary.MatchID, Event{Type: FrameCommentary, Data: commentary.Raw})
	slog.DebugContext(ctx, "Commentary broadcast", "match_id", commentary.MatchID, "recipients", n)
}

var _ domain.Notifier = (*Broadcaster)(nil)
