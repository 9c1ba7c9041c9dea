package realtime

import (
	"encoding/json"
	"log/slog"

	"github.com/twx0504/sportz-websockets/internal/adapter/metrics"
)

// Router interprets inbound frames. Anything that is not valid JSON earns an
// error reply; valid JSON that is not a known command is ignored.
type Router struct {
	table   *Table
	metrics *metrics.WebSocketMetrics
}

func NewRouter(table *Table, m *metrics.WebSocketMetrics) *Router {
	return &Router{table: table, metrics: orDiscard(m)}
}

func (rt *Router) HandleFrame(c *Connection, data []byte) {
	if !json.Valid(data) {
		rt.metrics.DecodeErrors.Inc()
		rt.reply(c, FrameError, invalidJSONFrame)
		return
	}

	var msg inboundFrame
	if err := json.Unmarshal(data, &msg); err != nil {
		// valid JSON, wrong shape
		return
	}

	switch msg.Type {
	case CommandSubscribe:
		matchID, ok := parseMatchID(msg.MatchID)
		if !ok {
			return
		}
		if rt.table.Subscribe(matchID, c) {
			slog.Debug("Subscribed", "connection_id", c.id, "match_id", matchID)
		}
		rt.reply(c, FrameSubscribed, encodeSubscribed(matchID))

	case CommandUnsubscribe:
		matchID, ok := parseMatchID(msg.MatchID)
		if !ok {
			return
		}
		if rt.table.Unsubscribe(matchID, c) {
			slog.Debug("Unsubscribed", "connection_id", c.id, "match_id", matchID)
		}
	}
}

func (rt *Router) reply(c *Connection, frameType string, frame []byte) {
	if err := c.send(frame); err != nil {
		return
	}
	rt.metrics.FramesSent.WithLabelValues(frameType).Inc()
}

var _ FrameHandler = (*Router)(nil)
