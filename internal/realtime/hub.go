package realtime

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/twx0504/sportz-websockets/internal/adapter/metrics"
)

type HubConfig struct {
	HeartbeatInterval time.Duration
	MaxFrameSize      int64
	SendBufferSize    int
}

// Hub wires the table, router, registry and broadcaster together.
type Hub struct {
	table       *Table
	registry    *Registry
	broadcaster *Broadcaster
}

type Stats struct {
	Connections   int `json:"connections"`
	Topics        int `json:"topics"`
	Subscriptions int `json:"subscriptions"`
}

func NewHub(cfg HubConfig, clock clockwork.Clock, m *metrics.WebSocketMetrics) *Hub {
	m = orDiscard(m)
	table := NewTable(m)
	router := NewRouter(table, m)
	registry := NewRegistry(table, router, clock, RegistryOptions{
		HeartbeatInterval: cfg.HeartbeatInterval,
		MaxFrameSize:      cfg.MaxFrameSize,
		SendBufferSize:    cfg.SendBufferSize,
		Metrics:           m,
	})
	broadcaster := NewBroadcaster(registry, table, m)
	registry.onOpen = broadcaster.Greet

	return &Hub{table: table, registry: registry, broadcaster: broadcaster}
}

// Accept registers an upgraded connection. The welcome frame is queued
// before any other frame can reach it.
func (h *Hub) Accept(transport Transport, remoteAddr string) (*Connection, error) {
	return h.registry.Register(transport, remoteAddr)
}

// Notifier is the broadcast entry point for match and commentary events.
func (h *Hub) Notifier() *Broadcaster { return h.broadcaster }

func (h *Hub) Stats() Stats {
	return Stats{
		Connections:   h.registry.Count(),
		Topics:        h.table.TopicCount(),
		Subscriptions: h.table.SubscriptionCount(),
	}
}

func (h *Hub) Stopped() bool { return h.registry.Stopped() }

func (h *Hub) Stop(ctx context.Context) error {
	return h.registry.Stop(ctx)
}
