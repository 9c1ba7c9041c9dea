package realtime

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/twx0504/sportz-websockets/internal/adapter/metrics"
)

// Table maps match topics to subscribed connections. Both directions of the
// relation are updated under one lock so they never disagree, and a topic
// with no subscribers is removed.
type Table struct {
	mu      sync.RWMutex
	topics  map[int64]map[*Connection]struct{}
	pairs   int
	metrics *metrics.WebSocketMetrics
}

func NewTable(m *metrics.WebSocketMetrics) *Table {
	return &Table{
		topics:  make(map[int64]map[*Connection]struct{}),
		metrics: orDiscard(m),
	}
}

// Subscribe adds c to the topic. It reports whether a new pair was created;
// subscribing twice is a no-op. Closed connections are never added.
func (t *Table) Subscribe(topicID int64, c *Connection) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !c.IsOpen() {
		return false
	}
	if _, ok := c.topics[topicID]; ok {
		return false
	}

	subs, ok := t.topics[topicID]
	if !ok {
		subs = make(map[*Connection]struct{})
		t.topics[topicID] = subs
	}
	subs[c] = struct{}{}
	c.topics[topicID] = struct{}{}
	t.pairs++

	t.updateGauges()
	return true
}

// Unsubscribe removes c from the topic. It reports whether a pair existed.
func (t *Table) Unsubscribe(topicID int64, c *Connection) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.removeLocked(topicID, c) {
		return false
	}
	t.updateGauges()
	return true
}

// Cleanup removes c from every topic it belongs to and returns how many
// subscriptions were dropped.
func (t *Table) Cleanup(c *Connection) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for topicID := range c.topics {
		if t.removeLocked(topicID, c) {
			removed++
		}
	}
	if removed > 0 {
		t.updateGauges()
	}
	return removed
}

func (t *Table) removeLocked(topicID int64, c *Connection) bool {
	subs, ok := t.topics[topicID]
	if !ok {
		return false
	}
	if _, ok := subs[c]; !ok {
		return false
	}

	delete(subs, c)
	delete(c.topics, topicID)
	t.pairs--

	if len(subs) == 0 {
		delete(t.topics, topicID)
	}
	return true
}

// SubscribersOf returns a snapshot of the topic's subscribers.
func (t *Table) SubscribersOf(topicID int64) []*Connection {
	t.mu.RLock()
	defer t.mu.RUnlock()

	subs := t.topics[topicID]
	if len(subs) == 0 {
		return nil
	}
	out := make([]*Connection, 0, len(subs))
	for c := range subs {
		out = append(out, c)
	}
	return out
}

// SubscriptionsOf returns a snapshot of the topics c is subscribed to.
func (t *Table) SubscriptionsOf(c *Connection) []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]int64, 0, len(c.topics))
	for topicID := range c.topics {
		out = append(out, topicID)
	}
	return out
}

func (t *Table) TopicCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.topics)
}

func (t *Table) SubscriptionCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pairs
}

func (t *Table) updateGauges() {
	t.metrics.ActiveTopics.Set(float64(len(t.topics)))
	t.metrics.Subscriptions.Set(float64(t.pairs))
}

// orDiscard substitutes an unregistered metrics set so callers never check
// for nil.
func orDiscard(m *metrics.WebSocketMetrics) *metrics.WebSocketMetrics {
	if m != nil {
		return m
	}
	return metrics.NewWebSocketMetrics(prometheus.NewRegistry())
}
