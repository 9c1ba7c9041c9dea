package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/twx0504/sportz-websockets/internal/adapter/metrics"
)

const (
	defaultHeartbeatInterval = 30 * time.Second
	defaultMaxFrameSize      = 1 << 20
	defaultSendBufferSize    = 64
)

var ErrRegistryStopped = errors.New("registry stopped")

// FrameHandler receives every inbound data frame of a connection, in order,
// on that connection's reader goroutine.
type FrameHandler interface {
	HandleFrame(c *Connection, data []byte)
}

type RegistryOptions struct {
	HeartbeatInterval time.Duration
	MaxFrameSize      int64
	SendBufferSize    int

	// OnOpen runs before the connection becomes visible to broadcasts and
	// before its first frame is read.
	OnOpen func(c *Connection)

	Metrics *metrics.WebSocketMetrics
}

// Registry owns the set of live connections and runs the heartbeat. A
// connection that misses two consecutive probes is terminated.
type Registry struct {
	table   *Table
	handler FrameHandler
	clock   clockwork.Clock
	opts    RegistryOptions
	onOpen  func(c *Connection)
	metrics *metrics.WebSocketMetrics

	mu      sync.RWMutex
	conns   map[*Connection]struct{}
	stopped bool

	wg       sync.WaitGroup
	stopCh   chan struct{}
	loopDone chan struct{}
	stopOnce sync.Once
}

// NewRegistry creates a registry and starts its heartbeat loop.
func NewRegistry(table *Table, handler FrameHandler, clock clockwork.Clock, opts RegistryOptions) *Registry {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = defaultHeartbeatInterval
	}
	if opts.MaxFrameSize <= 0 {
		opts.MaxFrameSize = defaultMaxFrameSize
	}
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = defaultSendBufferSize
	}

	r := &Registry{
		table:    table,
		handler:  handler,
		clock:    clock,
		opts:     opts,
		onOpen:   opts.OnOpen,
		metrics:  orDiscard(opts.Metrics),
		conns:    make(map[*Connection]struct{}),
		stopCh:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	go r.run()
	return r
}

// Register wraps an upgraded transport, runs OnOpen and starts the
// connection's reader and writer.
func (r *Registry) Register(transport Transport, remoteAddr string) (*Connection, error) {
	c := newConnection(transport, remoteAddr, r.opts.SendBufferSize)
	transport.SetReadLimit(r.opts.MaxFrameSize)
	transport.SetPongHandler(func(string) error {
		r.OnHeartbeatResponse(c)
		return nil
	})

	if r.onOpen != nil {
		r.onOpen(c)
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		c.shutdown(metrics.CloseReasonShutdown, websocket.CloseGoingAway)
		return nil, ErrRegistryStopped
	}
	r.conns[c] = struct{}{}
	r.wg.Add(2)
	r.mu.Unlock()

	r.metrics.ConnectionsTotal.Inc()
	r.metrics.ActiveConnections.Inc()

	go func() {
		defer r.wg.Done()
		c.writeLoop()
	}()
	go r.readLoop(c)

	slog.Debug("Connection registered", "connection_id", c.id, "remote_addr", remoteAddr)
	return c, nil
}

func (r *Registry) readLoop(c *Connection) {
	defer r.wg.Done()
	defer r.remove(c, metrics.CloseReasonClient, 0)

	for {
		_, data, err := c.transport.ReadMessage()
		if err != nil {
			if c.IsOpen() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				slog.Debug("Connection read failed", "connection_id", c.id, "error", err)
			}
			return
		}
		r.handler.HandleFrame(c, data)
	}
}

// OnHeartbeatResponse marks c alive. It is wired as the pong handler.
func (r *Registry) OnHeartbeatResponse(c *Connection) {
	c.alive.Store(true)
}

// HeartbeatTick probes every live connection once. A connection whose
// previous probe went unanswered is terminated instead.
func (r *Registry) HeartbeatTick() {
	start := r.clock.Now()
	for _, c := range r.Connections() {
		r.probe(c)
	}
	r.metrics.HeartbeatDuration.Observe(r.clock.Since(start).Seconds())
}

func (r *Registry) probe(c *Connection) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Heartbeat probe panicked", "connection_id", c.id, "panic", fmt.Sprint(p))
			r.remove(c, metrics.CloseReasonHeartbeat, 0)
		}
	}()

	if !c.IsOpen() {
		return
	}
	if !c.alive.Swap(false) {
		slog.Info("Terminating unresponsive connection", "connection_id", c.id, "remote_addr", c.remoteAddr)
		r.remove(c, metrics.CloseReasonHeartbeat, 0)
		return
	}
	c.ping()
}

// Deregister closes c and removes every trace of it. Safe to call any
// number of times.
func (r *Registry) Deregister(c *Connection) {
	r.remove(c, metrics.CloseReasonServer, websocket.CloseNormalClosure)
}

func (r *Registry) remove(c *Connection, reason string, code int) {
	r.mu.Lock()
	_, ok := r.conns[c]
	delete(r.conns, c)
	r.mu.Unlock()

	// Cleanup runs after shutdown, even a panicking one, so a concurrent
	// Subscribe cannot re-add c.
	defer func() {
		dropped := r.table.Cleanup(c)
		if !ok {
			return
		}
		r.metrics.ActiveConnections.Dec()
		r.metrics.ConnectionsClosed.WithLabelValues(c.closeReason()).Inc()
		slog.Debug("Connection deregistered",
			"connection_id", c.id,
			"reason", c.closeReason(),
			"subscriptions_dropped", dropped)
	}()
	c.shutdown(reason, code)
}

// Stopped reports whether Stop has run; no connection is accepted after.
func (r *Registry) Stopped() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stopped
}

// Connections returns a snapshot of the live set.
func (r *Registry) Connections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Connection, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) run() {
	defer close(r.loopDone)

	ticker := r.clock.NewTicker(r.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			r.HeartbeatTick()
		case <-r.stopCh:
			return
		}
	}
}

// Stop halts the heartbeat, rejects new registrations and closes every
// connection with a going-away frame. It waits for all connection
// goroutines or until ctx is done.
func (r *Registry) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		<-r.loopDone

		r.mu.Lock()
		r.stopped = true
		r.mu.Unlock()

		conns := r.Connections()
		for _, c := range conns {
			r.remove(c, metrics.CloseReasonShutdown, websocket.CloseGoingAway)
		}
		slog.Info("Registry stopped", "connections_closed", len(conns))
	})

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for connections to drain: %w", ctx.Err())
	}
}
