package realtime

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/twx0504/sportz-websockets/internal/adapter/metrics"
)

const (
	writeDeadline     = 5 * time.Second
	closeFrameTimeout = time.Second
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// Connection is one accepted client. It is created and destroyed only by
// the Registry; other components hold it as an opaque handle.
type Connection struct {
	id         uuid.UUID
	remoteAddr string
	transport  Transport

	alive  atomic.Bool
	closed atomic.Bool

	// topics is guarded by the owning Table's mutex.
	topics map[int64]struct{}

	sendCh    chan []byte
	pingCh    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	reason    string
}

func newConnection(transport Transport, remoteAddr string, bufferSize int) *Connection {
	c := &Connection{
		id:         uuid.New(),
		remoteAddr: remoteAddr,
		transport:  transport,
		topics:     make(map[int64]struct{}),
		sendCh:     make(chan []byte, bufferSize),
		pingCh:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	c.alive.Store(true)
	return c
}

func (c *Connection) ID() uuid.UUID { return c.id }

func (c *Connection) RemoteAddr() string { return c.remoteAddr }

// IsOpen reports whether frames may still be enqueued.
func (c *Connection) IsOpen() bool { return !c.closed.Load() }

// Done is closed once the connection has been shut down.
func (c *Connection) Done() <-chan struct{} { return c.done }

// send enqueues a complete text frame without blocking. A full buffer means
// the client cannot keep up; it is shut down and its reader deregisters it.
func (c *Connection) send(frame []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case c.sendCh <- frame:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		c.shutdown(metrics.CloseReasonSlow, 0)
		return ErrSendBufferFull
	}
}

// ping asks the writer to send a probe. Pending probes coalesce.
func (c *Connection) ping() {
	select {
	case c.pingCh <- struct{}{}:
	default:
	}
}

// writeLoop is the only goroutine that calls WriteMessage. A panicking
// transport takes down this connection only.
func (c *Connection) writeLoop() {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Connection writer panicked", "connection_id", c.id, "panic", fmt.Sprint(p))
			c.shutdown(metrics.CloseReasonServer, 0)
		}
	}()

	for {
		select {
		case frame := <-c.sendCh:
			_ = c.transport.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.transport.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.shutdown(metrics.CloseReasonClient, 0)
				return
			}
		case <-c.pingCh:
			if err := c.transport.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				c.shutdown(metrics.CloseReasonClient, 0)
				return
			}
		case <-c.done:
			return
		}
	}
}

// shutdown marks the connection closed, stops the writer and closes the
// transport, which unblocks the reader. A non-zero code sends a close frame
// first. Only the first call has any effect; its reason is kept.
func (c *Connection) shutdown(reason string, code int) bool {
	first := false
	c.closeOnce.Do(func() {
		first = true
		c.reason = reason
		c.closed.Store(true)
		close(c.done)
		defer func() { _ = c.transport.Close() }()

		if code != 0 {
			msg := websocket.FormatCloseMessage(code, closeText(code))
			_ = c.transport.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeFrameTimeout))
		}
	})
	return first
}

// closeReason is only meaningful after shutdown has returned.
func (c *Connection) closeReason() string { return c.reason }

func closeText(code int) string {
	switch code {
	case websocket.CloseGoingAway:
		return "server shutting down"
	case websocket.CloseNormalClosure:
		return "closed by server"
	default:
		return ""
	}
}
