package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransportClosed = errors.New("transport closed")

// fakeTransport is an in-memory Transport. Inbound frames are fed with
// deliver; outbound frames are recorded.
type fakeTransport struct {
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu          sync.Mutex
	frames      [][]byte
	pings       int
	closeCodes  []int
	pongHandler func(string) error
	readLimit   int64
	blockWrites chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.inbound:
		return websocket.TextMessage, data, nil
	case <-f.closed:
		return 0, nil, errTransportClosed
	}
}

func (f *fakeTransport) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	block := f.blockWrites
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-f.closed:
			return errTransportClosed
		}
	}

	select {
	case <-f.closed:
		return errTransportClosed
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeTransport) WriteControl(messageType int, data []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch messageType {
	case websocket.PingMessage:
		f.pings++
	case websocket.CloseMessage:
		code := websocket.CloseNoStatusReceived
		if len(data) >= 2 {
			code = int(data[0])<<8 | int(data[1])
		}
		f.closeCodes = append(f.closeCodes, code)
	}
	return nil
}

func (f *fakeTransport) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeTransport) SetReadLimit(limit int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readLimit = limit
}

func (f *fakeTransport) SetPongHandler(h func(string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pongHandler = h
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) deliver(data string) {
	f.inbound <- []byte(data)
}

func (f *fakeTransport) pong() {
	f.mu.Lock()
	h := f.pongHandler
	f.mu.Unlock()
	_ = h("")
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeTransport) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

func (f *fakeTransport) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.frames...)
}

// frameTypes decodes the type tag of every written frame.
func (f *fakeTransport) frameTypes(t *testing.T) []string {
	t.Helper()
	var types []string
	for _, raw := range f.written() {
		var head struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(raw, &head))
		types = append(types, head.Type)
	}
	return types
}

func waitForFrames(t *testing.T, f *fakeTransport, n int) [][]byte {
	t.Helper()
	assert.Eventually(t, func() bool { return len(f.written()) >= n }, time.Second, 5*time.Millisecond)
	return f.written()
}
