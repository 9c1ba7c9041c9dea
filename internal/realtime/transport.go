package realtime

import (
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the part of *websocket.Conn a Connection needs.
// WriteControl and Close may be called concurrently with the other methods.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

var _ Transport = (*websocket.Conn)(nil)
