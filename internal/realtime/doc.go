// Package realtime implements the live delivery core: the connection
// registry with its heartbeat, the per-match topic subscription table, the
// inbound message router and the broadcast engine.
//
// Each connection is a small actor: one reader goroutine decodes frames and
// dispatches them, one writer goroutine is the only caller of WriteMessage.
// Broadcasts never block; a frame is either enqueued or, when a client's
// buffer is full, the client is dropped.
package realtime
