package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/twx0504/sportz-websockets/internal/admission"
)

type rejectionResponse struct {
	Error  string           `json:"error"`
	Reason admission.Reason `json:"reason"`
}

func (s *Server) registerWebSocketRoutes() {
	s.echo.GET(s.config.WebSocketPath, s.handleWebSocket)
}

// upgradeMiddleware sends every upgrade attempt through the admission gate,
// whatever path it targets, so unknown paths are refused by the gate too.
func (s *Server) upgradeMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !websocket.IsWebSocketUpgrade(c.Request()) {
			return next(c)
		}
		return s.handleWebSocket(c)
	}
}

func (s *Server) handleWebSocket(c echo.Context) error {
	r := c.Request()
	ctx := r.Context()

	req := admission.NewRequest(r)
	req.RemoteIP = c.RealIP()

	decision := s.gate.Evaluate(ctx, req)
	if !decision.Allowed {
		return rejectUpgrade(c, decision)
	}

	conn, err := s.upgrader.Upgrade(c.Response(), r, nil)
	if err != nil {
		// the upgrader has already answered the request
		decision.Release()
		slog.DebugContext(ctx, "WebSocket upgrade failed", "remote_ip", req.RemoteIP, "error", err)
		return nil
	}
	markUpgraded(c.Response())

	client, err := s.hub.Accept(conn, req.RemoteIP)
	if err != nil {
		decision.Release()
		slog.WarnContext(ctx, "WebSocket connection refused", "remote_ip", req.RemoteIP, "error", err)
		return nil
	}

	go func() {
		<-client.Done()
		decision.Release()
	}()

	slog.InfoContext(ctx, "WebSocket connected", "connection_id", client.ID(), "remote_ip", req.RemoteIP)
	return nil
}

// markUpgraded records the hijacked handshake as 101 so the request logger
// and HTTP metrics report the status the client actually got.
func markUpgraded(res *echo.Response) {
	res.Status = http.StatusSwitchingProtocols
	res.Committed = true
}

// rejectUpgrade answers a refused handshake. The connection is closed after
// the response so the upgrade never completes.
func rejectUpgrade(c echo.Context, d admission.Decision) error {
	status := d.HTTPStatus()
	c.Response().Header().Set(echo.HeaderConnection, "close")
	return c.JSON(status, rejectionResponse{
		Error:  http.StatusText(status),
		Reason: d.Reason,
	})
}
