package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/twx0504/sportz-websockets/internal/adapter/metrics"
	apperrors "github.com/twx0504/sportz-websockets/internal/platform/errors"
)

const (
	notifyRatePerSecond = 50
	notifyBurst         = 100
)

func (s *Server) registerRoutes() {
	s.echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		RequestIDHandler: correlationHandler,
	}))
	s.echo.Use(s.setupRequestLoggerMiddleware())
	s.echo.Use(middleware.Recover())
	if s.httpMetrics != nil {
		s.echo.Use(s.httpMetrics.Middleware())
	}
	s.echo.Use(ErrorHandlingMiddleware())
	s.echo.Use(s.upgradeMiddleware)

	s.registerHealthRoutes()
	s.registerWebSocketRoutes()
	s.registerEventRoutes()
	s.echo.RouteNotFound("/*", handleRouteNotFound)

	if s.metricsRegistry != nil {
		s.echo.GET("/metrics", echo.WrapHandler(metrics.Handler(s.metricsRegistry)))
	}
}

func handleRouteNotFound(c echo.Context) error {
	return apperrors.NotFoundError("route not found").WithField("uri", c.Request().RequestURI)
}

func (s *Server) setupRequestLoggerMiddleware() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		LogRemoteIP: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
