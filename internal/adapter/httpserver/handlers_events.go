package httpserver

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/twx0504/sportz-websockets/internal/domain"
	"github.com/twx0504/sportz-websockets/internal/realtime"
	apperrors "github.com/twx0504/sportz-websockets/internal/platform/errors"
)

const notifyBodyLimit = "256K"

type acceptedResponse struct {
	Status string `json:"status"`
}

// registerEventRoutes exposes the notifier to the CRUD service over HTTP.
func (s *Server) registerEventRoutes() {
	g := s.echo.Group("/internal/events",
		newRateLimiter(notifyRatePerSecond, notifyBurst),
		middleware.BodyLimit(notifyBodyLimit),
		s.requireRunningHub,
	)
	if s.config.NotifyToken != "" {
		g.Use(s.notifyTokenMiddleware())
	}

	g.POST("/match-created", s.handleMatchCreated)
	g.POST("/commentary", s.handleCommentary)
}

// requireRunningHub refuses events once the hub has stopped, since no
// connection is left to deliver them to.
func (s *Server) requireRunningHub(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.hub.Stopped() {
			return apperrors.UnavailableError("realtime hub is stopped", realtime.ErrRegistryStopped)
		}
		return next(c)
	}
}

func (s *Server) notifyTokenMiddleware() echo.MiddlewareFunc {
	token := []byte(s.config.NotifyToken)
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(key string, _ echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), token) == 1, nil
		},
		ErrorHandler: func(err error, _ echo.Context) error {
			return apperrors.UnauthorizedError("invalid or missing notify token")
		},
	})
}

func (s *Server) handleMatchCreated(c echo.Context) error {
	body, err := readJSONBody(c)
	if err != nil {
		return err
	}

	match, err := domain.ParseMatch(body)
	if err != nil {
		return recordError(err, "match id must be a positive integer")
	}

	s.notifier.NotifyMatchCreated(c.Request().Context(), match)
	return c.JSON(http.StatusAccepted, acceptedResponse{Status: "accepted"})
}

func (s *Server) handleCommentary(c echo.Context) error {
	body, err := readJSONBody(c)
	if err != nil {
		return err
	}

	commentary, err := domain.ParseCommentary(body)
	if err != nil {
		return recordError(err, "matchId must be a positive integer")
	}

	s.notifier.NotifyCommentary(c.Request().Context(), commentary)
	return c.JSON(http.StatusAccepted, acceptedResponse{Status: "accepted"})
}

// readJSONBody returns the raw request body. Records are forwarded to
// clients as received, so the body is never bound to a struct.
func readJSONBody(c echo.Context) ([]byte, error) {
	req := c.Request()
	if !strings.HasPrefix(req.Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		return nil, WrapHTTPError(echo.ErrUnsupportedMediaType)
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			return nil, WrapHTTPError(httpErr)
		}
		return nil, apperrors.ValidationError("failed to read request body")
	}
	return body, nil
}

func recordError(err error, invalidIDMessage string) *apperrors.Error {
	if errors.Is(err, domain.ErrInvalidMatchID) {
		return apperrors.ValidationError(invalidIDMessage)
	}
	return apperrors.ValidationError("invalid request body").WithField("reason", err.Error())
}
