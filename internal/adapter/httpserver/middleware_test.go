package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apperrors "github.com/twx0504/sportz-websockets/internal/platform/errors"
	"github.com/twx0504/sportz-websockets/internal/platform/logging"
)

func runMiddleware(t *testing.T, h echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/test", nil), rec)

	require.NoError(t, ErrorHandlingMiddleware()(h)(c))
	return rec
}

func decodeErrorResponse(t *testing.T, rec *httptest.ResponseRecorder) apperrors.ErrorResponse {
	t.Helper()
	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestErrorHandlingMiddleware_StructuredError(t *testing.T) {
	rec := runMiddleware(t, func(echo.Context) error {
		return apperrors.ValidationError("invalid input").WithField("field", "matchId")
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeErrorResponse(t, rec)
	assert.Equal(t, "invalid input", resp.Error)
	assert.Equal(t, apperrors.TypeValidation, resp.Type)
	assert.Equal(t, "matchId", resp.Context["field"])
}

func TestErrorHandlingMiddleware_PlainErrorIsInternal(t *testing.T) {
	rec := runMiddleware(t, func(echo.Context) error {
		return errors.New("database exploded")
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeErrorResponse(t, rec)
	assert.Equal(t, "internal server error", resp.Error)
	assert.NotContains(t, rec.Body.String(), "exploded")
}

func TestErrorHandlingMiddleware_PassesSuccess(t *testing.T) {
	rec := runMiddleware(t, func(c echo.Context) error {
		return c.String(http.StatusOK, "success")
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", rec.Body.String())
}

func TestErrorHandlingMiddleware_LeavesEchoErrors(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/test", nil), httptest.NewRecorder())

	err := ErrorHandlingMiddleware()(func(echo.Context) error {
		return echo.ErrMethodNotAllowed
	})(c)

	assert.ErrorIs(t, err, echo.ErrMethodNotAllowed)
}

func TestErrorHandlingMiddleware_Statuses(t *testing.T) {
	tests := []struct {
		err        *apperrors.Error
		wantStatus int
	}{
		{apperrors.ValidationError("invalid"), http.StatusBadRequest},
		{apperrors.UnauthorizedError("no token"), http.StatusUnauthorized},
		{apperrors.NotFoundError("missing"), http.StatusNotFound},
		{apperrors.InternalError("failed", errors.New("cause")), http.StatusInternalServerError},
		{apperrors.UnavailableError("redis down", errors.New("refused")), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(string(tt.err.Type), func(t *testing.T) {
			rec := runMiddleware(t, func(echo.Context) error { return tt.err })

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.err.Type, decodeErrorResponse(t, rec).Type)
		})
	}
}

func TestWrapHTTPError(t *testing.T) {
	tests := []struct {
		name        string
		httpErr     *echo.HTTPError
		wantType    apperrors.ErrorType
		wantMessage string
	}{
		{"bad request", echo.NewHTTPError(http.StatusBadRequest, "bad body"), apperrors.TypeValidation, "bad body"},
		{"unsupported media", echo.NewHTTPError(http.StatusUnsupportedMediaType), apperrors.TypeValidation, "Unsupported Media Type"},
		{"unauthorized", echo.NewHTTPError(http.StatusUnauthorized, "nope"), apperrors.TypeUnauthorized, "nope"},
		{"not found", echo.NewHTTPError(http.StatusNotFound, "not found"), apperrors.TypeNotFound, "not found"},
		{"too many requests", echo.NewHTTPError(http.StatusTooManyRequests), apperrors.TypeRateLimited, "Too Many Requests"},
		{"unavailable", echo.NewHTTPError(http.StatusServiceUnavailable, "later"), apperrors.TypeUnavailable, "later"},
		{"non-string message", echo.NewHTTPError(http.StatusInternalServerError, 12345), apperrors.TypeInternal, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WrapHTTPError(tt.httpErr)

			assert.Equal(t, tt.wantType, err.Type)
			assert.Equal(t, tt.wantMessage, err.Message)
		})
	}
}

func TestWrapHTTPError_KeepsInternalCause(t *testing.T) {
	cause := errors.New("underlying cause")
	httpErr := echo.NewHTTPError(http.StatusBadRequest, "wrapped").SetInternal(cause)

	err := WrapHTTPError(httpErr)

	assert.ErrorIs(t, err, cause)
}

func TestCorrelationHandler(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/test", nil), httptest.NewRecorder())

	correlationHandler(c, "req-123")

	id, ok := logging.CorrelationID(c.Request().Context())
	assert.True(t, ok)
	assert.Equal(t, "req-123", id)
}
