package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	apperrors "github.com/twx0504/sportz-websockets/internal/platform/errors"
	"golang.org/x/time/rate"
)

const notifyLimiterExpiry = 5 * time.Minute

// newRateLimiter limits the notify API per caller IP. Upgrade requests are
// limited by the admission gate instead.
func newRateLimiter(ratePerSecond float64, burst int) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: notifyLimiterExpiry,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return HandleError(c, apperrors.InternalError("rate limiter unavailable", err))
		},
		DenyHandler: func(c echo.Context, identifier string, _ error) error {
			return HandleError(c, apperrors.RateLimitedError("rate limit exceeded").
				WithField("caller", identifier))
		},
	})
}
