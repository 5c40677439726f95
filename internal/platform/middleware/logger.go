package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// AuthorHeader is logged alongside each request so edits can be traced to a
// writer without reading the body.
const AuthorHeader = "X-Author"

// Logger writes one zerolog line per request through echo's RequestLogger.
// Handler errors below 500 are warnings; the rest are errors. The error is
// passed on untouched for echo's error handler.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURIPath:  true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,

		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			evt := logger.Info()
			switch {
			case v.Error != nil && v.Status >= http.StatusInternalServerError:
				evt = logger.Error().Err(v.Error)
			case v.Error != nil:
				evt = logger.Warn().Err(v.Error)
			}
			rid, _ := c.Get("request_id").(string)
			evt.
				Str("request_id", rid).
				Str("method", v.Method).
				Str("path", v.URIPath).
				Str("author", c.Request().Header.Get(AuthorHeader)).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}
