package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
)

// Recovery turns a handler panic into a 500 returned up the chain, logging
// the panic and the panicking goroutine's stack. The panic value never
// reaches the client.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return echomw.RecoverWithConfig(echomw.RecoverConfig{
		StackSize:           4 << 10,
		DisableStackAll:     true,
		DisableErrorHandler: true,

		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			rid, _ := c.Get("request_id").(string)
			logger.Error().
				Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Bytes("stack", stack).
				Msg("panic recovered")
			return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
		},
	})
}
