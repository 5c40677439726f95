package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/bytes"
)

// BodyLimit caps request bodies. importLimit applies to POST /api/v1/imports,
// which carries encoded transport blobs; defaultLimit applies everywhere else.
// Limits use echo's size syntax ("256K", "1M"). An invalid limit panics at
// setup, as echo's own BodyLimit does.
//
// Oversized requests get a 413 with a JSON error naming the limit in bytes,
// whether the size is known up front or only discovered while reading.
func BodyLimit(defaultLimit, importLimit string) echo.MiddlewareFunc {
	defaultBytes := mustParse(defaultLimit)
	importBytes := mustParse(importLimit)

	limitDefault := echomw.BodyLimitWithConfig(echomw.BodyLimitConfig{Limit: defaultLimit})
	limitImport := echomw.BodyLimitWithConfig(echomw.BodyLimitConfig{Limit: importLimit})

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		byDefault := limitDefault(next)
		byImport := limitImport(next)
		return func(c echo.Context) error {
			h, limit := byDefault, defaultBytes
			if isImport(c.Request()) {
				h, limit = byImport, importBytes
			}
			err := h(c)
			if errors.Is(err, echo.ErrStatusRequestEntityTooLarge) && !c.Response().Committed {
				return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{
					"error": fmt.Sprintf("request body exceeds maximum allowed size of %d bytes", limit),
				})
			}
			return err
		}
	}
}

func isImport(req *http.Request) bool {
	return req.Method == http.MethodPost && strings.TrimSuffix(req.URL.Path, "/") == "/api/v1/imports"
}

func mustParse(limit string) int64 {
	n, err := bytes.Parse(limit)
	if err != nil {
		panic(fmt.Sprintf("body limit %q: %v", limit, err))
	}
	return n
}
