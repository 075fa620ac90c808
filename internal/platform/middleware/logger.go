package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicsched/clinic/internal/platform/auth"
)

func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			rid, _ := c.Get("request_id").(string)

			err := next(c)
			if err != nil {
				// Let the error handler write the response so the logged
				// status is the one the client receives.
				c.Error(err)
			}

			req := c.Request()
			evt := logger.Info()
			if status := c.Response().Status; status >= 500 {
				evt = logger.Error()
			} else if status >= 400 {
				evt = logger.Warn()
			}

			if p := auth.PrincipalFromContext(req.Context()); p != nil {
				evt = evt.Str("principal_id", p.ID.String()).Str("role", string(p.Role))
			}

			evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return nil
		}
	}
}
