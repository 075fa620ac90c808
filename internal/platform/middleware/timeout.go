package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout returns middleware that sets a context deadline on each
// incoming request. Repositories pass the request context to pgx, so an
// expired deadline also cancels the running query. When the deadline passes
// before the handler finishes, the client receives 504 with a JSON body.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()

			c.SetRequest(c.Request().WithContext(ctx))

			// Run handler in a goroutine so we can select on the context.
			done := make(chan error, 1)
			go func() {
				done <- next(c)
			}()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return gatewayTimeoutError(c)
				}
				// Client went away; nothing useful can be written.
				return ctx.Err()
			}
		}
	}
}

func gatewayTimeoutError(c echo.Context) error {
	if c.Response().Committed {
		return nil
	}
	rid, _ := c.Get("request_id").(string)
	return c.JSON(http.StatusGatewayTimeout, ErrorResponse{
		Code:      "timeout",
		Message:   "request processing exceeded the allowed time limit",
		RequestID: rid,
	})
}
