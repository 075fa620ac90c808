package auth

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const PrincipalKey contextKey = "principal"

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// PrincipalFromContext returns the caller placed in ctx by SessionMiddleware,
// or nil for anonymous requests.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(PrincipalKey).(*Principal)
	return p
}

// SessionMiddleware validates the bearer session token and stores the
// resulting Principal on the request context. Requests for which skipper
// returns true pass through untouched.
func SessionMiddleware(sessions *SessionManager, skipper func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}

			token, err := BearerToken(c.Request().Header.Get("Authorization"))
			if err != nil {
				return err
			}

			p, err := sessions.Parse(token)
			if err != nil {
				return err
			}

			c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
			return next(c)
		}
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrUnauthenticated
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", ErrInvalidSession
	}
	return strings.TrimSpace(parts[1]), nil
}
