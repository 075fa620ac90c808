package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicsched/clinic/internal/platform/apperr"
)

type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleClinician Role = "CLINICIAN"
	RolePatient   Role = "PATIENT"
)

// ParseRole accepts a role name in any letter case.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", apperr.Validation(fmt.Sprintf("unknown role %q", s))
	}
	return r, nil
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleClinician, RolePatient:
		return true
	}
	return false
}

// Principal is the authenticated caller of a core operation.
type Principal struct {
	ID        uuid.UUID
	Name      string
	Role      Role
	PatientID *uuid.UUID // set only for PATIENT identities
}

var (
	ErrUnauthenticated  = apperr.New(apperr.KindAuthFailure, "unauthenticated", "authentication required")
	ErrInvalidSession   = apperr.New(apperr.KindAuthFailure, "invalid_session", "session is invalid or expired")
	ErrInsufficientRole = apperr.New(apperr.KindAuthorizationDenied, "insufficient_role", "insufficient role for this operation")
)

// Authorize reports whether p may perform an operation restricted to
// allowed. ADMIN is always allowed.
func Authorize(p *Principal, allowed ...Role) error {
	if p == nil {
		return ErrUnauthenticated
	}
	if p.Role == RoleAdmin {
		return nil
	}
	for _, r := range allowed {
		if p.Role == r {
			return nil
		}
	}
	return ErrInsufficientRole
}

// RequireRole returns middleware that rejects callers whose principal does
// not hold one of roles.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p := PrincipalFromContext(c.Request().Context())
			if err := Authorize(p, roles...); err != nil {
				if errors.Is(err, ErrInsufficientRole) {
					return apperr.New(apperr.KindAuthorizationDenied, "insufficient_role",
						fmt.Sprintf("required role: %s", joinRoles(roles)))
				}
				return err
			}
			return next(c)
		}
	}
}

func joinRoles(roles []Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, " or ")
}
