package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicsched/clinic/internal/platform/apperr"
)

func TestAuthorize(t *testing.T) {
	admin := &Principal{ID: uuid.New(), Role: RoleAdmin}
	clinician := &Principal{ID: uuid.New(), Role: RoleClinician}
	patient := &Principal{ID: uuid.New(), Role: RolePatient}

	tests := []struct {
		name    string
		p       *Principal
		allowed []Role
		want    error
	}{
		{"admin always passes", admin, []Role{RoleClinician}, nil},
		{"admin with empty set", admin, nil, nil},
		{"clinician allowed", clinician, []Role{RoleClinician}, nil},
		{"patient among several", patient, []Role{RoleClinician, RolePatient}, nil},
		{"patient denied", patient, []Role{RoleClinician}, ErrInsufficientRole},
		{"nil principal", nil, []Role{RolePatient}, ErrUnauthenticated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.p, tt.allowed...)
			if !errors.Is(err, tt.want) {
				t.Errorf("Authorize() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" clinician ")
	if err != nil || r != RoleClinician {
		t.Fatalf("ParseRole() = %q, %v", r, err)
	}
	if _, err := ParseRole("nurse"); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("expected validation error, got %v", err)
	}
}

func runRequireRole(p *Principal, roles ...Role) (*httptest.ResponseRecorder, error) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if p != nil {
		req = req.WithContext(WithPrincipal(req.Context(), p))
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequireRole(roles...)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return rec, h(c)
}

func TestRequireRole_Allowed(t *testing.T) {
	rec, err := runRequireRole(&Principal{ID: uuid.New(), Role: RoleClinician}, RoleClinician)
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	_, err := runRequireRole(&Principal{ID: uuid.New(), Role: RolePatient}, RoleClinician)
	if apperr.KindOf(err) != apperr.KindAuthorizationDenied {
		t.Fatalf("expected authorization denied, got %v", err)
	}
	if code, _ := apperr.Public(err); code != "insufficient_role" {
		t.Errorf("expected insufficient_role, got %s", code)
	}
}

func TestRequireRole_AdminBypass(t *testing.T) {
	if _, err := runRequireRole(&Principal{ID: uuid.New(), Role: RoleAdmin}, RoleClinician); err != nil {
		t.Error("admin should bypass role checks")
	}
}

func TestRequireRole_Anonymous(t *testing.T) {
	_, err := runRequireRole(nil, RoleClinician)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}
}
