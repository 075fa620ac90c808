package identity

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicsched/clinic/internal/platform/apperr"
	"github.com/clinicsched/clinic/internal/platform/auth"
)

type Handler struct {
	svc      *Service
	sessions *auth.SessionManager
}

func NewHandler(svc *Service, sessions *auth.SessionManager) *Handler {
	return &Handler{svc: svc, sessions: sessions}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/auth/login", h.Login)
	api.POST("/auth/logout", h.Logout)
	api.GET("/auth/me", h.Me)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.POST("/users", h.CreateUser)
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	ident, err := h.svc.Authenticate(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	token, expiresAt, err := h.sessions.Issue(ident.Principal())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, LoginResponse{Token: token, ExpiresAt: expiresAt, Identity: ident})
}

// Logout revokes the caller's session token.
func (h *Handler) Logout(c echo.Context) error {
	token, err := auth.BearerToken(c.Request().Header.Get("Authorization"))
	if err != nil {
		return err
	}
	if err := h.sessions.Revoke(token); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Me(c echo.Context) error {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return auth.ErrUnauthenticated
	}
	ident, err := h.svc.Get(c.Request().Context(), p.ID)
	if err != nil {
		// A token for a deleted identity is no longer a valid session.
		if apperr.KindOf(err) == apperr.KindNotFound {
			return auth.ErrInvalidSession
		}
		return err
	}
	return c.JSON(http.StatusOK, ident)
}

func (h *Handler) CreateUser(c echo.Context) error {
	var req NewUser
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	ident, err := h.svc.CreateUser(c.Request().Context(), auth.PrincipalFromContext(c.Request().Context()), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, ident)
}
