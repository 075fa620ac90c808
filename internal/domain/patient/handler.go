package patient

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicsched/clinic/internal/platform/apperr"
	"github.com/clinicsched/clinic/internal/platform/auth"
	"github.com/clinicsched/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/patients", h.RegisterPatient, auth.RequireRole(auth.RoleAdmin))
	api.GET("/patients", h.ListPatients, auth.RequireRole(auth.RoleClinician))
	api.GET("/patients/:id", h.GetPatient, auth.RequireRole(auth.RoleClinician, auth.RolePatient))
}

func (h *Handler) RegisterPatient(c echo.Context) error {
	var req RegistrationRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	ctx := c.Request().Context()
	result, err := h.svc.RegisterPatient(ctx, auth.PrincipalFromContext(ctx), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	items, total, err := h.svc.ListPatients(ctx, auth.PrincipalFromContext(ctx), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid patient id")
	}
	ctx := c.Request().Context()
	pat, err := h.svc.GetPatient(ctx, auth.PrincipalFromContext(ctx), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pat)
}
