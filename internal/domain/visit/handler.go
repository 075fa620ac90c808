package visit

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicsched/clinic/internal/platform/apperr"
	"github.com/clinicsched/clinic/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/visits", auth.RequireRole(auth.RoleClinician))
	g.GET("/pending", h.ListPending)
	g.POST("", h.RecordVisit)
}

func (h *Handler) RecordVisit(c echo.Context) error {
	var req RecordRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	ctx := c.Request().Context()
	rec, err := h.svc.RecordVisit(ctx, auth.PrincipalFromContext(ctx), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) ListPending(c echo.Context) error {
	ctx := c.Request().Context()
	items, err := h.svc.ListPending(ctx, auth.PrincipalFromContext(ctx))
	if err != nil {
		return err
	}
	if items == nil {
		items = []Pending{}
	}
	return c.JSON(http.StatusOK, items)
}
