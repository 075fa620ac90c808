package reporting

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicsched/clinic/internal/platform/apperr"
	"github.com/clinicsched/clinic/internal/platform/auth"
	"github.com/clinicsched/clinic/internal/platform/calendar"
)

// Handler provides HTTP handlers for the reporting API.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the reporting API routes.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	reportGroup := api.Group("/reports")
	reportGroup.GET("/today", h.Today, auth.RequireRole(auth.RoleClinician))
	reportGroup.GET("/period", h.Period, auth.RequireRole(auth.RoleClinician))
	reportGroup.GET("/patients/:id/history", h.PatientHistory, auth.RequireRole(auth.RoleClinician, auth.RolePatient))
}

func (h *Handler) Today(c echo.Context) error {
	ctx := c.Request().Context()
	summary, err := h.svc.TodaySummary(ctx, auth.PrincipalFromContext(ctx))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}

func (h *Handler) PatientHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.Validation("invalid patient id")
	}
	ctx := c.Request().Context()
	history, err := h.svc.PatientHistory(ctx, auth.PrincipalFromContext(ctx), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, history)
}

// Period serves GET /reports/period?from=YYYY-MM-DD&to=YYYY-MM-DD.
func (h *Handler) Period(c echo.Context) error {
	from, err := calendar.ParseDate("from", c.QueryParam("from"))
	if err != nil {
		return err
	}
	to, err := calendar.ParseDate("to", c.QueryParam("to"))
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	report, err := h.svc.PeriodReport(ctx, auth.PrincipalFromContext(ctx), from, to)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}
