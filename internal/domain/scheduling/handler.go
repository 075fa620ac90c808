package scheduling

import (
	"errors"
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
	// Booking side: patients book for themselves, staff for anyone.
	book := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RolePatient))
	book.GET("/appointments/bookable-patients", h.ListBookablePatients)
	book.POST("/appointments", h.BookAppointment)
	book.POST("/availability", h.CheckAvailability)
	book.GET("/appointments/:id", h.GetAppointment)

	// Desk side
	desk := api.Group("", auth.RequireRole(auth.RoleClinician))
	desk.GET("/appointments/upcoming", h.ListUpcoming)
	desk.POST("/appointments/:id/cancel", h.transition(ActionCancel))
	desk.POST("/appointments/:id/complete", h.transition(ActionComplete))
}

func (h *Handler) ListBookablePatients(c echo.Context) error {
	ctx := c.Request().Context()
	items, err := h.svc.ListBookablePatients(ctx, auth.PrincipalFromContext(ctx))
	if err != nil {
		return err
	}
	if items == nil {
		items = []PatientSummary{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) BookAppointment(c echo.Context) error {
	var req BookingRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}
	ctx := c.Request().Context()
	appt, err := h.svc.BookAppointment(ctx, auth.PrincipalFromContext(ctx), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, appt)
}

func (h *Handler) CheckAvailability(c echo.Context) error {
	var req AvailabilityRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, Availability{Message: ErrIncompleteData.Message})
	}
	ctx := c.Request().Context()
	result, err := h.svc.CheckAvailability(ctx, auth.PrincipalFromContext(ctx), req)
	if errors.Is(err, ErrIncompleteData) {
		return c.JSON(http.StatusBadRequest, Availability{Message: ErrIncompleteData.Message})
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := appointmentID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	appt, err := h.svc.GetAppointment(ctx, auth.PrincipalFromContext(ctx), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) ListUpcoming(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()
	items, total, err := h.svc.ListUpcoming(ctx, auth.PrincipalFromContext(ctx), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) transition(action Action) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := appointmentID(c)
		if err != nil {
			return err
		}
		ctx := c.Request().Context()
		appt, err := h.svc.Transition(ctx, auth.PrincipalFromContext(ctx), id, action)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, appt)
	}
}

func appointmentID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid appointment id")
	}
	return id, nil
}
