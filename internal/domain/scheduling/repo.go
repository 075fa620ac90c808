package scheduling

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicsched/clinic/internal/platform/calendar"
)

type AppointmentRepository interface {
	// SlotTaken reports whether a SCHEDULED appointment occupies (date, tm).
	SlotTaken(ctx context.Context, date calendar.Date, tm calendar.TimeOfDay) (bool, error)
	// Create inserts a SCHEDULED appointment. A concurrent booking of the
	// same slot surfaces as ErrSlotAlreadyBooked.
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// TransitionScheduled moves id to status only if it is still SCHEDULED.
	// It returns nil when no row matched.
	TransitionScheduled(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error)
	ListUpcoming(ctx context.Context, from calendar.Date, limit, offset int) ([]*Appointment, int, error)
}

type PatientLookup interface {
	GetSummary(ctx context.Context, id uuid.UUID) (*PatientSummary, error)
	ListSummaries(ctx context.Context) ([]PatientSummary, error)
}
