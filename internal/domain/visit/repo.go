package visit

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// InsertIfEligible writes rec only when its appointment is COMPLETED and
	// has no record yet. It reports false when nothing was written.
	InsertIfEligible(ctx context.Context, rec *Record) (bool, error)
	AppointmentExists(ctx context.Context, id uuid.UUID) (bool, error)
	ListPending(ctx context.Context) ([]Pending, error)
}
