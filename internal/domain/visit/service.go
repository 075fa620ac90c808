package visit

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicsched/clinic/internal/platform/apperr"
	"github.com/clinicsched/clinic/internal/platform/auth"
	"github.com/clinicsched/clinic/internal/platform/events"
)

var (
	ErrNotEligible         = apperr.New(apperr.KindNotEligible, "not_eligible", "appointment is not completed or already has a visit record")
	ErrAppointmentNotFound = apperr.New(apperr.KindNotFound, "appointment_not_found", "appointment not found")
)

type Service struct {
	repo   Repository
	events *events.Emitter
	logger zerolog.Logger
}

func NewService(repo Repository, emitter *events.Emitter, logger zerolog.Logger) *Service {
	return &Service{repo: repo, events: emitter, logger: logger}
}

// RecordVisit stores the outcome of a completed appointment. Each
// appointment gets at most one record.
func (s *Service) RecordVisit(ctx context.Context, p *auth.Principal, req RecordRequest) (*Record, error) {
	if err := auth.Authorize(p, auth.RoleClinician); err != nil {
		return nil, err
	}

	apptID, err := uuid.Parse(strings.TrimSpace(req.AppointmentID))
	if err != nil {
		return nil, apperr.Validation("appointment_id is required")
	}
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		return nil, apperr.Validation("description is required")
	}

	rec := &Record{AppointmentID: apptID, Description: desc, RecordedByID: p.ID}
	ok, err := s.repo.InsertIfEligible(ctx, rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		exists, err := s.repo.AppointmentExists(ctx, apptID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrAppointmentNotFound
		}
		return nil, ErrNotEligible
	}

	s.logger.Info().
		Str("visit_record_id", rec.ID.String()).
		Str("appointment_id", apptID.String()).
		Str("recorded_by", p.ID.String()).
		Msg("visit recorded")

	if s.events != nil {
		evt := events.New(events.VisitRecorded, p.ID, apptID)
		evt.PatientID = rec.PatientID
		evt.VisitRecordID = &rec.ID
		s.events.Emit(ctx, evt)
	}
	return rec, nil
}

// ListPending returns completed appointments without a record, oldest first.
func (s *Service) ListPending(ctx context.Context, p *auth.Principal) ([]Pending, error) {
	if err := auth.Authorize(p, auth.RoleClinician); err != nil {
		return nil, err
	}
	return s.repo.ListPending(ctx)
}
