package scheduling

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicsched/clinic/internal/platform/apperr"
	"github.com/clinicsched/clinic/internal/platform/auth"
	"github.com/clinicsched/clinic/internal/platform/calendar"
	"github.com/clinicsched/clinic/internal/platform/db"
	"github.com/clinicsched/clinic/internal/platform/events"
)

var (
	ErrSlotAlreadyBooked        = apperr.New(apperr.KindConflict, "slot_already_booked", "this date and time is already booked")
	ErrForbiddenForOtherPatient = apperr.New(apperr.KindAuthorizationDenied, "forbidden_for_other_patient", "patients may only book for themselves")
	ErrPatientProfileMissing    = apperr.New(apperr.KindAuthFailure, "patient_profile_missing", "no patient record is linked to this login")
	ErrInvalidTransition        = apperr.New(apperr.KindInvalidTransition, "invalid_transition", "only scheduled appointments can be cancelled or completed")
	ErrAppointmentNotFound      = apperr.New(apperr.KindNotFound, "appointment_not_found", "appointment not found")
	ErrPatientNotFound          = apperr.New(apperr.KindNotFound, "patient_not_found", "patient not found")
	ErrIncompleteData           = apperr.New(apperr.KindValidation, "incomplete_data", "incomplete data")
)

const (
	msgSlotFree     = "This time is available for booking."
	msgSlotTaken    = "This time is already taken by another scheduled appointment."
	maxVisitTypeLen = 100
)

type Service struct {
	appointments AppointmentRepository
	patients     PatientLookup
	tx           db.TxRunner
	events       *events.Emitter
	clock        *calendar.Clock
	logger       zerolog.Logger
}

func NewService(appts AppointmentRepository, patients PatientLookup, tx db.TxRunner, emitter *events.Emitter, clock *calendar.Clock, logger zerolog.Logger) *Service {
	return &Service{appointments: appts, patients: patients, tx: tx, events: emitter, clock: clock, logger: logger}
}

// linkedPatient returns the patient id bound to a PATIENT principal.
func linkedPatient(p *auth.Principal) (uuid.UUID, error) {
	if p.PatientID == nil {
		return uuid.Nil, ErrPatientProfileMissing
	}
	return *p.PatientID, nil
}

// ListBookablePatients returns the patients p may book for: only themselves
// for a PATIENT, everyone otherwise.
func (s *Service) ListBookablePatients(ctx context.Context, p *auth.Principal) ([]PatientSummary, error) {
	if err := auth.Authorize(p, auth.RoleClinician, auth.RolePatient); err != nil {
		return nil, err
	}

	if p.Role != auth.RolePatient {
		return s.patients.ListSummaries(ctx)
	}

	id, err := linkedPatient(p)
	if err != nil {
		return nil, err
	}
	summary, err := s.patients.GetSummary(ctx, id)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil, ErrPatientProfileMissing
	}
	if err != nil {
		return nil, err
	}
	return []PatientSummary{*summary}, nil
}

// CheckSlotAvailable reports whether no SCHEDULED appointment occupies the slot.
func (s *Service) CheckSlotAvailable(ctx context.Context, date calendar.Date, tm calendar.TimeOfDay) (bool, error) {
	taken, err := s.appointments.SlotTaken(ctx, date, tm)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

// CheckAvailability answers the interactive availability query. The answer
// is advisory; BookAppointment re-checks under a transaction.
func (s *Service) CheckAvailability(ctx context.Context, p *auth.Principal, req AvailabilityRequest) (*Availability, error) {
	if err := auth.Authorize(p, auth.RoleClinician, auth.RolePatient); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Date) == "" || strings.TrimSpace(req.Time) == "" {
		return nil, ErrIncompleteData
	}
	date, err := calendar.ParseDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	tm, err := calendar.ParseTimeOfDay("time", req.Time)
	if err != nil {
		return nil, err
	}

	free, err := s.CheckSlotAvailable(ctx, date, tm)
	if err != nil {
		return nil, err
	}
	if free {
		return &Availability{Available: true, Message: msgSlotFree}, nil
	}
	return &Availability{Available: false, Message: msgSlotTaken}, nil
}

// BookAppointment creates a SCHEDULED appointment. The slot check and the
// insert share a transaction and the partial unique index on the slot turns
// a lost race into ErrSlotAlreadyBooked.
func (s *Service) BookAppointment(ctx context.Context, p *auth.Principal, req BookingRequest) (*Appointment, error) {
	if err := auth.Authorize(p, auth.RoleClinician, auth.RolePatient); err != nil {
		return nil, err
	}

	appt, err := parseBooking(req)
	if err != nil {
		return nil, err
	}

	if p.Role == auth.RolePatient {
		own, err := linkedPatient(p)
		if err != nil {
			return nil, err
		}
		if own != appt.PatientID {
			return nil, ErrForbiddenForOtherPatient
		}
	}
	appt.BookedByID = p.ID

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		patient, err := s.patients.GetSummary(ctx, appt.PatientID)
		if apperr.KindOf(err) == apperr.KindNotFound && p.Role == auth.RolePatient {
			return ErrPatientProfileMissing
		}
		if err != nil {
			return err
		}
		appt.PatientName = patient.Name
		appt.PatientNationalID = patient.NationalID

		taken, err := s.appointments.SlotTaken(ctx, appt.Date, appt.Time)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotAlreadyBooked
		}
		return s.appointments.Create(ctx, appt)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("patient_id", appt.PatientID.String()).
		Str("booked_by", p.ID.String()).
		Str("slot", appt.Date.String()+" "+appt.Time.String()).
		Msg("appointment booked")
	s.emit(ctx, events.AppointmentBooked, p.ID, appt)
	return appt, nil
}

func parseBooking(req BookingRequest) (*Appointment, error) {
	if strings.TrimSpace(req.PatientID) == "" {
		return nil, apperr.Validation("patient_id is required")
	}
	patientID, err := uuid.Parse(strings.TrimSpace(req.PatientID))
	if err != nil {
		return nil, apperr.Validation("patient_id is not a valid id")
	}
	date, err := calendar.ParseDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	tm, err := calendar.ParseTimeOfDay("time", req.Time)
	if err != nil {
		return nil, err
	}
	visitType := strings.TrimSpace(req.VisitType)
	if visitType == "" {
		return nil, apperr.Validation("visit_type is required")
	}
	if len(visitType) > maxVisitTypeLen {
		return nil, apperr.Validation("visit_type is too long")
	}
	return &Appointment{PatientID: patientID, Date: date, Time: tm, VisitType: visitType}, nil
}

// Transition cancels or completes a SCHEDULED appointment. The status guard
// lives in the UPDATE itself, so of two concurrent transitions only one wins.
func (s *Service) Transition(ctx context.Context, p *auth.Principal, id uuid.UUID, action Action) (*Appointment, error) {
	if err := auth.Authorize(p, auth.RoleClinician); err != nil {
		return nil, err
	}
	action, err := ParseAction(string(action))
	if err != nil {
		return nil, err
	}

	appt, err := s.appointments.TransitionScheduled(ctx, id, action.Target())
	if err != nil {
		return nil, err
	}
	if appt == nil {
		if _, err := s.appointments.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrInvalidTransition
	}

	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("status", string(appt.Status)).
		Str("actor", p.ID.String()).
		Msg("appointment transitioned")

	typ := events.AppointmentCancelled
	if appt.Status == StatusCompleted {
		typ = events.AppointmentCompleted
	}
	s.emit(ctx, typ, p.ID, appt)
	return appt, nil
}

// ListUpcoming returns SCHEDULED appointments from today onwards in slot order.
func (s *Service) ListUpcoming(ctx context.Context, p *auth.Principal, limit, offset int) ([]*Appointment, int, error) {
	if err := auth.Authorize(p, auth.RoleClinician); err != nil {
		return nil, 0, err
	}
	return s.appointments.ListUpcoming(ctx, s.clock.Today(), limit, offset)
}

func (s *Service) GetAppointment(ctx context.Context, p *auth.Principal, id uuid.UUID) (*Appointment, error) {
	if err := auth.Authorize(p, auth.RoleClinician, auth.RolePatient); err != nil {
		return nil, err
	}
	appt, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Role == auth.RolePatient {
		own, err := linkedPatient(p)
		if err != nil {
			return nil, err
		}
		// Someone else's appointment looks the same as a missing one.
		if own != appt.PatientID {
			return nil, ErrAppointmentNotFound
		}
	}
	return appt, nil
}

func (s *Service) emit(ctx context.Context, typ events.Type, actor uuid.UUID, a *Appointment) {
	if s.events == nil {
		return
	}
	evt := events.New(typ, actor, a.ID)
	evt.PatientID = a.PatientID
	evt.Date = a.Date.String()
	evt.Time = a.Time.String()
	s.events.Emit(ctx, evt)
}
