// Package reporting builds the read-only views of the clinic: the daily
// dashboard, a patient's appointment history and the period report.
package reporting

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicsched/clinic/internal/platform/apperr"
	"github.com/clinicsched/clinic/internal/platform/auth"
	"github.com/clinicsched/clinic/internal/platform/calendar"
)

var (
	ErrInvalidRange       = apperr.New(apperr.KindValidation, "invalid_range", "from must not be after to")
	ErrPatientNotFound    = apperr.New(apperr.KindNotFound, "patient_not_found", "patient not found")
	ErrOtherPatientRecord = apperr.New(apperr.KindAuthorizationDenied, "forbidden_for_other_patient", "patients may only access their own record")
)

// DayAppointment is one line of the daily agenda.
type DayAppointment struct {
	AppointmentID uuid.UUID          `json:"appointment_id"`
	PatientName   string             `json:"patient_name"`
	Time          calendar.TimeOfDay `json:"time"`
	VisitType     string             `json:"visit_type"`
}

type TodaySummary struct {
	Date              calendar.Date    `json:"date"`
	ScheduledCount    int              `json:"scheduled_count"`
	TodayAppointments []DayAppointment `json:"today_appointments"`
	TotalPatients     int              `json:"total_patients"`
}

type PatientProfile struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	NationalID   string    `json:"national_id"`
	Phone        *string   `json:"phone,omitempty"`
	BasicHistory *string   `json:"basic_history,omitempty"`
}

// HistoryEntry is one appointment of a patient with its outcome, if any.
type HistoryEntry struct {
	AppointmentID uuid.UUID          `json:"appointment_id"`
	Date          calendar.Date      `json:"date"`
	Time          calendar.TimeOfDay `json:"time"`
	VisitType     string             `json:"visit_type"`
	Status        string             `json:"status"`
	Description   *string            `json:"description,omitempty"`
	BookedByName  *string            `json:"booked_by_name,omitempty"`
}

type PatientHistory struct {
	Patient PatientProfile `json:"patient"`
	Entries []HistoryEntry `json:"entries"`
}

type ReportRow struct {
	AppointmentID uuid.UUID          `json:"appointment_id"`
	Date          calendar.Date      `json:"date"`
	Time          calendar.TimeOfDay `json:"time"`
	PatientName   string             `json:"patient_name"`
	VisitType     string             `json:"visit_type"`
	Status        string             `json:"status"`
	BookedByName  *string            `json:"booked_by_name,omitempty"`
	Description   *string            `json:"description,omitempty"`
}

type PeriodReport struct {
	From        calendar.Date `json:"from"`
	To          calendar.Date `json:"to"`
	GeneratedAt time.Time     `json:"generated_at"`
	Rows        []ReportRow   `json:"rows"`
}

// Store runs the report queries.
type Store interface {
	CountScheduledFrom(ctx context.Context, from calendar.Date) (int, error)
	ScheduledOn(ctx context.Context, day calendar.Date) ([]DayAppointment, error)
	CountPatients(ctx context.Context) (int, error)
	PatientProfile(ctx context.Context, id uuid.UUID) (*PatientProfile, error)
	// PatientHistory lists the patient's appointments, newest slot first.
	PatientHistory(ctx context.Context, patientID uuid.UUID) ([]HistoryEntry, error)
	// Period lists appointments with from <= date <= to in slot order.
	Period(ctx context.Context, from, to calendar.Date) ([]ReportRow, error)
}

type Service struct {
	store  Store
	clock  *calendar.Clock
	logger zerolog.Logger
}

func NewService(store Store, clock *calendar.Clock, logger zerolog.Logger) *Service {
	return &Service{store: store, clock: clock, logger: logger}
}

// TodaySummary is the clinic dashboard. ScheduledCount covers every
// SCHEDULED appointment from today on; the list covers today only.
func (s *Service) TodaySummary(ctx context.Context, p *auth.Principal) (*TodaySummary, error) {
	if err := auth.Authorize(p, auth.RoleClinician); err != nil {
		return nil, err
	}
	today := s.clock.Today()

	count, err := s.store.CountScheduledFrom(ctx, today)
	if err != nil {
		return nil, err
	}
	agenda, err := s.store.ScheduledOn(ctx, today)
	if err != nil {
		return nil, err
	}
	patients, err := s.store.CountPatients(ctx)
	if err != nil {
		return nil, err
	}

	if agenda == nil {
		agenda = []DayAppointment{}
	}
	return &TodaySummary{
		Date:              today,
		ScheduledCount:    count,
		TodayAppointments: agenda,
		TotalPatients:     patients,
	}, nil
}

// PatientHistory returns a patient's profile and appointments. A PATIENT may
// only read their own.
func (s *Service) PatientHistory(ctx context.Context, p *auth.Principal, patientID uuid.UUID) (*PatientHistory, error) {
	if err := auth.Authorize(p, auth.RoleClinician, auth.RolePatient); err != nil {
		return nil, err
	}
	if p.Role == auth.RolePatient && (p.PatientID == nil || *p.PatientID != patientID) {
		return nil, ErrOtherPatientRecord
	}

	profile, err := s.store.PatientProfile(ctx, patientID)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.PatientHistory(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []HistoryEntry{}
	}
	return &PatientHistory{Patient: *profile, Entries: entries}, nil
}

// PeriodReport lists every appointment in the inclusive range [from, to].
func (s *Service) PeriodReport(ctx context.Context, p *auth.Principal, from, to calendar.Date) (*PeriodReport, error) {
	if err := auth.Authorize(p, auth.RoleClinician); err != nil {
		return nil, err
	}
	if from.IsZero() || to.IsZero() {
		return nil, apperr.Validation("from and to are required")
	}
	if from.After(to) {
		return nil, ErrInvalidRange
	}

	rows, err := s.store.Period(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []ReportRow{}
	}
	s.logger.Debug().
		Str("from", from.String()).
		Str("to", to.String()).
		Int("rows", len(rows)).
		Msg("period report generated")
	return &PeriodReport{From: from, To: to, GeneratedAt: s.clock.Now(), Rows: rows}, nil
}
