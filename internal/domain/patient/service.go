package patient

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicsched/clinic/internal/domain/identity"
	"github.com/clinicsched/clinic/internal/platform/apperr"
	"github.com/clinicsched/clinic/internal/platform/auth"
	"github.com/clinicsched/clinic/internal/platform/calendar"
	"github.com/clinicsched/clinic/internal/platform/db"
)

var (
	ErrDuplicateNationalID = apperr.New(apperr.KindConflict, "duplicate_national_id", "a patient with this national id already exists")
	ErrPatientNotFound     = apperr.New(apperr.KindNotFound, "patient_not_found", "patient not found")
	ErrOtherPatientRecord  = apperr.New(apperr.KindAuthorizationDenied, "forbidden_for_other_patient", "patients may only access their own record")
)

// Logins creates the PATIENT identity that goes with a new patient.
type Logins interface {
	EmailTaken(ctx context.Context, email string) (bool, error)
	CreatePatientLogin(ctx context.Context, patientID uuid.UUID, name, email, password string) (*identity.Identity, error)
}

type Service struct {
	patients Repository
	logins   Logins
	tx       db.TxRunner
	clock    *calendar.Clock
	logger   zerolog.Logger
}

func NewService(patients Repository, logins Logins, tx db.TxRunner, clock *calendar.Clock, logger zerolog.Logger) *Service {
	return &Service{patients: patients, logins: logins, tx: tx, clock: clock, logger: logger}
}

// RegisterPatient creates the patient and its login atomically. Either both
// rows exist afterwards or neither does.
func (s *Service) RegisterPatient(ctx context.Context, p *auth.Principal, req RegistrationRequest) (*RegistrationResult, error) {
	if err := auth.Authorize(p, auth.RoleAdmin); err != nil {
		return nil, err
	}

	pat, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	var result RegistrationResult
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		taken, err := s.logins.EmailTaken(ctx, req.Email)
		if err != nil {
			return err
		}
		if taken {
			return identity.ErrEmailTaken
		}

		if err := s.patients.Create(ctx, pat); err != nil {
			return err
		}

		login, err := s.logins.CreatePatientLogin(ctx, pat.ID, pat.Name, req.Email, req.Password)
		if err != nil {
			return err
		}

		result = RegistrationResult{PatientID: pat.ID, IdentityID: login.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("patient_id", result.PatientID.String()).
		Str("registered_by", p.ID.String()).
		Msg("patient registered")
	return &result, nil
}

func (s *Service) validate(req RegistrationRequest) (*Patient, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	nationalID := strings.TrimSpace(req.NationalID)
	if nationalID == "" {
		return nil, apperr.Validation("national_id is required")
	}
	if err := identity.ValidateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := identity.ValidatePassword(req.Password); err != nil {
		return nil, err
	}
	birth, err := calendar.ParseDate("birth_date", req.BirthDate)
	if err != nil {
		return nil, err
	}
	if birth.After(s.clock.Today()) {
		return nil, apperr.Validation("birth_date cannot be in the future")
	}

	return &Patient{
		Name:         name,
		NationalID:   nationalID,
		Phone:        optional(req.Phone),
		BirthDate:    birth,
		BasicHistory: optional(req.History),
	}, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (s *Service) ListPatients(ctx context.Context, p *auth.Principal, limit, offset int) ([]*Patient, int, error) {
	if err := auth.Authorize(p, auth.RoleClinician); err != nil {
		return nil, 0, err
	}
	return s.patients.List(ctx, limit, offset)
}

// GetPatient returns a patient record. A PATIENT may only read their own.
func (s *Service) GetPatient(ctx context.Context, p *auth.Principal, id uuid.UUID) (*Patient, error) {
	if err := auth.Authorize(p, auth.RoleClinician, auth.RolePatient); err != nil {
		return nil, err
	}
	if p.Role == auth.RolePatient && (p.PatientID == nil || *p.PatientID != id) {
		return nil, ErrOtherPatientRecord
	}
	return s.patients.GetByID(ctx, id)
}
