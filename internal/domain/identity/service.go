package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/clinicsched/clinic/internal/platform/apperr"
	"github.com/clinicsched/clinic/internal/platform/auth"
)

// bcrypt ignores everything past 72 bytes.
const maxPasswordBytes = 72

var (
	ErrInvalidCredentials = apperr.New(apperr.KindAuthFailure, "invalid_credentials", "invalid email or password")
	ErrEmailTaken         = apperr.New(apperr.KindConflict, "email_taken", "an account with this email already exists")
	ErrIdentityNotFound   = apperr.New(apperr.KindNotFound, "identity_not_found", "identity not found")
)

type Service struct {
	repo       Repository
	bcryptCost int
	logger     zerolog.Logger
}

func NewService(repo Repository, bcryptCost int, logger zerolog.Logger) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{repo: repo, bcryptCost: bcryptCost, logger: logger}
}

// Authenticate checks email and password. Unknown emails and wrong
// passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Identity, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	ident, err := s.repo.GetByEmail(ctx, email)
	if errors.Is(err, ErrIdentityNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(ident.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return ident, nil
}

// CreateUser creates an ADMIN or CLINICIAN account. Patient logins are only
// created by patient registration.
func (s *Service) CreateUser(ctx context.Context, p *auth.Principal, req NewUser) (*Identity, error) {
	if err := auth.Authorize(p, auth.RoleAdmin); err != nil {
		return nil, err
	}

	role, err := auth.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}
	if role == auth.RolePatient {
		return nil, apperr.Validation("patient accounts are created by patient registration")
	}

	ident, err := s.newIdentity(req.Name, req.Email, req.Password, role, nil)
	if err != nil {
		return nil, err
	}

	exists, err := s.repo.EmailExists(ctx, ident.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailTaken
	}

	if err := s.repo.Create(ctx, ident); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("identity_id", ident.ID.String()).
		Str("role", string(role)).
		Str("created_by", p.ID.String()).
		Msg("user created")
	return ident, nil
}

// EmailTaken reports whether an identity already uses email.
func (s *Service) EmailTaken(ctx context.Context, email string) (bool, error) {
	return s.repo.EmailExists(ctx, normalizeEmail(email))
}

// CreatePatientLogin creates the PATIENT identity linked to patientID. The
// caller is responsible for authorization and for running it in the same
// transaction as the patient insert.
func (s *Service) CreatePatientLogin(ctx context.Context, patientID uuid.UUID, name, email, password string) (*Identity, error) {
	ident, err := s.newIdentity(name, email, password, auth.RolePatient, &patientID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, ident); err != nil {
		return nil, err
	}
	return ident, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Identity, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) newIdentity(name, email, password string, role auth.Role, patientID *uuid.UUID) (*Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return &Identity{
		Name:         name,
		Email:        normalizeEmail(email),
		PasswordHash: string(hash),
		Role:         role,
		PatientID:    patientID,
	}, nil
}

// ValidateEmail checks that email is a bare address.
func ValidateEmail(email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return apperr.Validation("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperr.Validation("email is not a valid address")
	}
	return nil
}

func ValidatePassword(password string) error {
	if password == "" {
		return apperr.Validation("password is required")
	}
	if len(password) > maxPasswordBytes {
		return apperr.Validation(fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes))
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
