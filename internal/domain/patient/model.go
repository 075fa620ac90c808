package patient

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicsched/clinic/internal/platform/calendar"
)

type Patient struct {
	ID           uuid.UUID     `json:"id"`
	Name         string        `json:"name"`
	NationalID   string        `json:"national_id"`
	Phone        *string       `json:"phone,omitempty"`
	BirthDate    calendar.Date `json:"birth_date"`
	BasicHistory *string       `json:"basic_history,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// RegistrationRequest creates a patient together with its PATIENT login.
type RegistrationRequest struct {
	Name       string `json:"name"`
	NationalID string `json:"national_id"`
	Phone      string `json:"phone"`
	BirthDate  string `json:"birth_date"`
	History    string `json:"history"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type RegistrationResult struct {
	PatientID  uuid.UUID `json:"patient_id"`
	IdentityID uuid.UUID `json:"identity_id"`
}
