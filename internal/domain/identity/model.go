package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicsched/clinic/internal/platform/auth"
)

// Identity is a login account. Role never changes after creation.
type Identity struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	Role         auth.Role  `json:"role"`
	PatientID    *uuid.UUID `json:"patient_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Principal is the caller an authenticated identity acts as.
func (i *Identity) Principal() auth.Principal {
	return auth.Principal{ID: i.ID, Name: i.Name, Role: i.Role, PatientID: i.PatientID}
}

// NewUser is the input of CreateUser.
type NewUser struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Identity  *Identity `json:"identity"`
}
