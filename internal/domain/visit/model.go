package visit

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicsched/clinic/internal/platform/calendar"
)

// Record is the clinical outcome written after an appointment is completed.
type Record struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	Description   string    `json:"description"`
	RecordedByID  uuid.UUID `json:"recorded_by_id"`
	CreatedAt     time.Time `json:"created_at"`
}

type RecordRequest struct {
	AppointmentID string `json:"appointment_id"`
	Description   string `json:"description"`
}

// Pending is a completed appointment still waiting for its record.
type Pending struct {
	AppointmentID uuid.UUID          `json:"appointment_id"`
	PatientID     uuid.UUID          `json:"patient_id"`
	PatientName   string             `json:"patient_name"`
	Date          calendar.Date      `json:"date"`
	Time          calendar.TimeOfDay `json:"time"`
	VisitType     string             `json:"visit_type"`
}
