package scheduling

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicsched/clinic/internal/platform/apperr"
	"github.com/clinicsched/clinic/internal/platform/calendar"
)

type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
)

// CanTransitionTo reports whether an appointment in s may move to next.
// Only SCHEDULED appointments change state; CANCELLED and COMPLETED are final.
func (s Status) CanTransitionTo(next Status) bool {
	if s != StatusScheduled {
		return false
	}
	return next == StatusCancelled || next == StatusCompleted
}

// Action is a clinician request to end a scheduled appointment.
type Action string

const (
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
)

func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionCancel, ActionComplete:
		return a, nil
	}
	return "", apperr.Validation(fmt.Sprintf("unknown action %q", s))
}

// Target is the status an action moves a SCHEDULED appointment to.
func (a Action) Target() Status {
	if a == ActionComplete {
		return StatusCompleted
	}
	return StatusCancelled
}

type Appointment struct {
	ID                uuid.UUID          `json:"id"`
	PatientID         uuid.UUID          `json:"patient_id"`
	PatientName       string             `json:"patient_name"`
	PatientNationalID string             `json:"patient_national_id"`
	Date              calendar.Date      `json:"date"`
	Time              calendar.TimeOfDay `json:"time"`
	VisitType         string             `json:"visit_type"`
	BookedByID        uuid.UUID          `json:"booked_by_id"`
	Status            Status             `json:"status"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// BookingRequest carries the raw booking fields as they arrive from a client.
type BookingRequest struct {
	PatientID string `json:"patient_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	VisitType string `json:"visit_type"`
}

// PatientSummary is the part of a patient a booking form needs.
type PatientSummary struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	NationalID string    `json:"national_id"`
}

type AvailabilityRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type Availability struct {
	Available bool   `json:"available"`
	Message   string `json:"message"`
}

type BookingResult struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
}
