// Package events publishes appointment lifecycle notifications to Kafka.
//
// Events are emitted after the owning transaction commits. A failed publish is
// logged and never changes the outcome of the operation that produced it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type Type string

const (
	AppointmentBooked    Type = "appointment.booked"
	AppointmentCancelled Type = "appointment.cancelled"
	AppointmentCompleted Type = "appointment.completed"
	VisitRecorded        Type = "visit.recorded"
)

// Event is the JSON payload written to the topic.
type Event struct {
	ID            uuid.UUID  `json:"id"`
	Type          Type       `json:"type"`
	OccurredAt    time.Time  `json:"occurred_at"`
	ActorID       uuid.UUID  `json:"actor_id"`
	AppointmentID uuid.UUID  `json:"appointment_id"`
	PatientID     uuid.UUID  `json:"patient_id"`
	Date          string     `json:"date,omitempty"`
	Time          string     `json:"time,omitempty"`
	VisitRecordID *uuid.UUID `json:"visit_record_id,omitempty"`
}

// New stamps an event with a fresh id and the current time.
func New(typ Type, actorID, appointmentID uuid.UUID) Event {
	return Event{
		ID:            uuid.New(),
		Type:          typ,
		OccurredAt:    time.Now().UTC(),
		ActorID:       actorID,
		AppointmentID: appointmentID,
	}
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	w messageWriter
}

// Events are written one at a time from the request path, so the writer
// flushes each message immediately instead of waiting to fill a batch.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}}
}

// Publish writes evt keyed by appointment id so every event of one
// appointment lands on the same partition in order.
func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(evt.AppointmentID.String()),
		Value: value,
		Time:  evt.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", evt.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// NopPublisher drops every event. It is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// Emitter publishes on behalf of services, detached from request
// cancellation, and logs failures instead of returning them.
type Emitter struct {
	pub     Publisher
	logger  zerolog.Logger
	timeout time.Duration
}

func NewEmitter(pub Publisher, logger zerolog.Logger) *Emitter {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &Emitter{pub: pub, logger: logger, timeout: 5 * time.Second}
}

func (e *Emitter) Emit(ctx context.Context, evt Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	if err := e.pub.Publish(ctx, evt); err != nil {
		e.logger.Warn().Err(err).
			Str("event_type", string(evt.Type)).
			Str("appointment_id", evt.AppointmentID.String()).
			Msg("publish lifecycle event")
	}
}
