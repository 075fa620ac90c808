package scheduling

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicsched/clinic/internal/platform/apperr"
	"github.com/clinicsched/clinic/internal/platform/calendar"
	"github.com/clinicsched/clinic/internal/platform/db"
)

const slotIndex = "appointment_scheduled_slot_uq"

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

const apptCols = `a.id, a.patient_id, p.name, p.national_id, a.appt_date, a.appt_time,
	a.visit_type, a.booked_by_id, a.status, a.created_at, a.updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.PatientName, &a.PatientNationalID, &a.Date, &a.Time,
		&a.VisitType, &a.BookedByID, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *appointmentRepoPG) SlotTaken(ctx context.Context, date calendar.Date, tm calendar.TimeOfDay) (bool, error) {
	var taken bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointment
			WHERE appt_date = $1 AND appt_time = $2 AND status = 'SCHEDULED'
		)`, date, tm).Scan(&taken)
	if err != nil {
		return false, apperr.Persistence("check slot", err)
	}
	return taken, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	a.Status = StatusScheduled
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, appt_date, appt_time, visit_type, booked_by_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.Date, a.Time, a.VisitType, a.BookedByID, a.Status,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err, slotIndex) {
		return apperr.Wrap(ErrSlotAlreadyBooked, err)
	}
	if err != nil {
		return apperr.Persistence("insert appointment", err)
	}
	return nil
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+apptCols+`
		FROM appointment a JOIN patient p ON p.id = a.patient_id
		WHERE a.id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, apperr.Persistence("get appointment", err)
	}
	return a, nil
}

func (r *appointmentRepoPG) TransitionScheduled(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	a, err := scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx, `
		WITH a AS (
			UPDATE appointment SET status = $2, updated_at = NOW()
			WHERE id = $1 AND status = 'SCHEDULED'
			RETURNING *
		)
		SELECT `+apptCols+`
		FROM a JOIN patient p ON p.id = a.patient_id`, id, to))
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Persistence("transition appointment", err)
	}
	return a, nil
}

func (r *appointmentRepoPG) ListUpcoming(ctx context.Context, from calendar.Date, limit, offset int) ([]*Appointment, int, error) {
	conn := db.Conn(ctx, r.pool)

	var total int
	if err := conn.QueryRow(ctx, `
		SELECT COUNT(*) FROM appointment
		WHERE status = 'SCHEDULED' AND appt_date >= $1`, from).Scan(&total); err != nil {
		return nil, 0, apperr.Persistence("count upcoming appointments", err)
	}

	rows, err := conn.Query(ctx, `
		SELECT `+apptCols+`
		FROM appointment a JOIN patient p ON p.id = a.patient_id
		WHERE a.status = 'SCHEDULED' AND a.appt_date >= $1
		ORDER BY a.appt_date, a.appt_time
		LIMIT $2 OFFSET $3`, from, limit, offset)
	if err != nil {
		return nil, 0, apperr.Persistence("list upcoming appointments", err)
	}
	defer rows.Close()

	var items []*Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, apperr.Persistence("scan appointment", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Persistence("list upcoming appointments", err)
	}
	return items, total, nil
}

// =========== Patient Lookup ===========

type patientLookupPG struct{ pool *pgxpool.Pool }

func NewPatientLookupPG(pool *pgxpool.Pool) PatientLookup {
	return &patientLookupPG{pool: pool}
}

func (r *patientLookupPG) GetSummary(ctx context.Context, id uuid.UUID) (*PatientSummary, error) {
	var s PatientSummary
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, name, national_id FROM patient WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name, &s.NationalID)
	if db.IsNoRows(err) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, apperr.Persistence("get patient", err)
	}
	return &s, nil
}

func (r *patientLookupPG) ListSummaries(ctx context.Context) ([]PatientSummary, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT id, name, national_id FROM patient ORDER BY name, id`)
	if err != nil {
		return nil, apperr.Persistence("list patients", err)
	}
	defer rows.Close()

	var out []PatientSummary
	for rows.Next() {
		var s PatientSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.NationalID); err != nil {
			return nil, apperr.Persistence("scan patient", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list patients", err)
	}
	return out, nil
}
