package visit

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicsched/clinic/internal/platform/apperr"
	"github.com/clinicsched/clinic/internal/platform/db"
)

const appointmentConstraint = "visit_record_appointment_id_key"

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) InsertIfEligible(ctx context.Context, rec *Record) (bool, error) {
	rec.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO visit_record (id, appointment_id, description, recorded_by_id)
			SELECT $1, a.id, $3, $4
			FROM appointment a
			WHERE a.id = $2
			  AND a.status = 'COMPLETED'
			  AND NOT EXISTS (SELECT 1 FROM visit_record v WHERE v.appointment_id = a.id)
			RETURNING appointment_id, created_at
		)
		SELECT a.patient_id, ins.created_at
		FROM ins JOIN appointment a ON a.id = ins.appointment_id`,
		rec.ID, rec.AppointmentID, rec.Description, rec.RecordedByID,
	).Scan(&rec.PatientID, &rec.CreatedAt)
	if db.IsNoRows(err) || db.IsUniqueViolation(err, appointmentConstraint) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Persistence("insert visit record", err)
	}
	return true, nil
}

func (r *repoPG) AppointmentExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM appointment WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, apperr.Persistence("check appointment", err)
	}
	return exists, nil
}

func (r *repoPG) ListPending(ctx context.Context) ([]Pending, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT a.id, a.patient_id, p.name, a.appt_date, a.appt_time, a.visit_type
		FROM appointment a
		JOIN patient p ON p.id = a.patient_id
		LEFT JOIN visit_record v ON v.appointment_id = a.id
		WHERE a.status = 'COMPLETED' AND v.id IS NULL
		ORDER BY a.appt_date, a.appt_time`)
	if err != nil {
		return nil, apperr.Persistence("list pending visits", err)
	}
	defer rows.Close()

	var out []Pending
	for rows.Next() {
		var p Pending
		if err := rows.Scan(&p.AppointmentID, &p.PatientID, &p.PatientName, &p.Date, &p.Time, &p.VisitType); err != nil {
			return nil, apperr.Persistence("scan pending visit", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list pending visits", err)
	}
	return out, nil
}
