package reporting

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicsched/clinic/internal/platform/apperr"
	"github.com/clinicsched/clinic/internal/platform/calendar"
	"github.com/clinicsched/clinic/internal/platform/db"
)

type storePG struct {
	pool *pgxpool.Pool
}

func NewStorePG(pool *pgxpool.Pool) Store {
	return &storePG{pool: pool}
}

func (s *storePG) CountScheduledFrom(ctx context.Context, from calendar.Date) (int, error) {
	var n int
	err := db.Conn(ctx, s.pool).QueryRow(ctx, `
		SELECT COUNT(*) FROM appointment
		WHERE status = 'SCHEDULED' AND appt_date >= $1`, from).Scan(&n)
	if err != nil {
		return 0, apperr.Persistence("count scheduled appointments", err)
	}
	return n, nil
}

func (s *storePG) ScheduledOn(ctx context.Context, day calendar.Date) ([]DayAppointment, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx, `
		SELECT a.id, p.name, a.appt_time, a.visit_type
		FROM appointment a
		JOIN patient p ON p.id = a.patient_id
		WHERE a.appt_date = $1 AND a.status = 'SCHEDULED'
		ORDER BY a.appt_time`, day)
	if err != nil {
		return nil, apperr.Persistence("list today's appointments", err)
	}
	defer rows.Close()

	var out []DayAppointment
	for rows.Next() {
		var d DayAppointment
		if err := rows.Scan(&d.AppointmentID, &d.PatientName, &d.Time, &d.VisitType); err != nil {
			return nil, apperr.Persistence("scan appointment", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("list today's appointments", err)
	}
	return out, nil
}

func (s *storePG) CountPatients(ctx context.Context) (int, error) {
	var n int
	if err := db.Conn(ctx, s.pool).QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&n); err != nil {
		return 0, apperr.Persistence("count patients", err)
	}
	return n, nil
}

func (s *storePG) PatientProfile(ctx context.Context, id uuid.UUID) (*PatientProfile, error) {
	var p PatientProfile
	err := db.Conn(ctx, s.pool).QueryRow(ctx, `
		SELECT id, name, national_id, phone, basic_history
		FROM patient WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.NationalID, &p.Phone, &p.BasicHistory)
	if db.IsNoRows(err) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, apperr.Persistence("get patient", err)
	}
	return &p, nil
}

func (s *storePG) PatientHistory(ctx context.Context, patientID uuid.UUID) ([]HistoryEntry, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx, `
		SELECT a.id, a.appt_date, a.appt_time, a.visit_type, a.status, v.description, i.name
		FROM appointment a
		LEFT JOIN visit_record v ON v.appointment_id = a.id
		LEFT JOIN identity i ON i.id = a.booked_by_id
		WHERE a.patient_id = $1
		ORDER BY a.appt_date DESC, a.appt_time DESC`, patientID)
	if err != nil {
		return nil, apperr.Persistence("patient history", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.AppointmentID, &e.Date, &e.Time, &e.VisitType, &e.Status, &e.Description, &e.BookedByName); err != nil {
			return nil, apperr.Persistence("scan history entry", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("patient history", err)
	}
	return out, nil
}

func (s *storePG) Period(ctx context.Context, from, to calendar.Date) ([]ReportRow, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx, `
		SELECT a.id, a.appt_date, a.appt_time, p.name, a.visit_type, a.status, i.name, v.description
		FROM appointment a
		JOIN patient p ON p.id = a.patient_id
		LEFT JOIN identity i ON i.id = a.booked_by_id
		LEFT JOIN visit_record v ON v.appointment_id = a.id
		WHERE a.appt_date BETWEEN $1 AND $2
		ORDER BY a.appt_date, a.appt_time`, from, to)
	if err != nil {
		return nil, apperr.Persistence("period report", err)
	}
	defer rows.Close()

	var out []ReportRow
	for rows.Next() {
		var r ReportRow
		if err := rows.Scan(&r.AppointmentID, &r.Date, &r.Time, &r.PatientName, &r.VisitType, &r.Status, &r.BookedByName, &r.Description); err != nil {
			return nil, apperr.Persistence("scan report row", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("period report", err)
	}
	return out, nil
}
