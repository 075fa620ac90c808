package patient

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicsched/clinic/internal/platform/apperr"
	"github.com/clinicsched/clinic/internal/platform/db"
)

const nationalIDConstraint = "patient_national_id_key"

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const patientCols = `id, name, national_id, phone, birth_date, basic_history, created_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.NationalID, &p.Phone, &p.BirthDate, &p.BasicHistory, &p.CreatedAt)
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient (id, name, national_id, phone, birth_date, basic_history)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		p.ID, p.Name, p.NationalID, p.Phone, p.BirthDate, p.BasicHistory,
	).Scan(&p.CreatedAt)
	if db.IsUniqueViolation(err, nationalIDConstraint) {
		return ErrDuplicateNationalID
	}
	if err != nil {
		return apperr.Persistence("insert patient", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, apperr.Persistence("get patient", err)
	}
	return p, nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	conn := db.Conn(ctx, r.pool)

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, apperr.Persistence("count patients", err)
	}

	rows, err := conn.Query(ctx,
		`SELECT `+patientCols+` FROM patient ORDER BY name, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, apperr.Persistence("list patients", err)
	}
	defer rows.Close()

	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, apperr.Persistence("scan patient", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Persistence("list patients", err)
	}
	return items, total, nil
}
