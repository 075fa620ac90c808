package identity

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicsched/clinic/internal/platform/apperr"
	"github.com/clinicsched/clinic/internal/platform/db"
)

const (
	emailConstraint   = "identity_email_key"
	patientConstraint = "identity_patient_id_key"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const identityCols = `id, name, email, password_hash, role, patient_id, created_at`

func scanIdentity(row pgx.Row) (*Identity, error) {
	var i Identity
	err := row.Scan(&i.ID, &i.Name, &i.Email, &i.PasswordHash, &i.Role, &i.PatientID, &i.CreatedAt)
	return &i, err
}

func (r *repoPG) Create(ctx context.Context, i *Identity) error {
	i.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO identity (id, name, email, password_hash, role, patient_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		i.ID, i.Name, i.Email, i.PasswordHash, i.Role, i.PatientID,
	).Scan(&i.CreatedAt)
	switch {
	case err == nil:
		return nil
	case db.IsUniqueViolation(err, emailConstraint):
		return ErrEmailTaken
	case db.IsUniqueViolation(err, patientConstraint):
		return apperr.New(apperr.KindConflict, "patient_already_linked", "patient already has a login")
	default:
		return apperr.Persistence("insert identity", err)
	}
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Identity, error) {
	i, err := scanIdentity(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+identityCols+` FROM identity WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, ErrIdentityNotFound
	}
	if err != nil {
		return nil, apperr.Persistence("get identity", err)
	}
	return i, nil
}

func (r *repoPG) GetByEmail(ctx context.Context, email string) (*Identity, error) {
	i, err := scanIdentity(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+identityCols+` FROM identity WHERE email = $1`, email))
	if db.IsNoRows(err) {
		return nil, ErrIdentityNotFound
	}
	if err != nil {
		return nil, apperr.Persistence("get identity by email", err)
	}
	return i, nil
}

func (r *repoPG) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM identity WHERE email = $1)`, email).Scan(&exists)
	if err != nil {
		return false, apperr.Persistence("check identity email", err)
	}
	return exists, nil
}
