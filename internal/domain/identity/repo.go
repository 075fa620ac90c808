package identity

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, i *Identity) error
	GetByID(ctx context.Context, id uuid.UUID) (*Identity, error)
	GetByEmail(ctx context.Context, email string) (*Identity, error)
	EmailExists(ctx context.Context, email string) (bool, error)
}
