package account

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists accounts.
//
// CreateAccount must enforce email uniqueness itself, atomically with the insert,
// and fail with errors.ErrCodeDuplicateEmail. FindByEmail and GetByID fail with
// errors.ErrCodeNotFound. Connection failures surface as
// errors.ErrCodeStorageUnavailable.
type Repository interface {
	CreateAccount(ctx context.Context, email, passwordDigest string) (Account, error)
	FindByEmail(ctx context.Context, email string) (Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (Account, error)
}
