package sessions

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for session data access.
// Lookups of unknown sessions fail with errors.ErrCodeNotFound.
type Repository interface {
	// Create stores a session whose ID and TokenHash are already set
	Create(ctx context.Context, s Session) error

	// GetByTokenHash looks a session up by the hash of its token
	GetByTokenHash(ctx context.Context, tokenHash string) (Session, error)

	GetByID(ctx context.Context, id string) (Session, error)

	// ListActiveByAccount lists sessions that are neither revoked nor expired at now
	ListActiveByAccount(ctx context.Context, accountID uuid.UUID, now time.Time) ([]Session, error)

	// Revoke sets revoked_at unless it is already set
	Revoke(ctx context.Context, id string, at time.Time) error

	// RevokeByDevice revokes the live sessions of one device and returns how many changed
	RevokeByDevice(ctx context.Context, accountID uuid.UUID, fingerprint string, at time.Time) (int, error)

	// UpdateLastSeen moves last_seen_at forward
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error

	// DeleteExpired removes sessions that expired before the given time
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
