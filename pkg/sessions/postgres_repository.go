package sessions

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/tendant/simple-device-auth/pkg/errors"
	"github.com/tendant/simple-device-auth/pkg/utils"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

const sessionColumns = `id, account_id, fingerprint, scope, token_hash, issued_at, expires_at, revoked_at, last_seen_at`

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository creates a new PostgreSQL session repository
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, s Session) error {
	query := `
		INSERT INTO session (id, account_id, fingerprint, scope, token_hash, issued_at, expires_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		s.ID,
		s.AccountID,
		s.Fingerprint,
		string(s.Scope),
		s.TokenHash,
		s.IssuedAt,
		s.ExpiresAt,
		s.LastSeenAt,
	)
	if err != nil {
		slog.Error("Failed to create session", "err", err)
		return utils.StorageError(err, "failed to create session")
	}
	return nil
}

func (r *PostgresRepository) GetByTokenHash(ctx context.Context, tokenHash string) (Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM session WHERE token_hash = $1`
	return r.getOne(ctx, query, tokenHash)
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM session WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg interface{}) (Session, error) {
	s, err := scanSession(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return Session{}, errors.NotFound("session")
		}
		return Session{}, utils.StorageError(err, "failed to load session")
	}
	return s, nil
}

func (r *PostgresRepository) ListActiveByAccount(ctx context.Context, accountID uuid.UUID, now time.Time) ([]Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM session
		WHERE account_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY issued_at DESC
	`
	rows, err := r.db.Query(ctx, query, accountID, now)
	if err != nil {
		return nil, utils.StorageError(err, "failed to list sessions")
	}
	defer rows.Close()

	result := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, utils.StorageError(err, "failed to scan session")
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.StorageError(err, "failed to list sessions")
	}
	return result, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE session SET revoked_at = COALESCE(revoked_at, $2) WHERE id = $1`, id, at)
	if err != nil {
		return utils.StorageError(err, "failed to revoke session")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("session")
	}
	return nil
}

func (r *PostgresRepository) RevokeByDevice(ctx context.Context, accountID uuid.UUID, fingerprint string, at time.Time) (int, error) {
	query := `
		UPDATE session SET revoked_at = $3
		WHERE account_id = $1 AND fingerprint = $2 AND revoked_at IS NULL
	`
	tag, err := r.db.Exec(ctx, query, accountID, fingerprint, at)
	if err != nil {
		return 0, utils.StorageError(err, "failed to revoke device sessions")
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE session SET last_seen_at = $2 WHERE id = $1 AND last_seen_at < $2`, id, at)
	if err != nil {
		return utils.StorageError(err, "failed to update session activity")
	}
	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM session WHERE expires_at < $1`, before)
	if err != nil {
		return 0, utils.StorageError(err, "failed to delete expired sessions")
	}
	return int(tag.RowsAffected()), nil
}

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	var scope string
	err := row.Scan(
		&s.ID,
		&s.AccountID,
		&s.Fingerprint,
		&scope,
		&s.TokenHash,
		&s.IssuedAt,
		&s.ExpiresAt,
		&s.RevokedAt,
		&s.LastSeenAt,
	)
	s.Scope = Scope(scope)
	return s, err
}
