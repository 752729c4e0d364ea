package device

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

// DB is a DBTX that can open transactions. *pgxpool.Pool and pgx.Tx both satisfy it.
type DB interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

const bindingColumns = `account_id, fingerprint, trust_state, successful_logins, first_seen_at, last_seen_at`

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository creates a new PostgreSQL device repository
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// RecordBinding bumps last_seen_at of an existing binding. Otherwise it locks the
// account row so that concurrent first logins of one account are serialized and
// the "no bindings yet" check and the insert see the same data.
func (r *PostgresRepository) RecordBinding(ctx context.Context, accountID uuid.UUID, fingerprint string) (b Binding, created bool, err error) {
	touch := `
		UPDATE device_binding SET last_seen_at = now()
		WHERE account_id = $1 AND fingerprint = $2
		RETURNING ` + bindingColumns

	b, err = scanBinding(r.db.QueryRow(ctx, touch, accountID, fingerprint))
	if err == nil {
		return b, false, nil
	}
	if !stderrors.Is(err, pgx.ErrNoRows) {
		slog.Error("Failed to touch device binding", "err", err)
		return Binding{}, false, utils.StorageError(err, "failed to record device binding")
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return Binding{}, false, utils.StorageError(err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !stderrors.Is(rbErr, pgx.ErrTxClosed) {
				slog.Warn("Failed to roll back device binding transaction", "err", rbErr)
			}
		}
	}()

	var lockedID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT id FROM account WHERE id = $1 FOR UPDATE`, accountID).Scan(&lockedID)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			err = errors.NotFound("account")
			return Binding{}, false, err
		}
		err = utils.StorageError(err, "failed to lock account")
		return Binding{}, false, err
	}

	insert := `
		INSERT INTO device_binding (account_id, fingerprint, trust_state)
		SELECT $1::uuid, $2::text,
			CASE WHEN EXISTS (SELECT 1 FROM device_binding WHERE account_id = $1::uuid)
				THEN 'new' ELSE 'trusted' END
		ON CONFLICT (account_id, fingerprint) DO UPDATE SET last_seen_at = now()
		RETURNING ` + bindingColumns + `, (xmax = 0) AS inserted`

	var state string
	err = tx.QueryRow(ctx, insert, accountID, fingerprint).Scan(
		&b.AccountID,
		&b.Fingerprint,
		&state,
		&b.SuccessfulLogins,
		&b.FirstSeenAt,
		&b.LastSeenAt,
		&created,
	)
	if err != nil {
		slog.Error("Failed to insert device binding", "err", err)
		err = utils.StorageError(err, "failed to record device binding")
		return Binding{}, false, err
	}
	b.TrustState = TrustState(state)

	if err = tx.Commit(ctx); err != nil {
		err = utils.StorageError(err, "failed to commit device binding")
		return Binding{}, false, err
	}

	if created {
		slog.Debug("Device binding created", "account_id", accountID, "fingerprint", utils.ShortFingerprint(fingerprint), "trust_state", b.TrustState)
	}
	return b, created, nil
}

func (r *PostgresRepository) GetBinding(ctx context.Context, accountID uuid.UUID, fingerprint string) (Binding, error) {
	query := `SELECT ` + bindingColumns + ` FROM device_binding WHERE account_id = $1 AND fingerprint = $2`

	b, err := scanBinding(r.db.QueryRow(ctx, query, accountID, fingerprint))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return Binding{}, errors.NotFound("device")
		}
		return Binding{}, utils.StorageError(err, "failed to load device binding")
	}
	return b, nil
}

func (r *PostgresRepository) ListBindings(ctx context.Context, accountID uuid.UUID) ([]Binding, error) {
	query := `SELECT ` + bindingColumns + ` FROM device_binding WHERE account_id = $1 ORDER BY first_seen_at`

	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, utils.StorageError(err, "failed to list device bindings")
	}
	defer rows.Close()

	bindings := []Binding{}
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, utils.StorageError(err, "failed to scan device binding")
		}
		bindings = append(bindings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.StorageError(err, "failed to list device bindings")
	}
	return bindings, nil
}

// UpdateTrustState guards the revoked state inside the UPDATE itself. A miss is
// resolved by a follow-up read to tell a missing binding from a revoked one.
func (r *PostgresRepository) UpdateTrustState(ctx context.Context, accountID uuid.UUID, fingerprint string, state TrustState) (Binding, error) {
	query := `
		UPDATE device_binding SET trust_state = $3
		WHERE account_id = $1 AND fingerprint = $2 AND trust_state <> 'revoked'
		RETURNING ` + bindingColumns

	b, err := scanBinding(r.db.QueryRow(ctx, query, accountID, fingerprint, string(state)))
	if err == nil {
		return b, nil
	}
	if !stderrors.Is(err, pgx.ErrNoRows) {
		slog.Error("Failed to update device trust state", "err", err)
		return Binding{}, utils.StorageError(err, "failed to update device binding")
	}

	current, err := r.GetBinding(ctx, accountID, fingerprint)
	if err != nil {
		return Binding{}, err
	}
	if current.TrustState == TrustStateRevoked && state != TrustStateRevoked {
		return current, errors.New(errors.ErrCodeDeviceRevoked, "device has been revoked")
	}
	return current, nil
}

func (r *PostgresRepository) IncrementSuccessfulLogins(ctx context.Context, accountID uuid.UUID, fingerprint string) (Binding, error) {
	query := `
		UPDATE device_binding SET successful_logins = successful_logins + 1
		WHERE account_id = $1 AND fingerprint = $2
		RETURNING ` + bindingColumns

	b, err := scanBinding(r.db.QueryRow(ctx, query, accountID, fingerprint))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return Binding{}, errors.NotFound("device")
		}
		return Binding{}, utils.StorageError(err, "failed to update device binding")
	}
	return b, nil
}

// SaveConfirmation replaces any pending code for the binding. Attempts carry
// over from a code that has not expired yet and reset otherwise.
func (r *PostgresRepository) SaveConfirmation(ctx context.Context, c Confirmation) error {
	query := `
		INSERT INTO device_confirmation (account_id, fingerprint, code_hash, expires_at, attempts)
		VALUES ($1, $2, $3, $4, 0)
		ON CONFLICT (account_id, fingerprint)
		DO UPDATE SET code_hash = EXCLUDED.code_hash, expires_at = EXCLUDED.expires_at,
			attempts = CASE WHEN device_confirmation.expires_at > now() THEN device_confirmation.attempts ELSE 0 END,
			created_at = now()
	`
	_, err := r.db.Exec(ctx, query, c.AccountID, c.Fingerprint, c.CodeHash, c.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == "23503" {
			return errors.NotFound("device")
		}
		slog.Error("Failed to save device confirmation", "err", err)
		return utils.StorageError(err, "failed to save device confirmation")
	}
	return nil
}

func (r *PostgresRepository) GetConfirmation(ctx context.Context, accountID uuid.UUID, fingerprint string) (Confirmation, error) {
	query := `
		SELECT account_id, fingerprint, code_hash, expires_at, attempts, created_at
		FROM device_confirmation
		WHERE account_id = $1 AND fingerprint = $2
	`
	var c Confirmation
	err := r.db.QueryRow(ctx, query, accountID, fingerprint).Scan(
		&c.AccountID,
		&c.Fingerprint,
		&c.CodeHash,
		&c.ExpiresAt,
		&c.Attempts,
		&c.CreatedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return Confirmation{}, errors.NotFound("confirmation")
		}
		return Confirmation{}, utils.StorageError(err, "failed to load device confirmation")
	}
	return c, nil
}

func (r *PostgresRepository) IncrementConfirmationAttempts(ctx context.Context, accountID uuid.UUID, fingerprint string) (int, error) {
	query := `
		UPDATE device_confirmation SET attempts = attempts + 1
		WHERE account_id = $1 AND fingerprint = $2
		RETURNING attempts
	`
	var attempts int
	err := r.db.QueryRow(ctx, query, accountID, fingerprint).Scan(&attempts)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return 0, errors.NotFound("confirmation")
		}
		return 0, utils.StorageError(err, "failed to update device confirmation")
	}
	return attempts, nil
}

func (r *PostgresRepository) DeleteConfirmation(ctx context.Context, accountID uuid.UUID, fingerprint string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM device_confirmation WHERE account_id = $1 AND fingerprint = $2`, accountID, fingerprint)
	if err != nil {
		return utils.StorageError(err, "failed to delete device confirmation")
	}
	return nil
}

func (r *PostgresRepository) PurgeExpiredConfirmations(ctx context.Context, before time.Time) (int, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM device_confirmation WHERE expires_at <= $1`, before)
	if err != nil {
		return 0, utils.StorageError(err, "failed to purge device confirmations")
	}
	return int(tag.RowsAffected()), nil
}

func scanBinding(row pgx.Row) (Binding, error) {
	var b Binding
	var state string
	err := row.Scan(
		&b.AccountID,
		&b.Fingerprint,
		&state,
		&b.SuccessfulLogins,
		&b.FirstSeenAt,
		&b.LastSeenAt,
	)
	b.TrustState = TrustState(state)
	return b, err
}
