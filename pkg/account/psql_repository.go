package account

import (
	"context"
	stderrors "errors"
	"log/slog"

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

const emailConstraint = "account_email_key"

// PostgresRepository implements Repository using PostgreSQL. Email uniqueness is
// enforced by the account_email_key unique index.
type PostgresRepository struct {
	db DBTX
}

func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *PostgresRepository) WithTx(tx pgx.Tx) *PostgresRepository {
	return &PostgresRepository{db: tx}
}

func (r *PostgresRepository) CreateAccount(ctx context.Context, email, passwordDigest string) (Account, error) {
	email = NormalizeEmail(email)

	query := `
		INSERT INTO account (id, email, password_digest)
		VALUES ($1, $2, $3)
		RETURNING id, email, password_digest, created_at
	`

	var acct Account
	err := r.db.QueryRow(ctx, query, uuid.New(), email, passwordDigest).Scan(
		&acct.ID,
		&acct.Email,
		&acct.PasswordDigest,
		&acct.CreatedAt,
	)
	if err != nil {
		if utils.IsUniqueViolation(err, emailConstraint) {
			slog.Debug("Account already exists", "email", utils.MaskEmail(email))
			return Account{}, errors.Wrap(err, errors.ErrCodeDuplicateEmail, "an account with this email already exists")
		}
		slog.Error("Failed to create account", "err", err)
		return Account{}, utils.StorageError(err, "failed to create account")
	}

	return acct, nil
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (Account, error) {
	query := `
		SELECT id, email, password_digest, created_at
		FROM account
		WHERE email = $1
	`
	return r.scanOne(ctx, query, NormalizeEmail(email))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (Account, error) {
	query := `
		SELECT id, email, password_digest, created_at
		FROM account
		WHERE id = $1
	`
	return r.scanOne(ctx, query, id)
}

func (r *PostgresRepository) scanOne(ctx context.Context, query string, arg interface{}) (Account, error) {
	var acct Account
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&acct.ID,
		&acct.Email,
		&acct.PasswordDigest,
		&acct.CreatedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return Account{}, errors.NotFound("account")
		}
		slog.Error("Failed to load account", "err", err)
		return Account{}, utils.StorageError(err, "failed to load account")
	}
	return acct, nil
}
