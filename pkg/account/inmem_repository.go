package account

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-device-auth/pkg/errors"
	"github.com/tendant/simple-device-auth/pkg/utils"
)

// InMemRepository implements Repository using in-memory storage
type InMemRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]Account
	byEmail map[string]uuid.UUID // normalized email -> id
	now     func() time.Time
}

func NewInMemRepository() *InMemRepository {
	return &InMemRepository{
		byID:    make(map[uuid.UUID]Account),
		byEmail: make(map[string]uuid.UUID),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateAccount checks and inserts under one write lock.
func (r *InMemRepository) CreateAccount(ctx context.Context, email, passwordDigest string) (Account, error) {
	email = NormalizeEmail(email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[email]; exists {
		slog.Debug("Account already exists", "email", utils.MaskEmail(email))
		return Account{}, errors.New(errors.ErrCodeDuplicateEmail, "an account with this email already exists")
	}

	acct := Account{
		ID:             uuid.New(),
		Email:          email,
		PasswordDigest: passwordDigest,
		CreatedAt:      r.now(),
	}
	r.byID[acct.ID] = acct
	r.byEmail[email] = acct.ID

	slog.Debug("Account created", "account_id", acct.ID)
	return acct, nil
}

func (r *InMemRepository) FindByEmail(ctx context.Context, email string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[NormalizeEmail(email)]
	if !ok {
		return Account{}, errors.NotFound("account")
	}
	return r.byID[id], nil
}

func (r *InMemRepository) GetByID(ctx context.Context, id uuid.UUID) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	acct, ok := r.byID[id]
	if !ok {
		return Account{}, errors.NotFound("account")
	}
	return acct, nil
}

// Count returns the number of stored accounts.
func (r *InMemRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
