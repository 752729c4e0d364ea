package device

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-device-auth/pkg/errors"
	"github.com/tendant/simple-device-auth/pkg/utils"
)

// InMemRepository implements Repository using in-memory maps guarded by one mutex
type InMemRepository struct {
	mu            sync.Mutex
	bindings      map[string]Binding
	perAccount    map[uuid.UUID]int
	confirmations map[string]Confirmation
	now           func() time.Time
}

// NewInMemRepository creates a new in-memory device repository
func NewInMemRepository() *InMemRepository {
	return &InMemRepository{
		bindings:      make(map[string]Binding),
		perAccount:    make(map[uuid.UUID]int),
		confirmations: make(map[string]Confirmation),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// RecordBinding decides the initial state and inserts under the same lock.
func (r *InMemRepository) RecordBinding(ctx context.Context, accountID uuid.UUID, fingerprint string) (Binding, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	key := bindingKey(accountID, fingerprint)
	if b, ok := r.bindings[key]; ok {
		b.LastSeenAt = now
		r.bindings[key] = b
		return b, false, nil
	}

	state := TrustStateNew
	if r.perAccount[accountID] == 0 {
		state = TrustStateTrusted
	}
	b := Binding{
		AccountID:   accountID,
		Fingerprint: fingerprint,
		TrustState:  state,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}
	r.bindings[key] = b
	r.perAccount[accountID]++

	slog.Debug("Device binding created", "account_id", accountID, "fingerprint", utils.ShortFingerprint(fingerprint), "trust_state", state)
	return b, true, nil
}

func (r *InMemRepository) GetBinding(ctx context.Context, accountID uuid.UUID, fingerprint string) (Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bindings[bindingKey(accountID, fingerprint)]
	if !ok {
		return Binding{}, errors.NotFound("device")
	}
	return b, nil
}

func (r *InMemRepository) ListBindings(ctx context.Context, accountID uuid.UUID) ([]Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]Binding, 0, r.perAccount[accountID])
	for _, b := range r.bindings {
		if b.AccountID == accountID {
			result = append(result, b)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].FirstSeenAt.Before(result[j].FirstSeenAt)
	})
	return result, nil
}

func (r *InMemRepository) UpdateTrustState(ctx context.Context, accountID uuid.UUID, fingerprint string, state TrustState) (Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := bindingKey(accountID, fingerprint)
	b, ok := r.bindings[key]
	if !ok {
		return Binding{}, errors.NotFound("device")
	}
	if b.TrustState == TrustStateRevoked {
		if state == TrustStateRevoked {
			return b, nil
		}
		return b, errors.New(errors.ErrCodeDeviceRevoked, "device has been revoked")
	}
	b.TrustState = state
	r.bindings[key] = b
	return b, nil
}

func (r *InMemRepository) IncrementSuccessfulLogins(ctx context.Context, accountID uuid.UUID, fingerprint string) (Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := bindingKey(accountID, fingerprint)
	b, ok := r.bindings[key]
	if !ok {
		return Binding{}, errors.NotFound("device")
	}
	b.SuccessfulLogins++
	r.bindings[key] = b
	return b, nil
}

func (r *InMemRepository) SaveConfirmation(ctx context.Context, confirmation Confirmation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := bindingKey(confirmation.AccountID, confirmation.Fingerprint)
	if _, ok := r.bindings[key]; !ok {
		return errors.NotFound("device")
	}
	if confirmation.CreatedAt.IsZero() {
		confirmation.CreatedAt = r.now()
	}
	confirmation.Attempts = 0
	if prev, ok := r.confirmations[key]; ok && prev.ExpiresAt.After(confirmation.CreatedAt) {
		confirmation.Attempts = prev.Attempts
	}
	r.confirmations[key] = confirmation
	return nil
}

func (r *InMemRepository) GetConfirmation(ctx context.Context, accountID uuid.UUID, fingerprint string) (Confirmation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.confirmations[bindingKey(accountID, fingerprint)]
	if !ok {
		return Confirmation{}, errors.NotFound("confirmation")
	}
	return c, nil
}

func (r *InMemRepository) IncrementConfirmationAttempts(ctx context.Context, accountID uuid.UUID, fingerprint string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := bindingKey(accountID, fingerprint)
	c, ok := r.confirmations[key]
	if !ok {
		return 0, errors.NotFound("confirmation")
	}
	c.Attempts++
	r.confirmations[key] = c
	return c.Attempts, nil
}

func (r *InMemRepository) DeleteConfirmation(ctx context.Context, accountID uuid.UUID, fingerprint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.confirmations, bindingKey(accountID, fingerprint))
	return nil
}

func (r *InMemRepository) PurgeExpiredConfirmations(ctx context.Context, before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	purged := 0
	for key, c := range r.confirmations {
		if !c.ExpiresAt.After(before) {
			delete(r.confirmations, key)
			purged++
		}
	}
	return purged, nil
}
