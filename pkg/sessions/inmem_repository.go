package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-device-auth/pkg/errors"
)

// InMemRepository implements Repository in memory
type InMemRepository struct {
	mu     sync.RWMutex
	byID   map[string]Session
	byHash map[string]string
}

func NewInMemRepository() *InMemRepository {
	return &InMemRepository{
		byID:   make(map[string]Session),
		byHash: make(map[string]string),
	}
}

func (r *InMemRepository) Create(ctx context.Context, s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byHash[s.TokenHash]; exists {
		return errors.New(errors.ErrCodeInternal, "token hash collision")
	}
	r.byID[s.ID] = s
	r.byHash[s.TokenHash] = s.ID
	return nil
}

func (r *InMemRepository) GetByTokenHash(ctx context.Context, tokenHash string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byHash[tokenHash]
	if !ok {
		return Session{}, errors.NotFound("session")
	}
	return r.byID[id], nil
}

func (r *InMemRepository) GetByID(ctx context.Context, id string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byID[id]
	if !ok {
		return Session{}, errors.NotFound("session")
	}
	return s, nil
}

func (r *InMemRepository) ListActiveByAccount(ctx context.Context, accountID uuid.UUID, now time.Time) ([]Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []Session{}
	for _, s := range r.byID {
		if s.AccountID == accountID && s.IsActive(now) {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].IssuedAt.After(result[j].IssuedAt)
	})
	return result, nil
}

func (r *InMemRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return errors.NotFound("session")
	}
	if s.RevokedAt == nil {
		s.RevokedAt = &at
		r.byID[id] = s
	}
	return nil
}

func (r *InMemRepository) RevokeByDevice(ctx context.Context, accountID uuid.UUID, fingerprint string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	revoked := 0
	for id, s := range r.byID {
		if s.AccountID != accountID || s.Fingerprint != fingerprint || s.RevokedAt != nil {
			continue
		}
		revokedAt := at
		s.RevokedAt = &revokedAt
		r.byID[id] = s
		revoked++
	}
	return revoked, nil
}

func (r *InMemRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[id]
	if !ok {
		return errors.NotFound("session")
	}
	if at.After(s.LastSeenAt) {
		s.LastSeenAt = at
		r.byID[id] = s
	}
	return nil
}

func (r *InMemRepository) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for id, s := range r.byID {
		if s.ExpiresAt.Before(before) {
			delete(r.byHash, s.TokenHash)
			delete(r.byID, id)
			deleted++
		}
	}
	return deleted, nil
}
