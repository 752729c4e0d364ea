package sessions

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/tendant/simple-device-auth/pkg/errors"
	"github.com/tendant/simple-device-auth/pkg/utils"
)

const (
	// TokenBytes is the amount of randomness in a token (256 bits)
	TokenBytes = 32

	DefaultTouchInterval = time.Minute
	DefaultTouchTimeout  = 5 * time.Second
)

// Service issues and validates opaque, device-bound session tokens
type Service struct {
	repo          Repository
	hmacKey       []byte
	now           func() time.Time
	touchInterval time.Duration
	touchTimeout  time.Duration
	touches       sync.WaitGroup
}

// Option configures a Service
type Option func(*Service)

// WithHMACKey keys the token hash. Without a key tokens are hashed with plain SHA-256.
func WithHMACKey(key []byte) Option {
	return func(s *Service) {
		s.hmacKey = key
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithTouch sets how stale LastSeenAt may get before Validate refreshes it and
// how long the background refresh may take.
func WithTouch(interval, timeout time.Duration) Option {
	return func(s *Service) {
		s.touchInterval = interval
		if timeout > 0 {
			s.touchTimeout = timeout
		}
	}
}

// NewService creates a new session service
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		now:           func() time.Time { return time.Now().UTC() },
		touchInterval: DefaultTouchInterval,
		touchTimeout:  DefaultTouchTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue creates a session bound to fingerprint and returns the raw token once.
func (s *Service) Issue(ctx context.Context, accountID uuid.UUID, fingerprint string, scope Scope, ttl time.Duration) (IssuedToken, error) {
	if ttl <= 0 {
		return IssuedToken{}, errors.New(errors.ErrCodeInternal, "session ttl must be positive")
	}

	raw := make([]byte, TokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return IssuedToken{}, errors.InternalWrap(err, "failed to generate token")
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	now := s.now()
	session := Session{
		ID:          ulid.Make().String(),
		AccountID:   accountID,
		Fingerprint: fingerprint,
		Scope:       scope,
		TokenHash:   s.hashToken(token),
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
		LastSeenAt:  now,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return IssuedToken{}, err
	}

	slog.Debug("Session issued", "session_id", session.ID, "account_id", accountID, "scope", scope)
	return IssuedToken{Token: token, Session: session}, nil
}

// Validate resolves a token presented from fingerprint. Checks run in order:
// unknown, revoked, expired, device mismatch.
func (s *Service) Validate(ctx context.Context, token, fingerprint string) (Session, error) {
	if token == "" {
		return Session{}, errors.Unauthorized("missing token")
	}

	session, err := s.repo.GetByTokenHash(ctx, s.hashToken(token))
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			return Session{}, errors.Unauthorized("invalid token")
		}
		return Session{}, err
	}

	now := s.now()
	if session.IsRevoked() {
		return Session{}, errors.New(errors.ErrCodeTokenRevoked, "token has been revoked")
	}
	if session.IsExpired(now) {
		return Session{}, errors.New(errors.ErrCodeTokenExpired, "token has expired")
	}
	if subtle.ConstantTimeCompare([]byte(session.Fingerprint), []byte(fingerprint)) != 1 {
		slog.Warn("Token presented from another device", "session_id", session.ID, "account_id", session.AccountID, "fingerprint", utils.ShortFingerprint(fingerprint))
		return Session{}, errors.New(errors.ErrCodeDeviceMismatch, "token is bound to another device")
	}

	if now.Sub(session.LastSeenAt) >= s.touchInterval {
		s.touch(session.ID, now)
		session.LastSeenAt = now
	}
	return session, nil
}

// touch refreshes LastSeenAt off the request path. Failures are only logged.
func (s *Service) touch(id string, at time.Time) {
	s.touches.Add(1)
	go func() {
		defer s.touches.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.touchTimeout)
		defer cancel()
		if err := s.repo.UpdateLastSeen(ctx, id, at); err != nil {
			slog.Warn("Failed to update session last seen", "session_id", id, "err", err)
		}
	}()
}

// Wait blocks until pending LastSeenAt updates have finished
func (s *Service) Wait() {
	s.touches.Wait()
}

// Revoke revokes the session of a token. Unknown and already revoked tokens are not an error.
func (s *Service) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	session, err := s.repo.GetByTokenHash(ctx, s.hashToken(token))
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			return nil
		}
		return err
	}
	return s.RevokeSession(ctx, session.ID)
}

// RevokeSession revokes a session by ID
func (s *Service) RevokeSession(ctx context.Context, id string) error {
	if err := s.repo.Revoke(ctx, id, s.now()); err != nil {
		return err
	}
	slog.Info("Session revoked", "session_id", id)
	return nil
}

// RevokeDevice revokes every live session of one device of an account
func (s *Service) RevokeDevice(ctx context.Context, accountID uuid.UUID, fingerprint string) (int, error) {
	n, err := s.repo.RevokeByDevice(ctx, accountID, fingerprint, s.now())
	if err != nil {
		return 0, err
	}
	slog.Info("Device sessions revoked", "account_id", accountID, "fingerprint", utils.ShortFingerprint(fingerprint), "count", n)
	return n, nil
}

// GetSession retrieves a session by ID
func (s *Service) GetSession(ctx context.Context, id string) (Session, error) {
	return s.repo.GetByID(ctx, id)
}

// ListActiveSessions lists live sessions of an account
func (s *Service) ListActiveSessions(ctx context.Context, accountID uuid.UUID) ([]Session, error) {
	return s.repo.ListActiveByAccount(ctx, accountID, s.now())
}

// ListActiveSessionSummaries returns a simplified view of live sessions
func (s *Service) ListActiveSessionSummaries(ctx context.Context, accountID uuid.UUID, currentID string) (SessionListResponse, error) {
	list, err := s.ListActiveSessions(ctx, accountID)
	if err != nil {
		return SessionListResponse{}, err
	}

	summaries := make([]SessionSummary, len(list))
	for i, session := range list {
		summaries[i] = SessionSummary{
			ID:               session.ID,
			DeviceID:         session.Fingerprint,
			Scope:            session.Scope,
			IssuedAt:         session.IssuedAt,
			ExpiresAt:        session.ExpiresAt,
			LastSeenAt:       session.LastSeenAt,
			IsCurrentSession: session.ID == currentID,
		}
	}
	return SessionListResponse{Sessions: summaries, Total: len(summaries)}, nil
}

// PurgeExpired deletes sessions past their expiry
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("Purged expired sessions", "count", n)
	}
	return n, nil
}

func (s *Service) hashToken(token string) string {
	if len(s.hmacKey) > 0 {
		mac := hmac.New(sha256.New, s.hmacKey)
		mac.Write([]byte(token))
		return hex.EncodeToString(mac.Sum(nil))
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
