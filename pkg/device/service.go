package device

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-device-auth/pkg/utils"
)

const (
	DefaultConfirmationTTL      = 15 * time.Minute
	DefaultConfirmationAttempts = 5
)

// Service handles device binding and trust decisions
type Service struct {
	repo                 Repository
	policy               TrustPolicy
	maxFingerprintLength int
	confirmationTTL      time.Duration
	confirmationAttempts int
	now                  func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithTrustPolicy sets the policy used by EvaluateTrust
func WithTrustPolicy(policy TrustPolicy) Option {
	return func(s *Service) {
		if policy != nil {
			s.policy = policy
		}
	}
}

func WithMaxFingerprintLength(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxFingerprintLength = n
		}
	}
}

// WithConfirmation sets the lifetime and the number of allowed guesses of a
// confirmation code.
func WithConfirmation(ttl time.Duration, attempts int) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.confirmationTTL = ttl
		}
		if attempts > 0 {
			s.confirmationAttempts = attempts
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new device service with the given repository
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:                 repo,
		policy:               FirstDevicePolicy{},
		maxFingerprintLength: DefaultMaxFingerprintLength,
		confirmationTTL:      DefaultConfirmationTTL,
		confirmationAttempts: DefaultConfirmationAttempts,
		now:                  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateFingerprint checks a fingerprint against the configured limits.
func (s *Service) ValidateFingerprint(fingerprint string) (string, error) {
	return ValidateFingerprint(fingerprint, s.maxFingerprintLength)
}

// RecordBinding creates the binding on first sight or refreshes LastSeenAt.
func (s *Service) RecordBinding(ctx context.Context, accountID uuid.UUID, fingerprint string) (Binding, error) {
	fingerprint, err := s.ValidateFingerprint(fingerprint)
	if err != nil {
		return Binding{}, err
	}

	b, created, err := s.repo.RecordBinding(ctx, accountID, fingerprint)
	if err != nil {
		return Binding{}, err
	}
	if created {
		slog.Info("New device bound to account", "account_id", accountID, "fingerprint", utils.ShortFingerprint(fingerprint), "trust_state", b.TrustState)
	}
	return b, nil
}

func (s *Service) GetBinding(ctx context.Context, accountID uuid.UUID, fingerprint string) (Binding, error) {
	return s.repo.GetBinding(ctx, accountID, fingerprint)
}

func (s *Service) ListBindings(ctx context.Context, accountID uuid.UUID) ([]Binding, error) {
	return s.repo.ListBindings(ctx, accountID)
}

// MarkTrusted trusts a binding. Revoked bindings fail with DeviceRevoked.
func (s *Service) MarkTrusted(ctx context.Context, accountID uuid.UUID, fingerprint string) (Binding, error) {
	b, err := s.repo.UpdateTrustState(ctx, accountID, fingerprint, TrustStateTrusted)
	if err != nil {
		return Binding{}, err
	}
	slog.Info("Device trusted", "account_id", accountID, "fingerprint", utils.ShortFingerprint(fingerprint))
	return b, nil
}

// Revoke marks a binding revoked. Revoking twice is not an error.
func (s *Service) Revoke(ctx context.Context, accountID uuid.UUID, fingerprint string) (Binding, error) {
	b, err := s.repo.UpdateTrustState(ctx, accountID, fingerprint, TrustStateRevoked)
	if err != nil {
		return Binding{}, err
	}
	if err := s.repo.DeleteConfirmation(ctx, accountID, fingerprint); err != nil {
		slog.Warn("Failed to drop pending confirmation of revoked device", "err", err)
	}
	slog.Info("Device revoked", "account_id", accountID, "fingerprint", utils.ShortFingerprint(fingerprint))
	return b, nil
}

// EvaluateTrust applies the configured policy.
func (s *Service) EvaluateTrust(b Binding) TrustState {
	if b.TrustState == TrustStateRevoked {
		return TrustStateRevoked
	}
	return s.policy.Evaluate(b)
}

// RecordSuccessfulLogin counts a login from the binding and persists a promotion
// to trusted when the policy grants one.
func (s *Service) RecordSuccessfulLogin(ctx context.Context, accountID uuid.UUID, fingerprint string) (Binding, error) {
	b, err := s.repo.IncrementSuccessfulLogins(ctx, accountID, fingerprint)
	if err != nil {
		return Binding{}, err
	}
	if b.TrustState == TrustStateNew && s.EvaluateTrust(b) == TrustStateTrusted {
		slog.Info("Device promoted by trust policy", "account_id", accountID, "fingerprint", utils.ShortFingerprint(fingerprint), "logins", b.SuccessfulLogins)
		return s.MarkTrusted(ctx, accountID, fingerprint)
	}
	return b, nil
}
