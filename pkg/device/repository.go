package device

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tendant/simple-device-auth/pkg/errors"
)

// TrustState is the trust level of a binding.
type TrustState string

const (
	TrustStateNew     TrustState = "new"
	TrustStateTrusted TrustState = "trusted"
	TrustStateRevoked TrustState = "revoked"
)

// Binding associates an account with a device fingerprint.
type Binding struct {
	AccountID        uuid.UUID  `json:"account_id"`
	Fingerprint      string     `json:"device_id"`
	TrustState       TrustState `json:"trust_state"`
	SuccessfulLogins int        `json:"successful_logins"`
	FirstSeenAt      time.Time  `json:"first_seen_at"`
	LastSeenAt       time.Time  `json:"last_seen_at"`
}

// Confirmation is a pending one-time code for a new binding. Only the hash of
// the code is stored.
type Confirmation struct {
	AccountID   uuid.UUID
	Fingerprint string
	CodeHash    string
	ExpiresAt   time.Time
	Attempts    int
	CreatedAt   time.Time
}

// Repository defines the storage operations of the device registry.
//
// RecordBinding is an atomic upsert: when no binding exists for the pair it is
// created as trusted if the account has no bindings at all, otherwise as new.
// The boolean result reports whether the binding was created by this call.
//
// UpdateTrustState never moves a revoked binding; asking to do so fails with
// errors.ErrCodeDeviceRevoked. Revoking an already revoked binding succeeds.
type Repository interface {
	RecordBinding(ctx context.Context, accountID uuid.UUID, fingerprint string) (Binding, bool, error)
	GetBinding(ctx context.Context, accountID uuid.UUID, fingerprint string) (Binding, error)
	ListBindings(ctx context.Context, accountID uuid.UUID) ([]Binding, error)
	UpdateTrustState(ctx context.Context, accountID uuid.UUID, fingerprint string, state TrustState) (Binding, error)
	IncrementSuccessfulLogins(ctx context.Context, accountID uuid.UUID, fingerprint string) (Binding, error)

	// Confirmation codes
	SaveConfirmation(ctx context.Context, confirmation Confirmation) error
	GetConfirmation(ctx context.Context, accountID uuid.UUID, fingerprint string) (Confirmation, error)
	IncrementConfirmationAttempts(ctx context.Context, accountID uuid.UUID, fingerprint string) (int, error)
	DeleteConfirmation(ctx context.Context, accountID uuid.UUID, fingerprint string) error
	PurgeExpiredConfirmations(ctx context.Context, before time.Time) (int, error)
}

// DefaultMaxFingerprintLength bounds the size of a client-supplied fingerprint.
const DefaultMaxFingerprintLength = 256

// ValidateFingerprint checks the shape of a fingerprint and returns it trimmed.
func ValidateFingerprint(fingerprint string, maxLength int) (string, error) {
	if maxLength <= 0 {
		maxLength = DefaultMaxFingerprintLength
	}
	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return "", errors.InvalidInput("deviceId", "is required")
	}
	if len(fingerprint) > maxLength {
		return "", errors.InvalidInput("deviceId", "is too long")
	}
	if !utf8.ValidString(fingerprint) {
		return "", errors.InvalidInput("deviceId", "is not valid UTF-8")
	}
	for _, r := range fingerprint {
		if unicode.IsControl(r) {
			return "", errors.InvalidInput("deviceId", "contains control characters")
		}
	}
	return fingerprint, nil
}

func bindingKey(accountID uuid.UUID, fingerprint string) string {
	return accountID.String() + ":" + fingerprint
}
