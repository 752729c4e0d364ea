package device

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-device-auth/pkg/errors"
	"github.com/tendant/simple-device-auth/pkg/utils"
)

var confirmationCodeMax = big.NewInt(1_000_000)

var errInvalidConfirmation = errors.New(errors.ErrCodeInvalidCredentials, "invalid or expired confirmation code")

// IssueConfirmation stores a fresh six digit code for a binding, replacing any
// pending one, and returns the code in clear for delivery. Wrong guesses made
// against a pending code that has not expired count against the new one.
func (s *Service) IssueConfirmation(ctx context.Context, accountID uuid.UUID, fingerprint string) (string, time.Time, error) {
	n, err := rand.Int(rand.Reader, confirmationCodeMax)
	if err != nil {
		return "", time.Time{}, errors.InternalWrap(err, "failed to generate confirmation code")
	}
	code := fmt.Sprintf("%06d", n.Int64())
	expiresAt := s.now().Add(s.confirmationTTL)

	err = s.repo.SaveConfirmation(ctx, Confirmation{
		AccountID:   accountID,
		Fingerprint: fingerprint,
		CodeHash:    hashConfirmationCode(accountID, fingerprint, code),
		ExpiresAt:   expiresAt,
		CreatedAt:   s.now(),
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return code, expiresAt, nil
}

// ConfirmDevice checks a confirmation code and trusts the binding. Codes are
// single use and stop working after the configured number of guesses.
func (s *Service) ConfirmDevice(ctx context.Context, accountID uuid.UUID, fingerprint, code string) (Binding, error) {
	c, err := s.repo.GetConfirmation(ctx, accountID, fingerprint)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			return Binding{}, errInvalidConfirmation
		}
		return Binding{}, err
	}

	if !s.now().Before(c.ExpiresAt) {
		s.dropConfirmation(ctx, accountID, fingerprint)
		return Binding{}, errInvalidConfirmation
	}

	attempts, err := s.repo.IncrementConfirmationAttempts(ctx, accountID, fingerprint)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			return Binding{}, errInvalidConfirmation
		}
		return Binding{}, err
	}
	if attempts > s.confirmationAttempts {
		// kept until it expires so a reissued code inherits the count
		slog.Warn("Confirmation attempts exhausted", "account_id", accountID, "fingerprint", utils.ShortFingerprint(fingerprint))
		return Binding{}, errInvalidConfirmation
	}

	expected := hashConfirmationCode(accountID, fingerprint, code)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(c.CodeHash)) != 1 {
		return Binding{}, errInvalidConfirmation
	}

	if err := s.repo.DeleteConfirmation(ctx, accountID, fingerprint); err != nil {
		return Binding{}, err
	}
	return s.MarkTrusted(ctx, accountID, fingerprint)
}

// PurgeExpiredConfirmations deletes codes past their expiry.
func (s *Service) PurgeExpiredConfirmations(ctx context.Context) (int, error) {
	return s.repo.PurgeExpiredConfirmations(ctx, s.now())
}

func (s *Service) dropConfirmation(ctx context.Context, accountID uuid.UUID, fingerprint string) {
	if err := s.repo.DeleteConfirmation(ctx, accountID, fingerprint); err != nil {
		slog.Warn("Failed to delete confirmation", "err", err)
	}
}

func hashConfirmationCode(accountID uuid.UUID, fingerprint, code string) string {
	sum := sha256.Sum256([]byte(accountID.String() + "\x00" + fingerprint + "\x00" + code))
	return hex.EncodeToString(sum[:])
}
