package account

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-device-auth/pkg/errors"
)

// Account is a credential record. Email is always stored normalized.
type Account struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	PasswordDigest string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

const maxEmailLength = 254

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// NormalizeEmail trims and lower-cases an address. Uniqueness is defined on the
// normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the shape of a normalized address.
func ValidateEmail(email string) error {
	if email == "" {
		return errors.InvalidInput("email", "is required")
	}
	if len(email) > maxEmailLength {
		return errors.InvalidInput("email", "is too long")
	}
	if !emailRegex.MatchString(email) {
		return errors.InvalidInput("email", "invalid format")
	}
	return nil
}
