package config

import (
	"fmt"
	"time"
)

// TokenConfig holds session token settings
type TokenConfig struct {
	TTL           time.Duration `env:"SESSION_TTL" env-default:"24h"`
	RestrictedTTL time.Duration `env:"SESSION_RESTRICTED_TTL" env-default:"15m"`
	// HMACKey keys the token digest stored server side. When empty a plain SHA-256
	// digest is stored; production deployments must set it.
	HMACKey       string        `env:"SESSION_TOKEN_HMAC_KEY"`
	PurgeInterval time.Duration `env:"SESSION_PURGE_INTERVAL" env-default:"1h"`
}

const minHMACKeyLength = 32

// Validate checks the token settings
func (c TokenConfig) Validate(production bool) ValidationErrors {
	errs := CollectErrors(
		RequirePositive("SESSION_TTL", c.TTL),
		RequirePositive("SESSION_RESTRICTED_TTL", c.RestrictedTTL),
	)
	if c.PurgeInterval < 0 {
		errs = append(errs, ValidationError{Field: "SESSION_PURGE_INTERVAL", Message: "must not be negative"})
	}
	if c.HMACKey != "" && len(c.HMACKey) < minHMACKeyLength {
		errs = append(errs, ValidationError{
			Field:   "SESSION_TOKEN_HMAC_KEY",
			Message: fmt.Sprintf("must be at least %d bytes", minHMACKeyLength),
		})
	}
	if production && c.HMACKey == "" {
		errs = append(errs, ValidationError{Field: "SESSION_TOKEN_HMAC_KEY", Message: "is required in production"})
	}
	return errs
}
