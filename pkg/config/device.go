package config

import (
	"fmt"
	"time"
)

const (
	TrustPolicyFirstDevice = "first-device"
	TrustPolicyLoginCount  = "login-count"

	UntrustedModeReject     = "reject"
	UntrustedModeRestricted = "restricted"

	maxFingerprintLength = 4096
)

// DeviceConfig controls how unknown devices are treated
type DeviceConfig struct {
	TrustPolicy          string        `env:"DEVICE_TRUST_POLICY" env-default:"first-device"`
	LoginCountThreshold  int           `env:"DEVICE_TRUST_LOGIN_COUNT" env-default:"3"`
	UntrustedMode        string        `env:"DEVICE_UNTRUSTED_MODE" env-default:"reject"`
	MaxFingerprintLength int           `env:"DEVICE_MAX_FINGERPRINT_LENGTH" env-default:"256"`
	ConfirmationCodeTTL  time.Duration `env:"DEVICE_CONFIRMATION_CODE_TTL" env-default:"15m"`
	ConfirmationAttempts int           `env:"DEVICE_CONFIRMATION_MAX_ATTEMPTS" env-default:"5"`
	Notifier             string        `env:"DEVICE_NOTIFIER" env-default:"log"`
}

// Validate checks the device settings
func (c DeviceConfig) Validate() ValidationErrors {
	errs := CollectErrors(
		RequireOneOf("DEVICE_TRUST_POLICY", c.TrustPolicy, []string{TrustPolicyFirstDevice, TrustPolicyLoginCount}),
		RequireOneOf("DEVICE_UNTRUSTED_MODE", c.UntrustedMode, []string{UntrustedModeReject, UntrustedModeRestricted}),
		RequirePositive("DEVICE_MAX_FINGERPRINT_LENGTH", c.MaxFingerprintLength),
		RequirePositive("DEVICE_CONFIRMATION_CODE_TTL", c.ConfirmationCodeTTL),
		RequirePositive("DEVICE_CONFIRMATION_MAX_ATTEMPTS", c.ConfirmationAttempts),
		RequireOneOf("DEVICE_NOTIFIER", c.Notifier, []string{"log", "email"}),
	)
	if c.MaxFingerprintLength > maxFingerprintLength {
		errs = append(errs, ValidationError{
			Field:   "DEVICE_MAX_FINGERPRINT_LENGTH",
			Message: fmt.Sprintf("must not exceed %d", maxFingerprintLength),
		})
	}
	if c.TrustPolicy == TrustPolicyLoginCount {
		if err := RequirePositive("DEVICE_TRUST_LOGIN_COUNT", c.LoginCountThreshold); err != nil {
			errs = append(errs, *err)
		}
		// login-count needs restricted sessions to count logins from untrusted devices
		if c.UntrustedMode != UntrustedModeRestricted {
			errs = append(errs, ValidationError{Field: "DEVICE_UNTRUSTED_MODE", Message: "must be restricted when DEVICE_TRUST_POLICY is login-count"})
		}
	}
	return errs
}
