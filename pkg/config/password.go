package config

import (
	"log/slog"

	"github.com/jinzhu/copier"
	"github.com/tendant/simple-device-auth/pkg/password"
)

// PasswordPolicyConfig holds password policy configuration from environment variables.
// Field names match password.Policy so the two can be copied.
type PasswordPolicyConfig struct {
	Algorithm          string `env:"PASSWORD_HASH_ALGORITHM" env-default:"argon2id"`
	MinLength          int    `env:"PASSWORD_MIN_LENGTH" env-default:"5"`
	MaxLength          int    `env:"PASSWORD_MAX_LENGTH" env-default:"128"`
	RequireUppercase   bool   `env:"PASSWORD_REQUIRE_UPPERCASE" env-default:"false"`
	RequireLowercase   bool   `env:"PASSWORD_REQUIRE_LOWERCASE" env-default:"false"`
	RequireDigit       bool   `env:"PASSWORD_REQUIRE_DIGIT" env-default:"false"`
	RequireSpecialChar bool   `env:"PASSWORD_REQUIRE_SPECIAL_CHAR" env-default:"false"`
	DisallowCommonPwds bool   `env:"PASSWORD_DISALLOW_COMMON" env-default:"true"`
	MaxRepeatedChars   int    `env:"PASSWORD_MAX_REPEATED_CHARS" env-default:"0"`
}

// ToPasswordPolicy converts the configuration to a password.Policy
func (c *PasswordPolicyConfig) ToPasswordPolicy() *password.Policy {
	if c == nil {
		return password.DefaultPolicy()
	}

	policy := &password.Policy{}
	if err := copier.Copy(policy, c); err != nil {
		slog.Error("Failed to copy password policy config, using default", "err", err)
		return password.DefaultPolicy()
	}

	slog.Info("Password policy configuration",
		"min_length", policy.MinLength,
		"max_length", policy.MaxLength,
		"require_uppercase", policy.RequireUppercase,
		"require_digit", policy.RequireDigit,
	)
	return policy
}

// Validate checks the password policy settings
func (c PasswordPolicyConfig) Validate() ValidationErrors {
	errs := CollectErrors(
		RequireOneOf("PASSWORD_HASH_ALGORITHM", c.Algorithm, []string{password.AlgorithmArgon2id, password.AlgorithmBcrypt}),
		RequirePositive("PASSWORD_MIN_LENGTH", c.MinLength),
	)
	if c.MaxRepeatedChars < 0 {
		errs = append(errs, ValidationError{Field: "PASSWORD_MAX_REPEATED_CHARS", Message: "must not be negative"})
	}
	if c.MaxLength > 0 && c.MaxLength < c.MinLength {
		errs = append(errs, ValidationError{Field: "PASSWORD_MAX_LENGTH", Message: "must not be less than PASSWORD_MIN_LENGTH"})
	}
	return errs
}
