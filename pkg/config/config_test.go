package config

import (
	"testing"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-device-auth/pkg/password"
)

type testConfig struct {
	Database  DatabaseConfig
	Token     TokenConfig
	Device    DeviceConfig
	Password  PasswordPolicyConfig
	Email     EmailConfig
	RateLimit RateLimitConfig
}

func readTestConfig(t *testing.T) testConfig {
	t.Helper()
	var cfg testConfig
	require.NoError(t, cleanenv.ReadEnv(&cfg))
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := readTestConfig(t)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, uint16(5432), cfg.Database.Port)
	assert.Equal(t, 24*time.Hour, cfg.Token.TTL)
	assert.Equal(t, TrustPolicyFirstDevice, cfg.Device.TrustPolicy)
	assert.Equal(t, UntrustedModeReject, cfg.Device.UntrustedMode)
	assert.Equal(t, 256, cfg.Device.MaxFingerprintLength)
	assert.Equal(t, 5, cfg.Password.MinLength)

	err := Validate(
		cfg.Database.Validate,
		func() ValidationErrors { return cfg.Token.Validate(false) },
		cfg.Device.Validate,
		cfg.Password.Validate,
		cfg.Email.Validate,
	)
	assert.NoError(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DEVICE_TRUST_POLICY", "login-count")
	t.Setenv("DEVICE_UNTRUSTED_MODE", "restricted")
	t.Setenv("DEVICE_TRUST_LOGIN_COUNT", "4")
	t.Setenv("SESSION_TTL", "2h")

	cfg := readTestConfig(t)
	assert.Equal(t, TrustPolicyLoginCount, cfg.Device.TrustPolicy)
	assert.Equal(t, 4, cfg.Device.LoginCountThreshold)
	assert.Equal(t, 2*time.Hour, cfg.Token.TTL)
	assert.Empty(t, cfg.Device.Validate())
}

func TestDeviceConfig_Validate(t *testing.T) {
	cfg := DeviceConfig{
		TrustPolicy:          TrustPolicyLoginCount,
		LoginCountThreshold:  0,
		UntrustedMode:        UntrustedModeReject,
		MaxFingerprintLength: 0,
		ConfirmationCodeTTL:  time.Minute,
		ConfirmationAttempts: 5,
		Notifier:             "sms",
	}
	errs := cfg.Validate()
	fields := map[string]bool{}
	for _, e := range errs {
		fields[e.Field] = true
	}
	assert.True(t, fields["DEVICE_MAX_FINGERPRINT_LENGTH"])
	assert.True(t, fields["DEVICE_TRUST_LOGIN_COUNT"])
	assert.True(t, fields["DEVICE_UNTRUSTED_MODE"])
	assert.True(t, fields["DEVICE_NOTIFIER"])
}

func TestTokenConfig_Validate(t *testing.T) {
	cfg := TokenConfig{TTL: time.Hour, RestrictedTTL: time.Minute}
	assert.Empty(t, cfg.Validate(false))
	assert.Len(t, cfg.Validate(true), 1, "production requires an HMAC key")

	cfg.HMACKey = "short"
	assert.NotEmpty(t, cfg.Validate(false))

	cfg.HMACKey = "0123456789abcdef0123456789abcdef"
	assert.Empty(t, cfg.Validate(true))

	cfg.PurgeInterval = -time.Minute
	assert.Len(t, cfg.Validate(true), 1)
}

func TestEmailConfig_Validate(t *testing.T) {
	cfg := EmailConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com"}
	assert.Empty(t, cfg.Validate())

	cfg.From = "not-an-address"
	cfg.Port = 0
	err := Validate(cfg.Validate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMAIL_FROM")
	assert.Contains(t, err.Error(), "EMAIL_PORT")
}

func TestPasswordPolicyConfig_ToPasswordPolicy(t *testing.T) {
	cfg := &PasswordPolicyConfig{
		Algorithm:        password.AlgorithmBcrypt,
		MinLength:        10,
		MaxLength:        64,
		RequireDigit:     true,
		MaxRepeatedChars: 2,
	}
	policy := cfg.ToPasswordPolicy()
	assert.Equal(t, 10, policy.MinLength)
	assert.Equal(t, 64, policy.MaxLength)
	assert.True(t, policy.RequireDigit)
	assert.Equal(t, 2, policy.MaxRepeatedChars)

	var nilCfg *PasswordPolicyConfig
	assert.Equal(t, password.DefaultPolicy(), nilCfg.ToPasswordPolicy())

	bad := PasswordPolicyConfig{Algorithm: "md5", MinLength: 8, MaxLength: 4}
	assert.Len(t, bad.Validate(), 2)
}

func TestRateLimitConfig_ToMiddlewareConfig(t *testing.T) {
	cfg := RateLimitConfig{Enabled: true, AuthCapacity: 10, AuthRefillRate: 0.5, BucketTTL: time.Minute}
	mc := cfg.ToMiddlewareConfig("POST /auth/login", "POST /auth/register")
	assert.True(t, mc.PerIPEnabled)
	assert.Len(t, mc.EndpointLimits, 2)
	assert.Equal(t, 10, mc.EndpointLimits["POST /auth/login"].Capacity)
	assert.False(t, mc.TrustProxy)

	cfg.TrustProxy = true
	assert.True(t, cfg.ToMiddlewareConfig().TrustProxy)

	cfg.Enabled = false
	mc = cfg.ToMiddlewareConfig("POST /auth/login")
	assert.False(t, mc.PerIPEnabled)
	assert.Empty(t, mc.EndpointLimits)
}

func TestGetEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	assert.Equal(t, Production, GetEnvironment())
	assert.True(t, IsProduction())

	t.Setenv("APP_ENV", "")
	assert.Equal(t, Development, GetEnvironment())
}
