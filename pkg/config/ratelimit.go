package config

import (
	"time"

	"github.com/tendant/simple-device-auth/pkg/ratelimit"
)

// RateLimitConfig contains rate limiting settings for the HTTP surface.
type RateLimitConfig struct {
	Enabled bool `env:"RATELIMIT_ENABLED" env-default:"true"`

	// Per-IP limit on every route
	PerIPCapacity   int     `env:"RATELIMIT_PER_IP_CAPACITY" env-default:"100"`
	PerIPRefillRate float64 `env:"RATELIMIT_PER_IP_REFILL_RATE" env-default:"1.67"`

	// Per-account limit on authenticated routes
	PerAccountCapacity   int     `env:"RATELIMIT_PER_ACCOUNT_CAPACITY" env-default:"200"`
	PerAccountRefillRate float64 `env:"RATELIMIT_PER_ACCOUNT_REFILL_RATE" env-default:"3.33"`

	// Login and register, per IP (brute force protection)
	AuthCapacity   int     `env:"RATELIMIT_AUTH_CAPACITY" env-default:"10"`
	AuthRefillRate float64 `env:"RATELIMIT_AUTH_REFILL_RATE" env-default:"0.167"`

	BucketTTL      time.Duration `env:"RATELIMIT_BUCKET_TTL" env-default:"1h"`
	IncludeHeaders bool          `env:"RATELIMIT_INCLUDE_HEADERS" env-default:"true"`

	// Key on X-Forwarded-For / X-Real-IP, only behind a proxy that sets them
	TrustProxy bool `env:"RATELIMIT_TRUST_PROXY" env-default:"false"`
}

// ToMiddlewareConfig builds the ratelimit.Config for the given auth endpoints
// (e.g. "POST /auth/login").
func (c RateLimitConfig) ToMiddlewareConfig(authEndpoints ...string) *ratelimit.Config {
	endpoints := make(map[string]ratelimit.EndpointLimit, len(authEndpoints))
	if !c.Enabled {
		authEndpoints = nil
	}
	for _, e := range authEndpoints {
		endpoints[e] = ratelimit.EndpointLimit{Capacity: c.AuthCapacity, RefillRate: c.AuthRefillRate}
	}
	return &ratelimit.Config{
		PerIPEnabled:         c.Enabled,
		PerIPCapacity:        c.PerIPCapacity,
		PerIPRefillRate:      c.PerIPRefillRate,
		PerAccountEnabled:    c.Enabled,
		PerAccountCapacity:   c.PerAccountCapacity,
		PerAccountRefillRate: c.PerAccountRefillRate,
		EndpointLimits:       endpoints,
		BucketTTL:            c.BucketTTL,
		IncludeHeaders:       c.IncludeHeaders,
		TrustProxy:           c.TrustProxy,
	}
}
