package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/tendant/simple-device-auth/pkg/errors"
	"github.com/tendant/simple-device-auth/pkg/sessions"
)

// Config holds rate limiting configuration
type Config struct {
	// Per-IP rate limiting
	PerIPEnabled    bool
	PerIPCapacity   int
	PerIPRefillRate float64

	// Per-account rate limiting, applied by AccountHandler after authentication
	PerAccountEnabled    bool
	PerAccountCapacity   int
	PerAccountRefillRate float64

	// Endpoint-specific limits keyed by "METHOD /path", counted per IP
	EndpointLimits map[string]EndpointLimit

	// How long to keep inactive buckets in memory
	BucketTTL time.Duration

	IncludeHeaders bool

	// TrustProxy keys per-IP buckets on the address rewritten from
	// X-Forwarded-For and X-Real-IP. Leave it off unless every request
	// arrives through a proxy that sets those headers.
	TrustProxy bool
}

// EndpointLimit defines rate limits for a specific endpoint
type EndpointLimit struct {
	Capacity   int
	RefillRate float64
}

// DefaultConfig returns the configuration used when none is given
func DefaultConfig() *Config {
	return &Config{
		PerIPEnabled:    true,
		PerIPCapacity:   100,
		PerIPRefillRate: 100.0 / 60.0,

		PerAccountEnabled:    true,
		PerAccountCapacity:   200,
		PerAccountRefillRate: 200.0 / 60.0,

		BucketTTL:      1 * time.Hour,
		IncludeHeaders: true,
		EndpointLimits: make(map[string]EndpointLimit),
	}
}

// Middleware holds the rate limiting middleware state
type Middleware struct {
	config           *Config
	ipLimiter        *RateLimiter
	accountLimiter   *RateLimiter
	endpointLimiters map[string]*RateLimiter
	onLimited        func(limitType string)
}

type Option func(*Middleware)

// WithLimitedHook registers a callback invoked whenever a request is rejected.
func WithLimitedHook(fn func(limitType string)) Option {
	return func(m *Middleware) {
		m.onLimited = fn
	}
}

// NewMiddleware creates a new rate limiting middleware
func NewMiddleware(config *Config, opts ...Option) *Middleware {
	if config == nil {
		config = DefaultConfig()
	}

	m := &Middleware{
		config:           config,
		endpointLimiters: make(map[string]*RateLimiter),
	}
	for _, opt := range opts {
		opt(m)
	}

	if config.PerIPEnabled {
		m.ipLimiter = NewRateLimiter(config.PerIPCapacity, config.PerIPRefillRate, config.BucketTTL)
	}
	if config.PerAccountEnabled {
		m.accountLimiter = NewRateLimiter(config.PerAccountCapacity, config.PerAccountRefillRate, config.BucketTTL)
	}
	for endpoint, limit := range config.EndpointLimits {
		m.endpointLimiters[endpoint] = NewRateLimiter(limit.Capacity, limit.RefillRate, config.BucketTTL)
	}

	return m
}

// Handler limits requests per client IP and per endpoint
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := m.clientIP(r)

		if m.ipLimiter != nil && ip != "" && !m.ipLimiter.Allow(ip) {
			m.rateLimitExceeded(w, r, "ip", m.ipLimiter.RetryAfter(ip))
			return
		}

		endpointKey := r.Method + " " + r.URL.Path
		if limiter, exists := m.endpointLimiters[endpointKey]; exists {
			key := ip + ":" + endpointKey
			if !limiter.Allow(key) {
				m.rateLimitExceeded(w, r, "endpoint", limiter.RetryAfter(key))
				return
			}
		}

		if m.config.IncludeHeaders && m.ipLimiter != nil {
			w.Header().Set("X-RateLimit-Limit-IP", fmt.Sprintf("%d", m.config.PerIPCapacity))
		}

		next.ServeHTTP(w, r)
	})
}

// AccountHandler limits authenticated requests per account. It must run after the
// middleware that puts the session in the request context.
func (m *Middleware) AccountHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := sessions.FromContext(r.Context())
		if m.accountLimiter != nil && ok {
			key := session.AccountID.String()
			if !m.accountLimiter.Allow(key) {
				m.rateLimitExceeded(w, r, "account", m.accountLimiter.RetryAfter(key))
				return
			}
			if m.config.IncludeHeaders {
				w.Header().Set("X-RateLimit-Limit-Account", fmt.Sprintf("%d", m.config.PerAccountCapacity))
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) rateLimitExceeded(w http.ResponseWriter, r *http.Request, limitType string, retryAfter time.Duration) {
	slog.Warn("Rate limit exceeded",
		"type", limitType,
		"ip", m.clientIP(r),
		"path", r.URL.Path,
		"method", r.Method,
	)
	if m.onLimited != nil {
		m.onLimited(limitType)
	}

	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	err := errors.RateLimitExceeded(fmt.Sprintf("%d", seconds))

	w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
	render.Status(r, http.StatusTooManyRequests)
	render.JSON(w, r, map[string]string{
		"code":    string(err.Code),
		"message": err.Message,
	})
}

type peerAddrKey struct{}

// PeerAddr records the connection's remote address before any middleware
// rewrites RemoteAddr from forwarding headers. It must run first.
func PeerAddr(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), peerAddrKey{}, r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIP returns the IP of the connection peer. Forwarding headers are
// ignored.
func ClientIP(r *http.Request) string {
	addr, ok := r.Context().Value(peerAddrKey{}).(string)
	if !ok {
		addr = r.RemoteAddr
	}
	return hostOnly(addr)
}

func (m *Middleware) clientIP(r *http.Request) string {
	if m.config.TrustProxy {
		return hostOnly(r.RemoteAddr)
	}
	return ClientIP(r)
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return strings.TrimSpace(addr)
	}
	return host
}

// Close stops the cleanup goroutines of all limiters
func (m *Middleware) Close() {
	if m.ipLimiter != nil {
		m.ipLimiter.Close()
	}
	if m.accountLimiter != nil {
		m.accountLimiter.Close()
	}
	for _, limiter := range m.endpointLimiters {
		limiter.Close()
	}
}
