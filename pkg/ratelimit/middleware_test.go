package ratelimit

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/tendant/simple-device-auth/pkg/sessions"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestMiddleware_EndpointLimit(t *testing.T) {
	var limited []string
	m := NewMiddleware(&Config{
		EndpointLimits: map[string]EndpointLimit{
			"POST /auth/login": {Capacity: 2, RefillRate: 0.001},
		},
		IncludeHeaders: true,
	}, WithLimitedHook(func(limitType string) { limited = append(limited, limitType) }))
	defer m.Close()
	h := m.Handler(okHandler)

	call := func(method, path, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, call(http.MethodPost, "/auth/login", "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, call(http.MethodPost, "/auth/login", "10.0.0.1").Code)

	rec := call(http.MethodPost, "/auth/login", "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")
	assert.Equal(t, []string{"endpoint"}, limited)

	// Other endpoints and other clients are unaffected
	assert.Equal(t, http.StatusOK, call(http.MethodPost, "/auth/register", "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, call(http.MethodPost, "/auth/login", "10.0.0.2").Code)
}

func TestMiddleware_PerIP(t *testing.T) {
	m := NewMiddleware(&Config{PerIPEnabled: true, PerIPCapacity: 1, PerIPRefillRate: 0.001, IncludeHeaders: true})
	defer m.Close()
	h := m.Handler(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit-IP"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestMiddleware_AccountHandler(t *testing.T) {
	m := NewMiddleware(&Config{PerAccountEnabled: true, PerAccountCapacity: 1, PerAccountRefillRate: 0.001, BucketTTL: time.Hour})
	defer m.Close()
	h := m.AccountHandler(okHandler)

	session := sessions.Session{ID: "s1", AccountID: uuid.New()}
	req := httptest.NewRequest(http.MethodGet, "/devices", nil)
	req = req.WithContext(sessions.NewContext(req.Context(), session))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Requests without a session pass through
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/devices", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", ClientIP(req))

	req.Header.Set("X-Real-IP", " 198.51.100.7 ")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "192.0.2.1", ClientIP(req))

	ipv6 := httptest.NewRequest(http.MethodGet, "/", nil)
	ipv6.RemoteAddr = "[2001:db8::1]:443"
	assert.Equal(t, "2001:db8::1", ClientIP(ipv6))
}

// newProxiedRouter mirrors the server stack: PeerAddr, then RealIP, then the limiter
func newProxiedRouter(m *Middleware) http.Handler {
	r := chi.NewRouter()
	r.Use(PeerAddr)
	r.Use(middleware.RealIP)
	r.Use(m.Handler)
	r.Post("/auth/login", okHandler)
	return r
}

func TestMiddleware_IgnoresForwardedHeaders(t *testing.T) {
	m := NewMiddleware(&Config{
		EndpointLimits: map[string]EndpointLimit{
			"POST /auth/login": {Capacity: 1, RefillRate: 0.001},
		},
	})
	defer m.Close()
	h := newProxiedRouter(m)

	allowed := 0
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "192.0.2.1:5555"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("198.51.100.%d", i))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code == http.StatusOK {
			allowed++
		}
	}
	assert.Equal(t, 1, allowed)
}

func TestMiddleware_TrustProxy(t *testing.T) {
	m := NewMiddleware(&Config{
		EndpointLimits: map[string]EndpointLimit{
			"POST /auth/login": {Capacity: 1, RefillRate: 0.001},
		},
		TrustProxy: true,
	})
	defer m.Close()
	h := newProxiedRouter(m)

	call := func(forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("203.0.113.1"))
	assert.Equal(t, http.StatusOK, call("203.0.113.2"))
	assert.Equal(t, http.StatusTooManyRequests, call("203.0.113.1"))
}
