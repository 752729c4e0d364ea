package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/tendant/simple-device-auth/pkg/errors"
	"github.com/tendant/simple-device-auth/pkg/sessions"
)

// DeviceIDHeader carries the fingerprint on authenticated requests
const DeviceIDHeader = "X-Device-Id"

// retryAfterSeconds is sent with 503 responses
const retryAfterSeconds = "5"

// Authenticator resolves a token presented from a device
type Authenticator interface {
	Authenticate(ctx context.Context, token, fingerprint string) (sessions.Session, error)
}

// Credentials extracts the bearer token and the device fingerprint
func Credentials(r *http.Request) (token, fingerprint string) {
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "Bearer ") {
		token = strings.TrimSpace(authz[7:])
	}
	return token, strings.TrimSpace(r.Header.Get(DeviceIDHeader))
}

// RequireSession authenticates the request and stores the session in its context
func RequireSession(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, fingerprint := Credentials(r)
			if token == "" {
				RenderError(w, r, errors.Unauthorized("missing bearer token"))
				return
			}

			session, err := authenticator.Authenticate(r.Context(), token, fingerprint)
			if err != nil {
				RenderError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(sessions.NewContext(r.Context(), session)))
		})
	}
}

// RequireFullScope rejects restricted sessions with 403
func RequireFullScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := sessions.FromContext(r.Context())
		if !ok {
			RenderError(w, r, errors.Unauthorized("authentication required"))
			return
		}
		if session.Scope != sessions.ScopeFull {
			RenderError(w, r, errors.Forbidden("a fully trusted session is required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Code                 string `json:"code"`
	Message              string `json:"message"`
	ConfirmationRequired bool   `json:"confirmation_required,omitempty"`
}

// RenderError writes err with the status of its code and a message safe to show
func RenderError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.GetCode(err)
	status := errors.MapErrorCodeToHTTPStatus(code)

	resp := ErrorResponse{
		Code:    string(code),
		Message: errors.SafeMessage(err),
	}
	var appErr *errors.Error
	if stderrors.As(err, &appErr) {
		if v, ok := appErr.Details["confirmation_required"].(bool); ok {
			resp.ConfirmationRequired = v
		}
	}
	if errors.IsRetryable(err) {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}

	render.Status(r, status)
	render.JSON(w, r, resp)
}
