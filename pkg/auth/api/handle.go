package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-device-auth/pkg/auth"
	"github.com/tendant/simple-device-auth/pkg/errors"
	"github.com/tendant/simple-device-auth/pkg/sessions"
)

// Service is the part of the auth engine the HTTP layer needs
type Service interface {
	Register(ctx context.Context, email, password, fingerprint string) (auth.RegisterResult, error)
	Login(ctx context.Context, email, password, fingerprint string) (auth.LoginResult, error)
	ConfirmDevice(ctx context.Context, email, password, fingerprint, code string) error
	Authenticate(ctx context.Context, token, fingerprint string) (sessions.Session, error)
	Logout(ctx context.Context, token, fingerprint string) error
}

// Handle serves the /auth routes
type Handle struct {
	service Service
}

func NewHandle(service Service) *Handle {
	return &Handle{service: service}
}

// CredentialsRequest is the body of register and login
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	DeviceID string `json:"deviceId"`
}

// ConfirmDeviceRequest is the body of /auth/device/confirm
type ConfirmDeviceRequest struct {
	CredentialsRequest
	Code string `json:"code"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type LoginResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	Scope     sessions.Scope `json:"scope"`
}

// SessionResponse describes the caller's own session
type SessionResponse struct {
	SessionID string         `json:"session_id"`
	AccountID string         `json:"account_id"`
	DeviceID  string         `json:"device_id"`
	Scope     sessions.Scope `json:"scope"`
	IssuedAt  time.Time      `json:"issued_at"`
	ExpiresAt time.Time      `json:"expires_at"`
}

// Register handles POST /auth/register
func (h *Handle) Register(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		slog.Debug("Invalid register body", "err", err)
		RenderError(w, r, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}

	result, err := h.service.Register(r.Context(), req.Email, req.Password, req.DeviceID)
	if err != nil {
		RenderError(w, r, err)
		return
	}

	render.JSON(w, r, MessageResponse{Message: result.Message})
}

// Login handles POST /auth/login
func (h *Handle) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		RenderError(w, r, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password, req.DeviceID)
	if err != nil {
		RenderError(w, r, err)
		return
	}

	render.JSON(w, r, LoginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		Scope:     result.Scope,
	})
}

// ConfirmDevice handles POST /auth/device/confirm
func (h *Handle) ConfirmDevice(w http.ResponseWriter, r *http.Request) {
	var req ConfirmDeviceRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		RenderError(w, r, errors.New(errors.ErrCodeInvalidInput, "invalid request body"))
		return
	}

	if err := h.service.ConfirmDevice(r.Context(), req.Email, req.Password, req.DeviceID, req.Code); err != nil {
		RenderError(w, r, err)
		return
	}

	render.JSON(w, r, MessageResponse{Message: "device confirmed"})
}

// Logout handles POST /auth/logout
func (h *Handle) Logout(w http.ResponseWriter, r *http.Request) {
	token, fingerprint := Credentials(r)
	if err := h.service.Logout(r.Context(), token, fingerprint); err != nil {
		RenderError(w, r, err)
		return
	}
	render.JSON(w, r, MessageResponse{Message: "logged out"})
}

// Session handles GET /auth/session
func (h *Handle) Session(w http.ResponseWriter, r *http.Request) {
	session, ok := sessions.FromContext(r.Context())
	if !ok {
		RenderError(w, r, errors.Unauthorized("authentication required"))
		return
	}
	render.JSON(w, r, SessionResponse{
		SessionID: session.ID,
		AccountID: session.AccountID.String(),
		DeviceID:  session.Fingerprint,
		Scope:     session.Scope,
		IssuedAt:  session.IssuedAt,
		ExpiresAt: session.ExpiresAt,
	})
}

// Routes registers the /auth routes on r
func (h *Handle) Routes(r chi.Router) {
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/device/confirm", h.ConfirmDevice)
	r.Post("/logout", h.Logout)
	r.Group(func(r chi.Router) {
		r.Use(RequireSession(h.service))
		r.Get("/session", h.Session)
	})
}

// Handler returns a router serving the /auth routes
func Handler(h *Handle) http.Handler {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}
