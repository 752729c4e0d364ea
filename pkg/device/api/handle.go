package api

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-device-auth/pkg/device"
	"github.com/tendant/simple-device-auth/pkg/errors"
	"github.com/tendant/simple-device-auth/pkg/sessions"
)

// DeviceManager lists, trusts and revokes the devices of an account
type DeviceManager interface {
	ListDevices(ctx context.Context, accountID uuid.UUID) ([]device.Binding, error)
	TrustDevice(ctx context.Context, accountID uuid.UUID, fingerprint string) (device.Binding, error)
	RevokeDevice(ctx context.Context, accountID uuid.UUID, fingerprint string) (device.Binding, error)
}

// DeviceHandler handles HTTP requests for device management
type DeviceHandler struct {
	manager DeviceManager
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(manager DeviceManager) *DeviceHandler {
	return &DeviceHandler{
		manager: manager,
	}
}

// DeviceResponse is a binding as seen by its owner
type DeviceResponse struct {
	device.Binding
	IsCurrentDevice bool `json:"is_current_device"`
}

type ListDevicesResponse struct {
	Devices []DeviceResponse `json:"devices"`
	Total   int              `json:"total"`
}

// RegisterRoutes registers the device routes. They must be mounted behind the
// session middleware.
func (h *DeviceHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.ListDevices)
	r.Post("/{deviceId}/trust", h.TrustDevice)
	r.Post("/{deviceId}/revoke", h.RevokeDevice)
}

// ListDevices handles GET /devices
func (h *DeviceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	current, ok := sessions.FromContext(r.Context())
	if !ok {
		renderError(w, r, errors.Unauthorized("authentication required"))
		return
	}

	bindings, err := h.manager.ListDevices(r.Context(), current.AccountID)
	if err != nil {
		slog.Error("Failed to list devices", "account_id", current.AccountID, "err", err)
		renderError(w, r, err)
		return
	}

	resp := ListDevicesResponse{Devices: make([]DeviceResponse, 0, len(bindings))}
	for _, b := range bindings {
		resp.Devices = append(resp.Devices, DeviceResponse{
			Binding:         b,
			IsCurrentDevice: b.Fingerprint == current.Fingerprint,
		})
	}
	resp.Total = len(resp.Devices)
	render.JSON(w, r, resp)
}

// TrustDevice handles POST /devices/{deviceId}/trust
func (h *DeviceHandler) TrustDevice(w http.ResponseWriter, r *http.Request) {
	current, fingerprint, ok := h.fullSession(w, r)
	if !ok {
		return
	}

	b, err := h.manager.TrustDevice(r.Context(), current.AccountID, fingerprint)
	if err != nil {
		renderError(w, r, err)
		return
	}
	slog.Info("Device trusted", "account_id", current.AccountID, "session_id", current.ID)
	render.JSON(w, r, b)
}

// RevokeDevice handles POST /devices/{deviceId}/revoke
func (h *DeviceHandler) RevokeDevice(w http.ResponseWriter, r *http.Request) {
	current, fingerprint, ok := h.fullSession(w, r)
	if !ok {
		return
	}

	b, err := h.manager.RevokeDevice(r.Context(), current.AccountID, fingerprint)
	if err != nil {
		renderError(w, r, err)
		return
	}
	slog.Info("Device revoked", "account_id", current.AccountID, "session_id", current.ID)
	render.JSON(w, r, b)
}

// fullSession returns the caller's session and the device named in the path.
// Restricted sessions may look but not change trust.
func (h *DeviceHandler) fullSession(w http.ResponseWriter, r *http.Request) (sessions.Session, string, bool) {
	current, ok := sessions.FromContext(r.Context())
	if !ok {
		renderError(w, r, errors.Unauthorized("authentication required"))
		return sessions.Session{}, "", false
	}
	if current.Scope != sessions.ScopeFull {
		renderError(w, r, errors.Forbidden("a fully trusted session is required"))
		return sessions.Session{}, "", false
	}

	fingerprint, err := url.PathUnescape(chi.URLParam(r, "deviceId"))
	if err != nil {
		renderError(w, r, errors.InvalidInput("deviceId", "malformed escape"))
		return sessions.Session{}, "", false
	}
	return current, fingerprint, true
}

// Router returns a router serving the device routes
func Router(h *DeviceHandler) http.Handler {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, errors.MapErrorCodeToHTTPStatus(errors.GetCode(err)))
	render.JSON(w, r, map[string]string{
		"code":    string(errors.GetCode(err)),
		"message": errors.SafeMessage(err),
	})
}
