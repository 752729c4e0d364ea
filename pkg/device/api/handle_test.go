package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-device-auth/pkg/device"
	"github.com/tendant/simple-device-auth/pkg/errors"
	"github.com/tendant/simple-device-auth/pkg/sessions"
)

// serviceManager adapts a device.Service to DeviceManager
type serviceManager struct {
	*device.Service
}

func (m serviceManager) ListDevices(ctx context.Context, accountID uuid.UUID) ([]device.Binding, error) {
	return m.ListBindings(ctx, accountID)
}

func (m serviceManager) TrustDevice(ctx context.Context, accountID uuid.UUID, fingerprint string) (device.Binding, error) {
	return m.MarkTrusted(ctx, accountID, fingerprint)
}

func (m serviceManager) RevokeDevice(ctx context.Context, accountID uuid.UUID, fingerprint string) (device.Binding, error) {
	return m.Revoke(ctx, accountID, fingerprint)
}

func newTestRouter(t *testing.T, session sessions.Session) (http.Handler, *device.Service) {
	t.Helper()
	service := device.NewService(device.NewInMemRepository())

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(sessions.NewContext(req.Context(), session)))
		})
	})
	r.Mount("/devices", Router(NewDeviceHandler(serviceManager{service})))
	return r, service
}

func do(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	out := map[string]any{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec, out
}

func TestListDevices(t *testing.T) {
	ctx := context.Background()
	accountID := uuid.New()
	h, service := newTestRouter(t, sessions.Session{AccountID: accountID, Fingerprint: "AAA", Scope: sessions.ScopeFull})

	_, err := service.RecordBinding(ctx, accountID, "AAA")
	require.NoError(t, err)
	_, err = service.RecordBinding(ctx, accountID, "BBB")
	require.NoError(t, err)

	rec, body := do(t, h, http.MethodGet, "/devices/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["total"])

	current := map[string]bool{}
	states := map[string]string{}
	for _, d := range body["devices"].([]any) {
		m := d.(map[string]any)
		current[m["device_id"].(string)] = m["is_current_device"].(bool)
		states[m["device_id"].(string)] = m["trust_state"].(string)
	}
	assert.Equal(t, map[string]bool{"AAA": true, "BBB": false}, current)
	assert.Equal(t, map[string]string{"AAA": "trusted", "BBB": "new"}, states)
}

func TestTrustAndRevokeDevice(t *testing.T) {
	ctx := context.Background()
	accountID := uuid.New()
	h, service := newTestRouter(t, sessions.Session{AccountID: accountID, Fingerprint: "AAA", Scope: sessions.ScopeFull})

	_, err := service.RecordBinding(ctx, accountID, "AAA")
	require.NoError(t, err)
	_, err = service.RecordBinding(ctx, accountID, "phone/1")
	require.NoError(t, err)

	escaped := url.PathEscape("phone/1")
	rec, body := do(t, h, http.MethodPost, "/devices/"+escaped+"/trust")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "trusted", body["trust_state"])

	rec, body = do(t, h, http.MethodPost, "/devices/"+escaped+"/revoke")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "revoked", body["trust_state"])

	rec, body = do(t, h, http.MethodPost, "/devices/"+escaped+"/trust")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(errors.ErrCodeDeviceRevoked), body["code"])

	rec, _ = do(t, h, http.MethodPost, "/devices/unknown/revoke")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRestrictedSessionCannotChangeTrust(t *testing.T) {
	ctx := context.Background()
	accountID := uuid.New()
	h, service := newTestRouter(t, sessions.Session{AccountID: accountID, Fingerprint: "BBB", Scope: sessions.ScopeRestricted})

	_, err := service.RecordBinding(ctx, accountID, "AAA")
	require.NoError(t, err)
	_, err = service.RecordBinding(ctx, accountID, "BBB")
	require.NoError(t, err)

	rec, body := do(t, h, http.MethodPost, "/devices/BBB/trust")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, string(errors.ErrCodeForbidden), body["code"])

	b, err := service.GetBinding(ctx, accountID, "BBB")
	require.NoError(t, err)
	assert.Equal(t, device.TrustStateNew, b.TrustState)

	rec, _ = do(t, h, http.MethodGet, "/devices/")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDevicesRequireSession(t *testing.T) {
	h := Router(NewDeviceHandler(serviceManager{device.NewService(device.NewInMemRepository())}))
	rec, body := do(t, h, http.MethodGet, "/")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(errors.ErrCodeUnauthorized), body["code"])
}
