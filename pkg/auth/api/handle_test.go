package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-device-auth/pkg/account"
	"github.com/tendant/simple-device-auth/pkg/auth"
	"github.com/tendant/simple-device-auth/pkg/device"
	"github.com/tendant/simple-device-auth/pkg/errors"
	"github.com/tendant/simple-device-auth/pkg/notification"
	"github.com/tendant/simple-device-auth/pkg/password"
	"github.com/tendant/simple-device-auth/pkg/sessions"
)

func newTestServer(t *testing.T) (*httptest.Server, *notification.MockNotifier) {
	t.Helper()

	sessionService := sessions.NewService(sessions.NewInMemRepository())
	t.Cleanup(sessionService.Wait)

	mock := &notification.MockNotifier{}
	manager := notification.NewNotificationManager()
	manager.RegisterNotifier(notification.EmailSystem, mock)

	engine := auth.NewEngine(
		account.NewInMemRepository(),
		device.NewService(device.NewInMemRepository()),
		sessionService,
		auth.WithHasher(&password.DetectingHasher{Primary: password.NewArgon2Hasher(password.WithArgon2Params(1024, 1, 1))}),
		auth.WithNotifier(manager),
	)

	r := chi.NewRouter()
	r.Mount("/auth", Handler(NewHandle(engine)))
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, mock
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func getSession(t *testing.T, url, token, deviceID string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set(DeviceIDHeader, deviceID)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp, decodeBody(t, resp)
}

func TestRegisterLoginSessionFlow(t *testing.T) {
	server, _ := newTestServer(t)
	creds := CredentialsRequest{Email: "a@x.com", Password: "pw123", DeviceID: "AAA"}

	resp, body := postJSON(t, server.URL+"/auth/register", creds)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["message"])

	resp, body = postJSON(t, server.URL+"/auth/login", creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)
	assert.Equal(t, "full", body["scope"])

	resp, body = getSession(t, server.URL+"/auth/session", token, "AAA")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "AAA", body["device_id"])

	resp, body = getSession(t, server.URL+"/auth/session", token, "BBB")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, string(errors.ErrCodeDeviceMismatch), body["code"])
}

func TestRegisterErrors(t *testing.T) {
	server, _ := newTestServer(t)

	resp, body := postJSON(t, server.URL+"/auth/register", CredentialsRequest{Email: "not-an-email", Password: "pw123", DeviceID: "AAA"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, body["message"])

	creds := CredentialsRequest{Email: "a@x.com", Password: "pw123", DeviceID: "AAA"}
	resp, _ = postJSON(t, server.URL+"/auth/register", creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = postJSON(t, server.URL+"/auth/register", creds)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(errors.ErrCodeDuplicateEmail), body["code"])

	bad, err := http.Post(server.URL+"/auth/register", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	body = decodeBody(t, bad)
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
	assert.Equal(t, string(errors.ErrCodeInvalidInput), body["code"])
}

func TestLoginFailures(t *testing.T) {
	server, _ := newTestServer(t)
	resp, _ := postJSON(t, server.URL+"/auth/register", CredentialsRequest{Email: "a@x.com", Password: "pw123", DeviceID: "AAA"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, unknown := postJSON(t, server.URL+"/auth/login", CredentialsRequest{Email: "b@x.com", Password: "pw123", DeviceID: "AAA"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, wrong := postJSON(t, server.URL+"/auth/login", CredentialsRequest{Email: "a@x.com", Password: "nope", DeviceID: "AAA"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, unknown, wrong, "unknown email and wrong password must look the same")

	resp, body := postJSON(t, server.URL+"/auth/login", CredentialsRequest{Email: "a@x.com", Password: "pw123", DeviceID: "BBB"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, string(errors.ErrCodeDeviceNotTrusted), body["code"])
	assert.Equal(t, true, body["confirmation_required"])
}

func TestConfirmDeviceThenLogin(t *testing.T) {
	server, mock := newTestServer(t)
	resp, _ := postJSON(t, server.URL+"/auth/register", CredentialsRequest{Email: "a@x.com", Password: "pw123", DeviceID: "AAA"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	creds := CredentialsRequest{Email: "a@x.com", Password: "pw123", DeviceID: "BBB"}
	resp, _ = postJSON(t, server.URL+"/auth/login", creds)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	sent, ok := mock.Last(notification.DeviceConfirmationNotice)
	require.True(t, ok)
	code := sent.Data.Data["Code"]
	require.Len(t, code, 6)

	resp, body := postJSON(t, server.URL+"/auth/device/confirm", ConfirmDeviceRequest{CredentialsRequest: creds, Code: "xxxxxx"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, string(errors.ErrCodeInvalidCredentials), body["code"])

	resp, _ = postJSON(t, server.URL+"/auth/device/confirm", ConfirmDeviceRequest{CredentialsRequest: creds, Code: code})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = postJSON(t, server.URL+"/auth/login", creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["token"])
}

func TestLogout(t *testing.T) {
	server, _ := newTestServer(t)
	creds := CredentialsRequest{Email: "a@x.com", Password: "pw123", DeviceID: "AAA"}
	resp, _ := postJSON(t, server.URL+"/auth/register", creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body := postJSON(t, server.URL+"/auth/login", creds)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := body["token"].(string)

	req, err := http.NewRequest(http.MethodPost, server.URL+"/auth/logout", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(DeviceIDHeader, "AAA")
	logout, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	decodeBody(t, logout)
	assert.Equal(t, http.StatusOK, logout.StatusCode)

	resp, body = getSession(t, server.URL+"/auth/session", token, "AAA")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, string(errors.ErrCodeTokenRevoked), body["code"])
}

func TestSessionRequiresToken(t *testing.T) {
	server, _ := newTestServer(t)
	resp, body := getSession(t, server.URL+"/auth/session", "", "AAA")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, string(errors.ErrCodeUnauthorized), body["code"])
}

type stubAuthenticator struct {
	session sessions.Session
	err     error
}

func (s stubAuthenticator) Authenticate(ctx context.Context, token, fingerprint string) (sessions.Session, error) {
	return s.session, s.err
}

func TestRequireFullScope(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name   string
		scope  sessions.Scope
		status int
	}{
		{"full", sessions.ScopeFull, http.StatusNoContent},
		{"restricted", sessions.ScopeRestricted, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RequireSession(stubAuthenticator{session: sessions.Session{Scope: tt.scope}})(RequireFullScope(ok))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer t")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestRenderErrorStorageUnavailable(t *testing.T) {
	h := RequireSession(stubAuthenticator{err: errors.StorageUnavailable(assert.AnError, "session store down")})(http.NotFoundHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer t")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, retryAfterSeconds, rec.Header().Get("Retry-After"))
	assert.NotContains(t, rec.Body.String(), "session store down")
}
