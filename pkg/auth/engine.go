package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-device-auth/pkg/account"
	"github.com/tendant/simple-device-auth/pkg/device"
	"github.com/tendant/simple-device-auth/pkg/errors"
	"github.com/tendant/simple-device-auth/pkg/metrics"
	"github.com/tendant/simple-device-auth/pkg/notification"
	"github.com/tendant/simple-device-auth/pkg/password"
	"github.com/tendant/simple-device-auth/pkg/sessions"
	"github.com/tendant/simple-device-auth/pkg/utils"
)

// dummyPassword is hashed once and verified against when an email is unknown,
// so both credential failures cost one hash verification.
const dummyPassword = "device-auth-timing-equalizer"

// Engine orchestrates registration, login and device management on top of the
// credential store, the device registry and the token issuer. It holds no
// per-request state and is safe for concurrent use.
type Engine struct {
	accounts      account.Repository
	devices       *device.Service
	sessions      *sessions.Service
	hasher        password.Hasher
	policy        *password.PolicyChecker
	notifier      Notifier
	untrustedMode UntrustedMode
	sessionTTL    time.Duration
	restrictedTTL time.Duration
	metrics       *metrics.Metrics
	now           func() time.Time

	dummyOnce   sync.Once
	dummyDigest string
}

// RegisterResult is returned by a successful registration
type RegisterResult struct {
	AccountID uuid.UUID
	Message   string
}

// LoginResult carries the raw token of a new session
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Scope     sessions.Scope
	Session   sessions.Session
}

// NewEngine creates the engine. Without options passwords are hashed with
// Argon2id, the default password policy applies and new devices are rejected.
func NewEngine(accounts account.Repository, devices *device.Service, sessionService *sessions.Service, opts ...Option) *Engine {
	e := &Engine{
		accounts:      accounts,
		devices:       devices,
		sessions:      sessionService,
		hasher:        &password.DetectingHasher{Primary: password.NewArgon2Hasher()},
		policy:        password.NewPolicyChecker(password.DefaultPolicy()),
		untrustedMode: UntrustedModeReject,
		sessionTTL:    DefaultSessionTTL,
		restrictedTTL: DefaultRestrictedTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register creates an account and trusts the registering device. No session is issued.
func (e *Engine) Register(ctx context.Context, email, pwd, fingerprint string) (result RegisterResult, err error) {
	defer func() { e.metrics.ObserveRegistration(err) }()

	email, fingerprint, err = e.validateInput(email, pwd, fingerprint)
	if err != nil {
		return RegisterResult{}, err
	}
	if err := e.policy.Check(pwd); err != nil {
		return RegisterResult{}, errors.InvalidInput("password", err.Error())
	}

	digest, err := e.hasher.Hash(pwd)
	if err != nil {
		slog.Error("Failed to hash password", "err", err)
		return RegisterResult{}, errors.InternalWrap(err, "failed to hash password")
	}

	acct, err := e.accounts.CreateAccount(ctx, email, digest)
	if err != nil {
		return RegisterResult{}, err
	}

	// The account is the durable part of a registration. Should the binding
	// fail, the first login still trusts its device because no binding exists.
	if _, err := e.devices.RecordBinding(ctx, acct.ID, fingerprint); err != nil {
		slog.Error("Failed to bind registering device", "account_id", acct.ID, "err", err)
	}

	slog.Info("Account registered", "account_id", acct.ID, "email", utils.MaskEmail(email))
	return RegisterResult{AccountID: acct.ID, Message: "registration successful"}, nil
}

// Login checks credentials and the device, then issues a session. New devices are
// rejected with DeviceNotTrusted or given a restricted session, depending on the mode.
func (e *Engine) Login(ctx context.Context, email, pwd, fingerprint string) (LoginResult, error) {
	result, outcome, err := e.login(ctx, email, pwd, fingerprint)
	if err != nil {
		outcome = metrics.Outcome(err)
	}
	e.metrics.ObserveLogin(outcome)
	return result, err
}

func (e *Engine) login(ctx context.Context, email, pwd, fingerprint string) (LoginResult, string, error) {
	email, fingerprint, err := e.validateInput(email, pwd, fingerprint)
	if err != nil {
		return LoginResult{}, "", err
	}

	acct, err := e.checkCredentials(ctx, email, pwd)
	if err != nil {
		return LoginResult{}, "", err
	}

	binding, err := e.devices.RecordBinding(ctx, acct.ID, fingerprint)
	if err != nil {
		return LoginResult{}, "", err
	}

	switch e.devices.EvaluateTrust(binding) {
	case device.TrustStateRevoked:
		slog.Warn("Login from revoked device", "account_id", acct.ID, "fingerprint", utils.ShortFingerprint(fingerprint))
		return LoginResult{}, "", errors.New(errors.ErrCodeDeviceRevoked, "device has been revoked")

	case device.TrustStateNew:
		if e.untrustedMode == UntrustedModeRestricted {
			result, err := e.issue(ctx, acct.ID, fingerprint, sessions.ScopeRestricted, e.restrictedTTL)
			if err != nil {
				return LoginResult{}, "", err
			}
			if _, err := e.devices.RecordSuccessfulLogin(ctx, acct.ID, fingerprint); err != nil {
				slog.Warn("Failed to count login", "account_id", acct.ID, "err", err)
			}
			e.notify(notification.NewDeviceLoginNotice, acct.Email, map[string]string{
				"Device": utils.ShortFingerprint(fingerprint),
				"Time":   e.now().Format(time.RFC1123),
			})
			return result, "restricted", nil
		}
		return LoginResult{}, "", e.challenge(ctx, acct, fingerprint)

	case device.TrustStateTrusted:
		if binding.TrustState == device.TrustStateNew {
			// granted by the policy, persist it
			if _, err := e.devices.MarkTrusted(ctx, acct.ID, fingerprint); err != nil {
				return LoginResult{}, "", err
			}
			e.metrics.ObserveDeviceEvent("promoted")
		}
	}

	result, err := e.issue(ctx, acct.ID, fingerprint, sessions.ScopeFull, e.sessionTTL)
	if err != nil {
		return LoginResult{}, "", err
	}
	if _, err := e.devices.RecordSuccessfulLogin(ctx, acct.ID, fingerprint); err != nil {
		slog.Warn("Failed to count login", "account_id", acct.ID, "err", err)
	}
	slog.Info("Login succeeded", "account_id", acct.ID, "fingerprint", utils.ShortFingerprint(fingerprint))
	return result, metrics.OutcomeSuccess, nil
}

// challenge sends a confirmation code for a new device and returns the login error
func (e *Engine) challenge(ctx context.Context, acct account.Account, fingerprint string) error {
	code, expiresAt, err := e.devices.IssueConfirmation(ctx, acct.ID, fingerprint)
	if err != nil {
		return err
	}
	e.notify(notification.DeviceConfirmationNotice, acct.Email, map[string]string{
		"Device":    utils.ShortFingerprint(fingerprint),
		"Code":      code,
		"ExpiresIn": formatMinutes(expiresAt.Sub(e.now())),
	})
	slog.Info("Login from new device requires confirmation", "account_id", acct.ID, "fingerprint", utils.ShortFingerprint(fingerprint))
	return errors.New(errors.ErrCodeDeviceNotTrusted, "device is not trusted, check your email for a confirmation code").
		WithDetail("confirmation_required", true)
}

// ConfirmDevice trusts a new device after checking the credentials and the
// confirmation code sent at login.
func (e *Engine) ConfirmDevice(ctx context.Context, email, pwd, fingerprint, code string) error {
	email, fingerprint, err := e.validateInput(email, pwd, fingerprint)
	if err != nil {
		return err
	}
	if code == "" {
		return errors.InvalidInput("code", "is required")
	}

	acct, err := e.checkCredentials(ctx, email, pwd)
	if err != nil {
		return err
	}

	binding, err := e.devices.GetBinding(ctx, acct.ID, fingerprint)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			return errors.New(errors.ErrCodeInvalidCredentials, "invalid or expired confirmation code")
		}
		return err
	}
	switch binding.TrustState {
	case device.TrustStateRevoked:
		return errors.New(errors.ErrCodeDeviceRevoked, "device has been revoked")
	case device.TrustStateTrusted:
		return nil
	}

	if _, err := e.devices.ConfirmDevice(ctx, acct.ID, fingerprint, code); err != nil {
		return err
	}
	e.metrics.ObserveDeviceEvent("confirmed")
	return nil
}

// Authenticate resolves a bearer token presented from fingerprint
func (e *Engine) Authenticate(ctx context.Context, token, fingerprint string) (sessions.Session, error) {
	session, err := e.sessions.Validate(ctx, token, fingerprint)
	e.metrics.ObserveValidation(err)
	return session, err
}

// Logout revokes the presented token. The token must be valid for the device.
func (e *Engine) Logout(ctx context.Context, token, fingerprint string) error {
	session, err := e.Authenticate(ctx, token, fingerprint)
	if err != nil {
		return err
	}
	if err := e.sessions.RevokeSession(ctx, session.ID); err != nil {
		return err
	}
	slog.Info("Logged out", "account_id", session.AccountID, "session_id", session.ID)
	return nil
}

func (e *Engine) ListDevices(ctx context.Context, accountID uuid.UUID) ([]device.Binding, error) {
	return e.devices.ListBindings(ctx, accountID)
}

// TrustDevice trusts one of the caller's devices. Revoked devices stay revoked.
func (e *Engine) TrustDevice(ctx context.Context, accountID uuid.UUID, fingerprint string) (device.Binding, error) {
	b, err := e.devices.MarkTrusted(ctx, accountID, fingerprint)
	if err != nil {
		return device.Binding{}, err
	}
	e.metrics.ObserveDeviceEvent("trusted")
	return b, nil
}

// RevokeDevice revokes a device and the sessions issued to it. Sessions of other
// devices are left alone.
func (e *Engine) RevokeDevice(ctx context.Context, accountID uuid.UUID, fingerprint string) (device.Binding, error) {
	b, err := e.devices.Revoke(ctx, accountID, fingerprint)
	if err != nil {
		return device.Binding{}, err
	}
	if _, err := e.sessions.RevokeDevice(ctx, accountID, fingerprint); err != nil {
		return device.Binding{}, err
	}
	e.metrics.ObserveDeviceEvent("revoked")

	if acct, err := e.accounts.GetByID(ctx, accountID); err == nil {
		e.notify(notification.DeviceRevokedNotice, acct.Email, map[string]string{
			"Device": utils.ShortFingerprint(fingerprint),
			"Time":   e.now().Format(time.RFC1123),
		})
	} else {
		slog.Warn("Failed to load account for revoke notice", "account_id", accountID, "err", err)
	}
	return b, nil
}

// validateInput normalizes and checks the fields shared by register, login and confirm
func (e *Engine) validateInput(email, pwd, fingerprint string) (string, string, error) {
	email = account.NormalizeEmail(email)
	if err := account.ValidateEmail(email); err != nil {
		return "", "", err
	}
	if pwd == "" {
		return "", "", errors.InvalidInput("password", "is required")
	}
	fingerprint, err := e.devices.ValidateFingerprint(fingerprint)
	if err != nil {
		return "", "", err
	}
	return email, fingerprint, nil
}

// checkCredentials returns InvalidCredentials for an unknown email and for a
// wrong password alike.
func (e *Engine) checkCredentials(ctx context.Context, email, pwd string) (account.Account, error) {
	acct, err := e.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			e.equalizeTiming(pwd)
			slog.Debug("Login for unknown email", "email", utils.MaskEmail(email))
			return account.Account{}, invalidCredentials()
		}
		return account.Account{}, err
	}

	ok, err := e.hasher.Verify(pwd, acct.PasswordDigest)
	if err != nil {
		slog.Error("Failed to verify password digest", "account_id", acct.ID, "err", err)
		return account.Account{}, errors.InternalWrap(err, "failed to verify password")
	}
	if !ok {
		slog.Debug("Wrong password", "account_id", acct.ID)
		return account.Account{}, invalidCredentials()
	}
	return acct, nil
}

func (e *Engine) equalizeTiming(pwd string) {
	e.dummyOnce.Do(func() {
		digest, err := e.hasher.Hash(dummyPassword)
		if err != nil {
			slog.Error("Failed to prepare dummy digest", "err", err)
			return
		}
		e.dummyDigest = digest
	})
	if e.dummyDigest != "" {
		_, _ = e.hasher.Verify(pwd, e.dummyDigest)
	}
}

func (e *Engine) issue(ctx context.Context, accountID uuid.UUID, fingerprint string, scope sessions.Scope, ttl time.Duration) (LoginResult, error) {
	issued, err := e.sessions.Issue(ctx, accountID, fingerprint, scope, ttl)
	if err != nil {
		return LoginResult{}, err
	}

	// RevokeDevice revokes the binding before the device's sessions, so a
	// revoke that lands between RecordBinding and Issue is seen here.
	current, err := e.devices.GetBinding(ctx, accountID, fingerprint)
	if err == nil && current.TrustState == device.TrustStateRevoked {
		err = errors.New(errors.ErrCodeDeviceRevoked, "device has been revoked")
	}
	if err != nil {
		if rerr := e.sessions.RevokeSession(ctx, issued.Session.ID); rerr != nil {
			slog.Error("Failed to revoke session of revoked device", "session_id", issued.Session.ID, "err", rerr)
		}
		slog.Warn("Device revoked during login", "account_id", accountID, "fingerprint", utils.ShortFingerprint(fingerprint))
		return LoginResult{}, err
	}

	return LoginResult{
		Token:     issued.Token,
		ExpiresAt: issued.Session.ExpiresAt,
		Scope:     scope,
		Session:   issued.Session,
	}, nil
}

// notify is best-effort: delivery failures are logged and do not change the outcome.
func (e *Engine) notify(noticeType notification.NoticeType, to string, data map[string]string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Send(noticeType, notification.NotificationData{To: to, Data: data}); err != nil {
		slog.Error("Failed to send notification", "notice", noticeType, "to", utils.MaskEmail(to), "err", err)
	}
}

func invalidCredentials() error {
	return errors.New(errors.ErrCodeInvalidCredentials, "invalid email or password")
}

func formatMinutes(d time.Duration) string {
	m := int(d.Round(time.Minute) / time.Minute)
	if m == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}
