// Package auth is the authentication engine: it registers accounts, logs them in
// from a device and manages the devices of an account.
//
// # Overview
//
// The auth package provides:
//   - Registration that trusts the registering device
//   - Login that checks credentials, then the device, then issues a session
//   - Confirmation of new devices with a one-time code
//   - Logout, token authentication and device trust/revoke
//
// # Basic Usage
//
//	engine := auth.NewEngine(
//		accountRepo,
//		device.NewService(deviceRepo),
//		sessions.NewService(sessionRepo, sessions.WithHMACKey(key)),
//		auth.WithNotifier(notificationManager),
//		auth.WithUntrustedMode(auth.UntrustedModeReject),
//	)
//
//	if _, err := engine.Register(ctx, "a@x.com", "pw123", "AAA"); err != nil {
//		// errors.ErrCodeInvalidInput or errors.ErrCodeDuplicateEmail
//	}
//
//	result, err := engine.Login(ctx, "a@x.com", "pw123", "AAA")
//	session, err := engine.Authenticate(ctx, result.Token, "AAA")
//
// # Errors
//
// Every failure is an *errors.Error. Unknown email and wrong password both yield
// errors.ErrCodeInvalidCredentials. A login from a device that is not trusted
// yields errors.ErrCodeDeviceNotTrusted, or a restricted session when the engine
// runs in UntrustedModeRestricted. Only errors.ErrCodeStorageUnavailable is worth
// retrying.
package auth
