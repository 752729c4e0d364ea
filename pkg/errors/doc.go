// Package errors provides structured error handling with error codes for simple-device-auth.
//
// Every failure leaving a service is an *Error carrying a stable ErrorCode, a message
// that is safe to show to users, and optionally the wrapped cause.
//
// # Basic Usage
//
//	import "github.com/tendant/simple-device-auth/pkg/errors"
//
//	err := errors.New(errors.ErrCodeDeviceNotTrusted, "device is not trusted")
//	err := errors.Wrap(dbErr, errors.ErrCodeStorageUnavailable, "failed to query accounts")
//	err := errors.InvalidInput("email", "invalid format")
//
// # Inspecting errors
//
//	if errors.IsCode(err, errors.ErrCodeDuplicateEmail) {
//		// ...
//	}
//
//	status := errors.MapErrorCodeToHTTPStatus(errors.GetCode(err))
//
// # Retries
//
// ErrCodeStorageUnavailable is the only code IsRetryable reports as retryable.
// Authentication failures must never be retried by the caller.
package errors
