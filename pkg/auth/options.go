package auth

import (
	"time"

	"github.com/tendant/simple-device-auth/pkg/metrics"
	"github.com/tendant/simple-device-auth/pkg/notification"
	"github.com/tendant/simple-device-auth/pkg/password"
)

// UntrustedMode decides what a login from a new device gets
type UntrustedMode string

const (
	// UntrustedModeReject fails the login and sends a confirmation code
	UntrustedModeReject UntrustedMode = "reject"
	// UntrustedModeRestricted issues a restricted session and notifies the owner
	UntrustedModeRestricted UntrustedMode = "restricted"
)

const (
	DefaultSessionTTL    = 24 * time.Hour
	DefaultRestrictedTTL = 15 * time.Minute
)

// Notifier delivers notices to account owners. *notification.NotificationManager implements it.
type Notifier interface {
	Send(noticeType notification.NoticeType, data notification.NotificationData) error
}

type Option func(*Engine)

func WithHasher(hasher password.Hasher) Option {
	return func(e *Engine) {
		if hasher != nil {
			e.hasher = hasher
		}
	}
}

func WithPolicyChecker(checker *password.PolicyChecker) Option {
	return func(e *Engine) {
		if checker != nil {
			e.policy = checker
		}
	}
}

func WithNotifier(notifier Notifier) Option {
	return func(e *Engine) {
		e.notifier = notifier
	}
}

func WithUntrustedMode(mode UntrustedMode) Option {
	return func(e *Engine) {
		if mode == UntrustedModeReject || mode == UntrustedModeRestricted {
			e.untrustedMode = mode
		}
	}
}

// WithSessionTTL sets the lifetime of full and restricted sessions
func WithSessionTTL(full, restricted time.Duration) Option {
	return func(e *Engine) {
		if full > 0 {
			e.sessionTTL = full
		}
		if restricted > 0 {
			e.restrictedTTL = restricted
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}
