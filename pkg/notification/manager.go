package notification

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// NotificationManager manages notifiers and notice templates.
type NotificationManager struct {
	mu        sync.RWMutex
	notifiers map[NotificationSystem]Notifier
	templates map[NoticeType]NoticeTemplate
}

// NewNotificationManager creates a manager preloaded with DefaultTemplates.
func NewNotificationManager() *NotificationManager {
	return &NotificationManager{
		notifiers: make(map[NotificationSystem]Notifier),
		templates: DefaultTemplates(),
	}
}

// RegisterNotifier registers a notifier for a specific system.
func (nm *NotificationManager) RegisterNotifier(system NotificationSystem, notifier Notifier) {
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.notifiers[system] = notifier
}

// RegisterNotification adds or replaces the template of a notice type.
func (nm *NotificationManager) RegisterNotification(noticeType NoticeType, template NoticeTemplate) error {
	if noticeType == "" {
		return fmt.Errorf("invalid input: notice type cannot be empty")
	}
	if template.Text == "" && template.Html == "" {
		return fmt.Errorf("invalid input: template must have text or html content")
	}
	nm.mu.Lock()
	defer nm.mu.Unlock()
	nm.templates[noticeType] = template
	return nil
}

// Send delivers a notice through every registered system. All systems are tried;
// the returned error joins every failure.
func (nm *NotificationManager) Send(noticeType NoticeType, notification NotificationData) error {
	nm.mu.RLock()
	template, exists := nm.templates[noticeType]
	notifiers := make(map[NotificationSystem]Notifier, len(nm.notifiers))
	for k, v := range nm.notifiers {
		notifiers[k] = v
	}
	nm.mu.RUnlock()

	if !exists {
		return fmt.Errorf("no template registered for notice type: %s", noticeType)
	}
	if len(notifiers) == 0 {
		return fmt.Errorf("no notifier registered")
	}

	var errs []error
	for system, notifier := range notifiers {
		if err := notifier.Send(noticeType, notification, template); err != nil {
			slog.Error("Notifier failed", "system", system, "notice", noticeType, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", system, err))
		}
	}
	return errors.Join(errs...)
}
