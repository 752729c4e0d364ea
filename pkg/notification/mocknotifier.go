package notification

import "sync"

type SentNotification struct {
	Type     NoticeType
	Data     NotificationData
	Template NoticeTemplate
}

type MockNotifier struct {
	mu                sync.Mutex
	SentNotifications []SentNotification
	Err               error
}

func (m *MockNotifier) Send(noticeType NoticeType, notification NotificationData, template NoticeTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.SentNotifications = append(m.SentNotifications, SentNotification{Type: noticeType, Data: notification, Template: template})
	return nil
}

// Sent returns a copy of everything sent so far.
func (m *MockNotifier) Sent() []SentNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentNotification, len(m.SentNotifications))
	copy(out, m.SentNotifications)
	return out
}

// Last returns the most recent notification of the given type.
func (m *MockNotifier) Last(noticeType NoticeType) (SentNotification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.SentNotifications) - 1; i >= 0; i-- {
		if m.SentNotifications[i].Type == noticeType {
			return m.SentNotifications[i], true
		}
	}
	return SentNotification{}, false
}
