package notification

// NoticeType identifies a kind of message sent to an account owner.
type NoticeType string

const (
	DeviceConfirmationNotice NoticeType = "device_confirmation"
	NewDeviceLoginNotice     NoticeType = "new_device_login"
	DeviceRevokedNotice      NoticeType = "device_revoked"
)

// NotificationSystem represents a delivery channel (e.g., email, log).
type NotificationSystem string

const (
	EmailSystem NotificationSystem = "email"
	LogSystem   NotificationSystem = "log"
)

type NotificationData struct {
	To   string            // Recipient identifier (email address)
	Data map[string]string // Template values
}

// NoticeTemplate holds the text/template and html/template sources of a notice.
type NoticeTemplate struct {
	Subject string
	Text    string
	Html    string
}

type Notifier interface {
	Send(noticeType NoticeType, notification NotificationData, noticeTemplate NoticeTemplate) error
}
