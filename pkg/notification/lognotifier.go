package notification

import (
	"log/slog"
)

// LogNotifier writes rendered notices to the structured log. Used in development
// and with the in-memory persistence mode where no SMTP server is around.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Send(noticeType NoticeType, notification NotificationData, noticeTemplate NoticeTemplate) error {
	body, err := renderText(noticeTemplate.Text, notification.Data)
	if err != nil {
		return err
	}
	l.logger.Info("Notification", "notice", noticeType, "to", notification.To, "subject", noticeTemplate.Subject, "body", body)
	return nil
}
