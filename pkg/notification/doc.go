// Package notification delivers notices to account owners over one or more channels.
//
// A Notifier renders a NoticeTemplate (text/template and html/template sources)
// against NotificationData and sends it. EmailNotifier uses SMTP through go-mail,
// LogNotifier writes to slog, MockNotifier records calls for tests.
//
// NotificationManager keeps the template registry and fans a notice out to every
// registered system:
//
//	nm := notification.NewNotificationManager()
//	nm.RegisterNotifier(notification.EmailSystem, emailNotifier)
//	err := nm.Send(notification.DeviceConfirmationNotice, notification.NotificationData{
//		To:   "owner@example.com",
//		Data: map[string]string{"Code": "123456", "Device": "AAA", "ExpiresIn": "15m0s"},
//	})
package notification
