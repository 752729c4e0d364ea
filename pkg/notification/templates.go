package notification

// DefaultTemplates returns the built-in templates for every notice type.
func DefaultTemplates() map[NoticeType]NoticeTemplate {
	return map[NoticeType]NoticeTemplate{
		DeviceConfirmationNotice: {
			Subject: "Confirm your new device",
			Text: `A sign-in was attempted from a device we have not seen before ({{.Device}}).

If this was you, enter the confirmation code {{.Code}} within {{.ExpiresIn}}.
If it was not you, change your password.`,
			Html: `<p>A sign-in was attempted from a device we have not seen before (<code>{{.Device}}</code>).</p>
<p>If this was you, enter the confirmation code <strong>{{.Code}}</strong> within {{.ExpiresIn}}.</p>
<p>If it was not you, change your password.</p>`,
		},
		NewDeviceLoginNotice: {
			Subject: "New sign-in to your account",
			Text: `Your account was signed in from a new device ({{.Device}}) at {{.Time}}.
The device has limited access until you trust it from a device that is already signed in.
If it was not you, change your password and revoke the device.`,
		},
		DeviceRevokedNotice: {
			Subject: "A device was removed from your account",
			Text:    `The device {{.Device}} was revoked at {{.Time}} and can no longer sign in.`,
		},
	}
}
