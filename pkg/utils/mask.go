package utils

import "strings"

// MaskEmail keeps the first character of the local part and the domain: a***@x.com
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}

// ShortFingerprint truncates a device fingerprint for logs.
func ShortFingerprint(fingerprint string) string {
	const keep = 8
	if len(fingerprint) <= keep {
		return fingerprint
	}
	return fingerprint[:keep] + "…"
}
