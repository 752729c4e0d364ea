package sessions

import (
	"time"

	"github.com/google/uuid"
)

// Scope limits what a session may be used for
type Scope string

const (
	ScopeFull       Scope = "full"
	ScopeRestricted Scope = "restricted"
)

// Session represents an issued token. The token itself is never stored, only its hash.
type Session struct {
	ID          string     `json:"id"`
	AccountID   uuid.UUID  `json:"account_id"`
	Fingerprint string     `json:"device_id"`
	Scope       Scope      `json:"scope"`
	TokenHash   string     `json:"-"`
	IssuedAt    time.Time  `json:"issued_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	LastSeenAt  time.Time  `json:"last_seen_at"`
}

func (s Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

func (s Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// IsActive reports a session that is neither revoked nor expired
func (s Session) IsActive(now time.Time) bool {
	return !s.IsRevoked() && !s.IsExpired(now)
}

// IssuedToken is the result of Issue. Token is only ever available here.
type IssuedToken struct {
	Token   string  `json:"token"`
	Session Session `json:"session"`
}

// SessionSummary is a simplified session view for listing
type SessionSummary struct {
	ID               string    `json:"id"`
	DeviceID         string    `json:"device_id"`
	Scope            Scope     `json:"scope"`
	IssuedAt         time.Time `json:"issued_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	LastSeenAt       time.Time `json:"last_seen_at"`
	IsCurrentSession bool      `json:"is_current_session"`
}

// SessionListResponse represents the response for listing sessions
type SessionListResponse struct {
	Sessions []SessionSummary `json:"sessions"`
	Total    int              `json:"total"`
}
