package domain

import "time"

// TokenTypeRefresh tags rotating refresh credentials in user_tokens.
const TokenTypeRefresh = "REFRESH"

// Session represents one authenticated device/client instance. Sessions are
// flagged inactive on logout or revocation, never deleted (audit trail).
type Session struct {
	ID          int64
	UserID      int64
	SessionUUID string // public, globally unique, opaque
	DeviceName  string
	DeviceType  string
	IPAddress   string
	UserAgent   string
	IsActive    bool
	CreatedAt   time.Time
	ExpiresAt   time.Time  // refresh-token horizon
	RevokedAt   *time.Time // nil when not revoked
}

// RefreshToken is the rotating credential proving continued authentication.
// Only the keyed hash of the raw token is ever stored.
type RefreshToken struct {
	ID        int64
	UserID    int64
	SessionID int64
	TokenHash string // unique
	TokenType string
	IsRevoked bool
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Expired reports whether the token's expiry has passed at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}
