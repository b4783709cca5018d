package domain

import "time"

// AuditLog is one recorded auth event (login, refresh, logout, verification).
type AuditLog struct {
	ID        string
	UserID    int64 // 0 when the event has no resolved user (e.g. failed login)
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
