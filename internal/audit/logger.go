// Package audit records auth events to the database, best-effort.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"commerce-auth/backend/internal/audit/domain"
	auditrepo "commerce-auth/backend/internal/audit/repository"
)

// Auth event actions recorded by the orchestrator.
const (
	ActionLoginSuccess  = "login_success"
	ActionLoginFailure  = "login_failure"
	ActionTokenRefresh  = "token_refresh"
	ActionLogout        = "logout"
	ActionEmailVerified = "email_verified"
	ActionPasswordReset = "password_reset"
)

// Logger writes a single audit event with explicit action/resource.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type Logger interface {
	LogEvent(ctx context.Context, userID int64, action, resource, ip, metadata string)
}

// DBLogger implements Logger using the audit repository.
type DBLogger struct {
	repo auditrepo.Repository
}

// NewLogger returns a Logger that persists to repo.
func NewLogger(repo auditrepo.Repository) *DBLogger {
	return &DBLogger{repo: repo}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *DBLogger) LogEvent(ctx context.Context, userID int64, action, resource, ip, metadata string) {
	if l.repo == nil {
		return
	}
	if ip == "" {
		ip = "unknown"
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
	}
}
