package repository

import (
	"context"

	"commerce-auth/backend/internal/session/domain"
)

// SessionRepository defines persistence for sessions.
type SessionRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Session, error)
	GetByUUID(ctx context.Context, sessionUUID string) (*domain.Session, error)
	// CreateWithRefreshToken persists the session and its initial refresh
	// token in a single transaction; either both rows become visible or
	// neither does. Sets the generated IDs on both arguments.
	CreateWithRefreshToken(ctx context.Context, s *domain.Session, t *domain.RefreshToken) error
	// RevokeSession flags the session inactive and stamps revoked_at.
	RevokeSession(ctx context.Context, id int64) error
}

// RefreshTokenRepository defines persistence for refresh tokens.
type RefreshTokenRepository interface {
	GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	Create(ctx context.Context, t *domain.RefreshToken) error
	// RevokeIfActive atomically flips is_revoked from false to true and
	// reports whether this caller performed the flip. Under concurrent
	// rotation of the same raw token, exactly one caller wins.
	RevokeIfActive(ctx context.Context, id int64) (bool, error)
	// Revoke flags the token revoked regardless of prior state. Idempotent.
	Revoke(ctx context.Context, id int64) error
	// RevokeAllForSession revokes every non-revoked token of the session.
	// Extension point for reuse-detection escalation; also backs explicit
	// session revocation.
	RevokeAllForSession(ctx context.Context, sessionID int64) error
}
