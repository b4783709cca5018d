package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	authservice "commerce-auth/backend/internal/auth/service"
	"commerce-auth/backend/internal/session/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// Compile-time assertions that the concrete repository satisfies the auth
// service's store interfaces, so in-memory fakes cannot mask a divergence.
var (
	_ authservice.SessionStore      = (*PostgresRepository)(nil)
	_ authservice.RefreshTokenStore = (*PostgresRepository)(nil)
)

// NewPostgresRepository returns a repository over sessions and refresh tokens
// that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, sessionSelect+` WHERE id = $1`, id)
	return scanSession(row)
}

// GetByUUID returns the session for the public session UUID, or nil if not found.
func (r *PostgresRepository) GetByUUID(ctx context.Context, sessionUUID string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, sessionSelect+` WHERE session_uuid = $1`, sessionUUID)
	return scanSession(row)
}

const sessionSelect = `
	SELECT id, user_id, session_uuid, device_name, device_type, ip_address,
	       user_agent, is_active, created_at, expires_at, revoked_at
	FROM user_sessions`

// CreateWithRefreshToken persists the session and its initial refresh token
// in one transaction.
func (r *PostgresRepository) CreateWithRefreshToken(ctx context.Context, s *domain.Session, t *domain.RefreshToken) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("session: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO user_sessions (user_id, session_uuid, device_name, device_type,
		                           ip_address, user_agent, is_active, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, s.UserID, s.SessionUUID, nullStr(s.DeviceName), nullStr(s.DeviceType),
		nullStr(s.IPAddress), nullStr(s.UserAgent), s.IsActive, s.CreatedAt, s.ExpiresAt).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("session: insert session: %w", err)
	}

	t.SessionID = s.ID
	err = tx.QueryRowContext(ctx, tokenInsert,
		t.UserID, t.SessionID, t.TokenHash, t.TokenType, t.IsRevoked, t.CreatedAt, t.ExpiresAt).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("session: insert refresh token: %w", err)
	}

	return tx.Commit()
}

// RevokeSession flags the session inactive and stamps revoked_at.
func (r *PostgresRepository) RevokeSession(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_sessions SET is_active = FALSE, revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`, id, time.Now().UTC())
	return err
}

const tokenInsert = `
	INSERT INTO user_tokens (user_id, session_id, token_hash, token_type,
	                         is_revoked, created_at, expires_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id`

// GetByHash returns the refresh token row for the keyed hash, or nil if not found.
func (r *PostgresRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, session_id, token_hash, token_type, is_revoked,
		       created_at, expires_at, revoked_at
		FROM user_tokens WHERE token_hash = $1
	`, tokenHash)

	var (
		t         domain.RefreshToken
		revokedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.UserID, &t.SessionID, &t.TokenHash, &t.TokenType,
		&t.IsRevoked, &t.CreatedAt, &t.ExpiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	return &t, nil
}

// Create persists the refresh token and sets its generated ID.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	return r.db.QueryRowContext(ctx, tokenInsert,
		t.UserID, t.SessionID, t.TokenHash, t.TokenType, t.IsRevoked, t.CreatedAt, t.ExpiresAt).Scan(&t.ID)
}

// RevokeIfActive atomically flips is_revoked from false to true. The
// is_revoked predicate is the version check: under concurrent rotation of the
// same raw token, only the caller whose UPDATE matched a row wins.
func (r *PostgresRepository) RevokeIfActive(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE user_tokens SET is_revoked = TRUE, revoked_at = $2
		WHERE id = $1 AND is_revoked = FALSE
	`, id, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Revoke flags the token revoked regardless of prior state.
func (r *PostgresRepository) Revoke(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_tokens SET is_revoked = TRUE, revoked_at = $2
		WHERE id = $1 AND is_revoked = FALSE
	`, id, time.Now().UTC())
	return err
}

// RevokeAllForSession revokes every non-revoked token of the session.
func (r *PostgresRepository) RevokeAllForSession(ctx context.Context, sessionID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE user_tokens SET is_revoked = TRUE, revoked_at = $2
		WHERE session_id = $1 AND is_revoked = FALSE
	`, sessionID, time.Now().UTC())
	return err
}

func scanSession(row *sql.Row) (*domain.Session, error) {
	var (
		s          domain.Session
		deviceName sql.NullString
		deviceType sql.NullString
		ipAddress  sql.NullString
		userAgent  sql.NullString
		revokedAt  sql.NullTime
	)
	err := row.Scan(&s.ID, &s.UserID, &s.SessionUUID, &deviceName, &deviceType,
		&ipAddress, &userAgent, &s.IsActive, &s.CreatedAt, &s.ExpiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.DeviceName = deviceName.String
	s.DeviceType = deviceType.String
	s.IPAddress = ipAddress.String
	s.UserAgent = userAgent.String
	if revokedAt.Valid {
		s.RevokedAt = &revokedAt.Time
	}
	return &s, nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
