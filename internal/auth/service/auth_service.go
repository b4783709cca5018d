// Package service implements the session/token orchestrator: login,
// refresh rotation, logout, email verification, and password reset.
package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"commerce-auth/backend/internal/audit"
	"commerce-auth/backend/internal/authcache"
	"commerce-auth/backend/internal/security"
	sessiondomain "commerce-auth/backend/internal/session/domain"
	userdomain "commerce-auth/backend/internal/user/domain"
)

// Sentinel errors for the auth service; handlers map them to HTTP status codes.
var (
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountNotVerified   = errors.New("account not verified")
	ErrAlreadyVerified      = errors.New("account already verified")
	ErrInvalidOrExpiredCode = errors.New("invalid or expired code")
	ErrInvalidRefreshToken  = errors.New("invalid refresh token")
	ErrTokenRevoked         = errors.New("refresh token revoked")
	ErrTokenExpired         = errors.New("refresh token expired")
	ErrUserNotFound         = errors.New("user not found")
	ErrSessionNotFound      = errors.New("session not found")
)

// UserStore is the minimal user persistence needed by the auth service.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	Activate(ctx context.Context, id int64) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	ListRoleNames(ctx context.Context, userID int64) ([]string, error)
}

// SessionStore is the minimal session persistence needed by the auth service.
type SessionStore interface {
	GetByID(ctx context.Context, id int64) (*sessiondomain.Session, error)
	GetByUUID(ctx context.Context, sessionUUID string) (*sessiondomain.Session, error)
	CreateWithRefreshToken(ctx context.Context, s *sessiondomain.Session, t *sessiondomain.RefreshToken) error
	RevokeSession(ctx context.Context, id int64) error
}

// RefreshTokenStore is the minimal refresh-token persistence needed by the auth service.
type RefreshTokenStore interface {
	GetByHash(ctx context.Context, tokenHash string) (*sessiondomain.RefreshToken, error)
	Create(ctx context.Context, t *sessiondomain.RefreshToken) error
	RevokeIfActive(ctx context.Context, id int64) (bool, error)
	Revoke(ctx context.Context, id int64) error
	RevokeAllForSession(ctx context.Context, sessionID int64) error
}

// MailService composes and dispatches verification and reset messages.
type MailService interface {
	SendVerificationEmail(ctx context.Context, to, code string, ttl time.Duration) error
	SendPasswordResetEmail(ctx context.Context, to, code string, ttl time.Duration) error
}

// LoginInput carries the credentials and device metadata for Login.
type LoginInput struct {
	Email      string
	Password   string
	DeviceName string
	DeviceType string
	IP         string
	UserAgent  string
}

// AuthResult holds the outcome of Login or Refresh. RefreshToken is the raw
// value, returned to the caller exactly once.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	SessionUUID  string
}

// Service coordinates the durable and ephemeral stores, the hasher, and the
// token issuer. It holds no in-process locks; cross-request coordination is
// the stores' uniqueness constraints and atomic operations.
type Service struct {
	users    UserStore
	sessions SessionStore
	tokens   RefreshTokenStore
	cache    authcache.Store
	mailer   MailService
	hasher   *security.Hasher
	issuer   *security.TokenProvider
	refresh  *security.RefreshHasher
	audit    audit.Logger

	refreshTTL time.Duration
	verifyTTL  time.Duration
	resetTTL   time.Duration
}

// New returns an auth Service with the given dependencies. auditLogger may be
// nil to disable the audit trail.
func New(
	users UserStore,
	sessions SessionStore,
	tokens RefreshTokenStore,
	cache authcache.Store,
	mailer MailService,
	hasher *security.Hasher,
	issuer *security.TokenProvider,
	refresh *security.RefreshHasher,
	auditLogger audit.Logger,
	refreshTTL, verifyTTL, resetTTL time.Duration,
) *Service {
	return &Service{
		users:      users,
		sessions:   sessions,
		tokens:     tokens,
		cache:      cache,
		mailer:     mailer,
		hasher:     hasher,
		issuer:     issuer,
		refresh:    refresh,
		audit:      auditLogger,
		refreshTTL: refreshTTL,
		verifyTTL:  verifyTTL,
		resetTTL:   resetTTL,
	}
}

// Login authenticates email/password, creates a session with its initial
// refresh token, and returns a signed access token plus the raw refresh token.
func (s *Service) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || in.Password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	// Absent user and wrong password fail identically, so login does not
	// reveal whether an email is registered.
	if user == nil {
		s.logEvent(ctx, 0, audit.ActionLoginFailure, in.IP, "unknown email")
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountNotVerified
	}
	if err := s.hasher.Verify(user.PasswordHash, in.Password); err != nil {
		s.logEvent(ctx, user.ID, audit.ActionLoginFailure, in.IP, "bad password")
		return nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	sess := &sessiondomain.Session{
		UserID:      user.ID,
		SessionUUID: uuid.New().String(),
		DeviceName:  in.DeviceName,
		DeviceType:  in.DeviceType,
		IPAddress:   in.IP,
		UserAgent:   in.UserAgent,
		IsActive:    true,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.refreshTTL),
	}

	rawRefresh, err := security.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	tok := &sessiondomain.RefreshToken{
		UserID:    user.ID,
		TokenHash: s.refresh.Hash(rawRefresh),
		TokenType: sessiondomain.TokenTypeRefresh,
		CreatedAt: now,
		ExpiresAt: now.Add(s.refreshTTL),
	}

	if err := s.sessions.CreateWithRefreshToken(ctx, sess, tok); err != nil {
		return nil, err
	}

	accessToken, err := s.issueAndAllowList(ctx, user.ID, sess.SessionUUID)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, user.ID, audit.ActionLoginSuccess, in.IP, "device="+in.DeviceType)

	return &AuthResult{
		AccessToken:  accessToken.Token,
		RefreshToken: rawRefresh,
		ExpiresAt:    accessToken.ExpiresAt,
		SessionUUID:  sess.SessionUUID,
	}, nil
}

// Refresh validates the presented raw refresh token, rotates it, and returns
// a new access/refresh pair. The old raw token is permanently unusable after
// a successful rotation; a replay observes it revoked.
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (*AuthResult, error) {
	if rawRefresh == "" {
		return nil, ErrInvalidRefreshToken
	}

	tok, err := s.tokens.GetByHash(ctx, s.refresh.Hash(rawRefresh))
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, ErrInvalidRefreshToken
	}
	if tok.IsRevoked {
		return nil, ErrTokenRevoked
	}
	now := time.Now().UTC()
	if tok.Expired(now) {
		return nil, ErrTokenExpired
	}

	// Compare-and-revoke before the replacement exists: when two callers race
	// with the same raw token, the loser's update matches no row and it
	// observes the token already revoked.
	won, err := s.tokens.RevokeIfActive(ctx, tok.ID)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrTokenRevoked
	}

	sess, err := s.sessions.GetByID(ctx, tok.SessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || !sess.IsActive || sess.RevokedAt != nil {
		return nil, ErrInvalidRefreshToken
	}

	newRaw, err := security.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	newTok := &sessiondomain.RefreshToken{
		UserID:    tok.UserID,
		SessionID: tok.SessionID,
		TokenHash: s.refresh.Hash(newRaw),
		TokenType: sessiondomain.TokenTypeRefresh,
		CreatedAt: now,
		ExpiresAt: now.Add(s.refreshTTL),
	}
	if err := s.tokens.Create(ctx, newTok); err != nil {
		return nil, err
	}

	accessToken, err := s.issueAndAllowList(ctx, tok.UserID, sess.SessionUUID)
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, tok.UserID, audit.ActionTokenRefresh, sess.IPAddress, "")

	return &AuthResult{
		AccessToken:  accessToken.Token,
		RefreshToken: newRaw,
		ExpiresAt:    accessToken.ExpiresAt,
		SessionUUID:  sess.SessionUUID,
	}, nil
}

// Logout revokes whatever the caller presents. Invalid or unknown tokens are
// ignored; revocation is idempotent and always succeeds from the client's
// point of view. Only store failures propagate.
func (s *Service) Logout(ctx context.Context, bearerAccess, rawRefresh string) error {
	if bearerAccess != "" {
		token := stripBearer(bearerAccess)
		if claims, err := s.issuer.ValidateAccess(token); err == nil {
			// Removing the jti invalidates the access token network-wide
			// regardless of its remaining natural TTL.
			if err := s.cache.DeleteAccess(ctx, claims.ID); err != nil {
				return err
			}
			if uid, err := claims.UserID(); err == nil {
				s.logEvent(ctx, uid, audit.ActionLogout, "", "access token")
			}
		}
	}

	if rawRefresh != "" {
		tok, err := s.tokens.GetByHash(ctx, s.refresh.Hash(rawRefresh))
		if err != nil {
			return err
		}
		if tok != nil {
			if err := s.tokens.Revoke(ctx, tok.ID); err != nil {
				return err
			}
		}
	}

	return nil
}

// RevokeSession flags the session inactive and revokes all of its refresh
// tokens. Used for explicit device revocation and available as the
// escalation path should rotated-token reuse ever be treated as theft.
func (s *Service) RevokeSession(ctx context.Context, sessionID int64) error {
	if err := s.tokens.RevokeAllForSession(ctx, sessionID); err != nil {
		return err
	}
	return s.sessions.RevokeSession(ctx, sessionID)
}

// RevokeSessionByUUID revokes the caller's session identified by its public
// UUID. A session belonging to another user reports not-found rather than
// forbidden, so UUIDs cannot be probed for existence.
func (s *Service) RevokeSessionByUUID(ctx context.Context, userID int64, sessionUUID string) error {
	sess, err := s.sessions.GetByUUID(ctx, sessionUUID)
	if err != nil {
		return err
	}
	if sess == nil || sess.UserID != userID {
		return ErrSessionNotFound
	}
	if err := s.RevokeSession(ctx, sess.ID); err != nil {
		return err
	}
	s.logEvent(ctx, userID, audit.ActionLogout, sess.IPAddress, "session revoked")
	return nil
}

// SendVerificationEmail stores a fresh one-time verification code and mails
// it to the user. Fails when the account is already verified.
func (s *Service) SendVerificationEmail(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if user.IsActive {
		return ErrAlreadyVerified
	}

	code := security.NewOneTimeCode()
	if err := s.cache.PutCode(ctx, authcache.NamespaceVerify, code, user.Email, s.verifyTTL); err != nil {
		return err
	}
	return s.mailer.SendVerificationEmail(ctx, user.Email, code, s.verifyTTL)
}

// VerifyEmail consumes the one-time code and activates the account. The code
// is gone after the first attempt, successful or not past this point.
func (s *Service) VerifyEmail(ctx context.Context, code string) error {
	email, ok, err := s.cache.ConsumeCode(ctx, authcache.NamespaceVerify, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidOrExpiredCode
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if err := s.users.Activate(ctx, user.ID); err != nil {
		return err
	}

	s.logEvent(ctx, user.ID, audit.ActionEmailVerified, "", "")
	return nil
}

// ForgotPassword stores a one-time reset code and mails it. Unknown emails
// report success and mail failures are swallowed, so the endpoint does not
// disclose whether an account exists.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return nil
	}

	code := security.NewOneTimeCode()
	if err := s.cache.PutCode(ctx, authcache.NamespaceReset, code, user.Email, s.resetTTL); err != nil {
		return err
	}
	if err := s.mailer.SendPasswordResetEmail(ctx, user.Email, code, s.resetTTL); err != nil {
		log.Printf("auth: failed to send password reset email to %s: %v", user.Email, err)
	}
	return nil
}

// ResetPassword consumes the one-time reset code and replaces the user's
// password hash.
func (s *Service) ResetPassword(ctx context.Context, code, newPassword string) error {
	email, ok, err := s.cache.ConsumeCode(ctx, authcache.NamespaceReset, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidOrExpiredCode
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}

	s.logEvent(ctx, user.ID, audit.ActionPasswordReset, "", "")
	return nil
}

// issueAndAllowList signs a fresh access token and allow-lists its jti with a
// TTL mirroring the token's expiry. An unreachable ephemeral store fails the
// whole operation rather than issuing a token no gate would honor.
func (s *Service) issueAndAllowList(ctx context.Context, userID int64, sessionUUID string) (*security.SignedToken, error) {
	roles, err := s.users.ListRoleNames(ctx, userID)
	if err != nil {
		return nil, err
	}

	signed, err := s.issuer.IssueAccess(userID, sessionUUID, roles)
	if err != nil {
		return nil, err
	}

	payload := authcache.AccessPayload{UID: userID, Session: sessionUUID, Roles: roles}
	if err := s.cache.PutAccess(ctx, signed.JTI, payload, s.issuer.AccessTTL()); err != nil {
		return nil, err
	}
	return signed, nil
}

func (s *Service) logEvent(ctx context.Context, userID int64, action, ip, metadata string) {
	if s.audit == nil {
		return
	}
	s.audit.LogEvent(ctx, userID, action, "auth", ip, metadata)
}

// stripBearer removes a leading Bearer scheme, matching it case-insensitively
// the way the request gate does.
func stripBearer(header string) string {
	const prefix = "bearer "
	v := strings.TrimSpace(header)
	if len(v) >= len(prefix) && strings.EqualFold(v[:len(prefix)], prefix) {
		return strings.TrimSpace(v[len(prefix):])
	}
	return v
}
