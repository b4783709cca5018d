package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"commerce-auth/backend/internal/authcache"
	"commerce-auth/backend/internal/security"
	sessiondomain "commerce-auth/backend/internal/session/domain"
	userdomain "commerce-auth/backend/internal/user/domain"
)

type fakeUserStore struct {
	mu    sync.Mutex
	users map[int64]*userdomain.User
	roles map[int64][]string
	next  int64
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users: make(map[int64]*userdomain.User),
		roles: make(map[int64][]string),
	}
}

func (s *fakeUserStore) add(u *userdomain.User, roles ...string) *userdomain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	u.ID = s.next
	s.users[u.ID] = u
	s.roles[u.ID] = roles
	return u
}

func (s *fakeUserStore) GetByID(ctx context.Context, id int64) (*userdomain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *fakeUserStore) GetByEmail(ctx context.Context, email string) (*userdomain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeUserStore) Activate(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return errors.New("no such user")
	}
	u.IsActive = true
	return nil
}

func (s *fakeUserStore) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return errors.New("no such user")
	}
	u.PasswordHash = passwordHash
	return nil
}

func (s *fakeUserStore) ListRoleNames(ctx context.Context, userID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.roles[userID]...), nil
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[int64]*sessiondomain.Session
	tokens   *fakeTokenStore
	next     int64
}

func newFakeSessionStore(tokens *fakeTokenStore) *fakeSessionStore {
	return &fakeSessionStore{
		sessions: make(map[int64]*sessiondomain.Session),
		tokens:   tokens,
	}
}

func (s *fakeSessionStore) GetByID(ctx context.Context, id int64) (*sessiondomain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (s *fakeSessionStore) GetByUUID(ctx context.Context, sessionUUID string) (*sessiondomain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.SessionUUID == sessionUUID {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeSessionStore) CreateWithRefreshToken(ctx context.Context, sess *sessiondomain.Session, t *sessiondomain.RefreshToken) error {
	s.mu.Lock()
	s.next++
	sess.ID = s.next
	cp := *sess
	s.sessions[sess.ID] = &cp
	s.mu.Unlock()

	t.SessionID = sess.ID
	return s.tokens.Create(ctx, t)
}

func (s *fakeSessionStore) RevokeSession(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	sess.IsActive = false
	sess.RevokedAt = &now
	return nil
}

type fakeTokenStore struct {
	mu     sync.Mutex
	tokens map[int64]*sessiondomain.RefreshToken
	next   int64
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{tokens: make(map[int64]*sessiondomain.RefreshToken)}
}

func (s *fakeTokenStore) GetByHash(ctx context.Context, tokenHash string) (*sessiondomain.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tokens {
		if t.TokenHash == tokenHash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeTokenStore) Create(ctx context.Context, t *sessiondomain.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	t.ID = s.next
	cp := *t
	s.tokens[t.ID] = &cp
	return nil
}

func (s *fakeTokenStore) RevokeIfActive(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok || t.IsRevoked {
		return false, nil
	}
	now := time.Now().UTC()
	t.IsRevoked = true
	t.RevokedAt = &now
	return true, nil
}

func (s *fakeTokenStore) Revoke(ctx context.Context, id int64) error {
	_, err := s.RevokeIfActive(ctx, id)
	return err
}

func (s *fakeTokenStore) RevokeAllForSession(ctx context.Context, sessionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for _, t := range s.tokens {
		if t.SessionID == sessionID && !t.IsRevoked {
			t.IsRevoked = true
			t.RevokedAt = &now
		}
	}
	return nil
}

type recordingMailer struct {
	mu       sync.Mutex
	sent     []string // "kind:to:code"
	failNext error
}

func (m *recordingMailer) SendVerificationEmail(ctx context.Context, to, code string, ttl time.Duration) error {
	return m.record("verify", to, code)
}

func (m *recordingMailer) SendPasswordResetEmail(ctx context.Context, to, code string, ttl time.Duration) error {
	return m.record("reset", to, code)
}

func (m *recordingMailer) record(kind, to, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return err
	}
	m.sent = append(m.sent, kind+":"+to+":"+code)
	return nil
}

func (m *recordingMailer) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		t.Fatal("no mail sent")
	}
	parts := strings.SplitN(m.sent[len(m.sent)-1], ":", 3)
	return parts[2]
}

type fixture struct {
	svc    *Service
	users  *fakeUserStore
	sess   *fakeSessionStore
	tokens *fakeTokenStore
	cache  *authcache.MemoryStore
	mailer *recordingMailer
	hasher *security.Hasher
	issuer *security.TokenProvider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens := newFakeTokenStore()
	f := &fixture{
		users:  newFakeUserStore(),
		sess:   newFakeSessionStore(tokens),
		tokens: tokens,
		cache:  authcache.NewMemoryStore(),
		mailer: &recordingMailer{},
		hasher: security.NewHasher(4),
		issuer: security.NewTokenProvider([]byte("0123456789abcdef0123456789abcdef"), "commerce-auth", 15*time.Minute),
	}
	f.svc = New(
		f.users, f.sess, f.tokens, f.cache, f.mailer,
		f.hasher, f.issuer, security.NewRefreshHasher([]byte("refresh-hmac-secret")),
		nil,
		30*24*time.Hour, 15*time.Minute, 10*time.Minute,
	)
	return f
}

func (f *fixture) addUser(t *testing.T, email, password string, active bool, roles ...string) *userdomain.User {
	t.Helper()
	hash, err := f.hasher.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return f.users.add(&userdomain.User{
		Email:        email,
		PasswordHash: hash,
		IsActive:     active,
	}, roles...)
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t)
	u := f.addUser(t, "alice@example.com", "s3cret", true, "CUSTOMER")

	res, err := f.svc.Login(context.Background(), LoginInput{Email: "Alice@Example.com", Password: "s3cret", DeviceType: "web"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" || res.SessionUUID == "" {
		t.Fatalf("incomplete result: %+v", res)
	}
	if len(res.RefreshToken) != 64 {
		t.Fatalf("refresh token length = %d, want 64", len(res.RefreshToken))
	}

	claims, err := f.issuer.ValidateAccess(res.AccessToken)
	if err != nil {
		t.Fatalf("validate access: %v", err)
	}
	uid, err := claims.UserID()
	if err != nil || uid != u.ID {
		t.Fatalf("claims user = %d (%v), want %d", uid, err, u.ID)
	}
	if claims.SessionUUID != res.SessionUUID {
		t.Fatalf("claims session = %q, want %q", claims.SessionUUID, res.SessionUUID)
	}

	payload, ok, err := f.cache.GetAccess(context.Background(), claims.ID)
	if err != nil || !ok {
		t.Fatalf("jti not allow-listed (ok=%v err=%v)", ok, err)
	}
	if payload.UID != u.ID || payload.Session != res.SessionUUID {
		t.Fatalf("allow-list payload mismatch: %+v", payload)
	}
}

func TestLoginStoresOnlyTokenHash(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "alice@example.com", "s3cret", true)

	res, err := f.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "s3cret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	f.tokens.mu.Lock()
	defer f.tokens.mu.Unlock()
	for _, tok := range f.tokens.tokens {
		if tok.TokenHash == res.RefreshToken {
			t.Fatal("raw refresh token persisted")
		}
		if len(tok.TokenHash) != 64 { // hex sha256
			t.Fatalf("token hash length = %d, want 64", len(tok.TokenHash))
		}
	}
}

func TestLoginRejections(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "alice@example.com", "s3cret", true)
	f.addUser(t, "pending@example.com", "s3cret", false)

	cases := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"unknown email", "nobody@example.com", "s3cret", ErrInvalidCredentials},
		{"wrong password", "alice@example.com", "wrong", ErrInvalidCredentials},
		{"empty password", "alice@example.com", "", ErrInvalidCredentials},
		{"unverified account", "pending@example.com", "s3cret", ErrAccountNotVerified},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Login(context.Background(), LoginInput{Email: tc.email, Password: tc.password})
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestRefreshRotation(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "alice@example.com", "s3cret", true, "CUSTOMER")

	login, err := f.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "s3cret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	first, err := f.svc.Refresh(context.Background(), login.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if first.RefreshToken == login.RefreshToken {
		t.Fatal("refresh token not rotated")
	}
	if first.SessionUUID != login.SessionUUID {
		t.Fatalf("session changed across refresh: %q -> %q", login.SessionUUID, first.SessionUUID)
	}

	// Replaying the consumed token must fail and must not mint anything.
	if _, err := f.svc.Refresh(context.Background(), login.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("replay err = %v, want %v", err, ErrTokenRevoked)
	}

	// The rotated token still works.
	if _, err := f.svc.Refresh(context.Background(), first.RefreshToken); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
}

func TestRefreshRejections(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "alice@example.com", "s3cret", true)

	if _, err := f.svc.Refresh(context.Background(), ""); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("empty token err = %v", err)
	}
	if _, err := f.svc.Refresh(context.Background(), strings.Repeat("x", 64)); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("unknown token err = %v", err)
	}
}

func TestRefreshExpiredToken(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "alice@example.com", "s3cret", true)

	login, err := f.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "s3cret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	f.tokens.mu.Lock()
	for _, tok := range f.tokens.tokens {
		tok.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	}
	f.tokens.mu.Unlock()

	if _, err := f.svc.Refresh(context.Background(), login.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("err = %v, want %v", err, ErrTokenExpired)
	}
}

func TestRefreshRevokedSession(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "alice@example.com", "s3cret", true)

	login, err := f.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "s3cret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	f.sess.mu.Lock()
	var sessionID int64
	for id := range f.sess.sessions {
		sessionID = id
	}
	f.sess.mu.Unlock()

	if err := f.svc.RevokeSession(context.Background(), sessionID); err != nil {
		t.Fatalf("revoke session: %v", err)
	}
	if _, err := f.svc.Refresh(context.Background(), login.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("err = %v, want %v", err, ErrTokenRevoked)
	}
}

func TestLogoutRevokesBothTokens(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "alice@example.com", "s3cret", true)

	login, err := f.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "s3cret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := f.issuer.ValidateAccess(login.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	if err := f.svc.Logout(context.Background(), "Bearer "+login.AccessToken, login.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}

	// The access token still verifies cryptographically but its jti is gone,
	// so the gate will treat the bearer as anonymous.
	if _, ok, _ := f.cache.GetAccess(context.Background(), claims.ID); ok {
		t.Fatal("jti still allow-listed after logout")
	}
	if _, err := f.svc.Refresh(context.Background(), login.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("refresh after logout err = %v, want %v", err, ErrTokenRevoked)
	}
}

func TestLogoutLowercaseBearerScheme(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "alice@example.com", "s3cret", true)

	login, err := f.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "s3cret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := f.issuer.ValidateAccess(login.AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	// The gate accepts the scheme case-insensitively; logout must too, or a
	// "bearer"-spelled client keeps an allow-listed jti after logging out.
	if err := f.svc.Logout(context.Background(), "bearer "+login.AccessToken, ""); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok, _ := f.cache.GetAccess(context.Background(), claims.ID); ok {
		t.Fatal("jti still allow-listed after lowercase-scheme logout")
	}
}

func TestRevokeSessionByUUID(t *testing.T) {
	f := newFixture(t)
	alice := f.addUser(t, "alice@example.com", "s3cret", true)
	mallory := f.addUser(t, "mallory@example.com", "s3cret", true)

	login, err := f.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "s3cret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	// Another user's UUID guess reads as not-found, and changes nothing.
	if err := f.svc.RevokeSessionByUUID(context.Background(), mallory.ID, login.SessionUUID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("foreign revoke err = %v, want %v", err, ErrSessionNotFound)
	}
	if _, err := f.svc.Refresh(context.Background(), login.RefreshToken); err != nil {
		t.Fatalf("session should survive foreign revoke attempt: %v", err)
	}

	login2, err := f.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "s3cret"})
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if err := f.svc.RevokeSessionByUUID(context.Background(), alice.ID, login2.SessionUUID); err != nil {
		t.Fatalf("revoke own session: %v", err)
	}
	if _, err := f.svc.Refresh(context.Background(), login2.RefreshToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("refresh after revoke err = %v, want %v", err, ErrTokenRevoked)
	}

	if err := f.svc.RevokeSessionByUUID(context.Background(), alice.ID, "no-such-uuid"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("unknown uuid err = %v, want %v", err, ErrSessionNotFound)
	}
}

func TestLogoutIdempotentAndTolerant(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "alice@example.com", "s3cret", true)

	login, err := f.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "s3cret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := f.svc.Logout(context.Background(), "Bearer "+login.AccessToken, login.RefreshToken); err != nil {
			t.Fatalf("logout #%d: %v", i+1, err)
		}
	}
	if err := f.svc.Logout(context.Background(), "Bearer garbage", "not-a-token"); err != nil {
		t.Fatalf("logout with garbage: %v", err)
	}
	if err := f.svc.Logout(context.Background(), "", ""); err != nil {
		t.Fatalf("logout with nothing: %v", err)
	}
}

func TestVerifyEmailFlow(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "pending@example.com", "s3cret", false)

	if err := f.svc.SendVerificationEmail(context.Background(), "pending@example.com"); err != nil {
		t.Fatalf("send verification: %v", err)
	}
	code := f.mailer.lastCode(t)

	if err := f.svc.VerifyEmail(context.Background(), code); err != nil {
		t.Fatalf("verify: %v", err)
	}

	// Code is single-use.
	if err := f.svc.VerifyEmail(context.Background(), code); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("reused code err = %v, want %v", err, ErrInvalidOrExpiredCode)
	}

	// Account is now active and can log in.
	if _, err := f.svc.Login(context.Background(), LoginInput{Email: "pending@example.com", Password: "s3cret"}); err != nil {
		t.Fatalf("login after verify: %v", err)
	}

	// Asking again for an already verified account is rejected.
	if err := f.svc.SendVerificationEmail(context.Background(), "pending@example.com"); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("resend err = %v, want %v", err, ErrAlreadyVerified)
	}
}

func TestSendVerificationUnknownUser(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.SendVerificationEmail(context.Background(), "nobody@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want %v", err, ErrUserNotFound)
	}
}

func TestVerifyEmailBadCode(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.VerifyEmail(context.Background(), "bogus"); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("err = %v, want %v", err, ErrInvalidOrExpiredCode)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "alice@example.com", "old-pass", true)

	if err := f.svc.ForgotPassword(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	code := f.mailer.lastCode(t)

	if err := f.svc.ResetPassword(context.Background(), code, "new-pass"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	// Old password no longer works, new one does, code is consumed.
	if _, err := f.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "old-pass"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password err = %v, want %v", err, ErrInvalidCredentials)
	}
	if _, err := f.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "new-pass"}); err != nil {
		t.Fatalf("new password login: %v", err)
	}
	if err := f.svc.ResetPassword(context.Background(), code, "another"); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("reused code err = %v, want %v", err, ErrInvalidOrExpiredCode)
	}
}

func TestForgotPasswordDoesNotRevealAccounts(t *testing.T) {
	f := newFixture(t)

	if err := f.svc.ForgotPassword(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("unknown email err = %v, want nil", err)
	}
	if len(f.mailer.sent) != 0 {
		t.Fatal("mail sent for unknown email")
	}

	// A delivery failure is swallowed for known accounts too.
	f.addUser(t, "alice@example.com", "s3cret", true)
	f.mailer.failNext = errors.New("smtp down")
	if err := f.svc.ForgotPassword(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("mail failure err = %v, want nil", err)
	}
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	f := newFixture(t)
	f.addUser(t, "alice@example.com", "s3cret", true)

	login, err := f.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: "s3cret"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Refresh(context.Background(), login.RefreshToken)
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrTokenRevoked):
		default:
			t.Fatalf("unexpected err: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
}
