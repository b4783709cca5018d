package security

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired, or fails
	// signature verification. Callers must not distinguish the reasons.
	ErrInvalidToken = errors.New("invalid token")
)

// AccessClaims holds JWT claims for the access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	SessionUUID string   `json:"session_uuid"`
	Roles       []string `json:"roles"`
}

// UserID returns the numeric subject of the claims, or an error when the
// subject is missing or not a decimal integer.
func (c *AccessClaims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// SignedToken is an issued access token together with its allow-list key and expiry.
type SignedToken struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// TokenProvider issues and validates HS256-signed access tokens. The signing
// key is process-wide static configuration; there is no key rotation.
type TokenProvider struct {
	signingKey []byte
	issuer     string
	accessTTL  time.Duration
}

// NewTokenProvider returns a TokenProvider signing with key. issuer is set on
// claims and validated on parse; accessTTL bounds token lifetime.
func NewTokenProvider(key []byte, issuer string, accessTTL time.Duration) *TokenProvider {
	return &TokenProvider{
		signingKey: key,
		issuer:     issuer,
		accessTTL:  accessTTL,
	}
}

// AccessTTL returns the configured access token lifetime.
func (p *TokenProvider) AccessTTL() time.Duration {
	return p.accessTTL
}

// IssueAccess issues a short-lived access token for the given user and session.
// The jti is a fresh UUID per call, used purely as the ephemeral allow-list key.
func (p *TokenProvider) IssueAccess(userID int64, sessionUUID string, roles []string) (*SignedToken, error) {
	jti := uuid.New().String()
	now := time.Now().UTC()
	expiresAt := now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SessionUUID: sessionUUID,
		Roles:       roles,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.signingKey)
	if err != nil {
		return nil, err
	}
	return &SignedToken{Token: token, JTI: jti, ExpiresAt: expiresAt}, nil
}

// ValidateAccess parses and validates an access token (signature, exp, iss).
// Every failure mode collapses to ErrInvalidToken.
func (p *TokenProvider) ValidateAccess(tokenString string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return p.signingKey, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != p.issuer {
		return nil, ErrInvalidToken
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
