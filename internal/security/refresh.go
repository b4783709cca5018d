package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// RefreshTokenBytes is the entropy of a raw refresh token before encoding.
const RefreshTokenBytes = 48

// GenerateRefreshToken returns a new high-entropy raw refresh token,
// URL-safe base64 without padding. The raw value is returned to the client
// once and never stored.
func GenerateRefreshToken() (string, error) {
	b := make([]byte, RefreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewOneTimeCode returns an opaque single-use code for emailed verification
// and reset links, 32 URL-safe characters.
func NewOneTimeCode() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		panic("security: crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// RefreshHasher computes the keyed hash under which refresh tokens are stored.
// HMAC rather than a plain digest so a leaked user_tokens table does not allow
// offline recovery of raw tokens.
type RefreshHasher struct {
	secret []byte
}

// NewRefreshHasher returns a RefreshHasher keyed with secret.
func NewRefreshHasher(secret []byte) *RefreshHasher {
	return &RefreshHasher{secret: secret}
}

// Hash returns the HMAC-SHA256 of token, hex-encoded.
func (h *RefreshHasher) Hash(token string) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Equal performs constant-time comparison of the provided raw token's hash
// with the stored hash. Returns true only if they match.
func (h *RefreshHasher) Equal(providedToken, storedHash string) bool {
	providedHash := h.Hash(providedToken)
	return subtle.ConstantTimeCompare([]byte(providedHash), []byte(storedHash)) == 1
}
