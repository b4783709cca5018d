// Package authcache is the ephemeral TTL key/value store behind short-lived
// authorization state: the access-token allow-list and one-time email codes.
package authcache

import (
	"context"
	"time"
)

// Key namespaces. Allow-list keys are prefixed distinctly from verification
// and reset codes; each class carries its own TTL.
const (
	accessPrefix = "auth:access:"

	// NamespaceVerify holds email verification codes.
	NamespaceVerify = "verify:"
	// NamespaceReset holds password reset codes.
	NamespaceReset = "reset:"
)

// AccessPayload is the minimal claims payload stored against an allow-listed
// jti, so the request gate can authorize without re-deriving state.
type AccessPayload struct {
	UID     int64    `json:"uid"`
	Session string   `json:"session"`
	Roles   []string `json:"roles"`
}

// Store defines the ephemeral operations the auth core needs. The mere
// presence of an allow-list entry is what makes an access token honorable;
// deleting it revokes the token before its natural expiry.
type Store interface {
	// PutAccess allow-lists jti with the given payload until ttl elapses.
	PutAccess(ctx context.Context, jti string, payload AccessPayload, ttl time.Duration) error
	// GetAccess returns the payload for jti and ok=true when allow-listed.
	GetAccess(ctx context.Context, jti string) (AccessPayload, bool, error)
	// DeleteAccess removes jti from the allow-list. Unknown jti is a no-op.
	DeleteAccess(ctx context.Context, jti string) error

	// PutCode stores a one-time code -> email mapping in the given namespace.
	PutCode(ctx context.Context, namespace, code, email string, ttl time.Duration) error
	// ConsumeCode atomically reads and deletes the mapping so a code can be
	// used exactly once. ok=false when the code is absent or expired.
	ConsumeCode(ctx context.Context, namespace, code string) (email string, ok bool, err error)
}
