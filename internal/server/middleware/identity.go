package middleware

import (
	"github.com/gin-gonic/gin"
)

// RolePrefix is prepended to role names when they become request authorities,
// so a stored role CUSTOMER is checked as ROLE_CUSTOMER.
const RolePrefix = "ROLE_"

const identityKey = "auth.identity"

// Identity is the authenticated principal attached to a request by the gate.
type Identity struct {
	UserID      int64
	SessionUUID string
	JTI         string
	Authorities []string
}

// HasAuthority reports whether the identity carries the given authority,
// e.g. "ROLE_ADMIN".
func (id Identity) HasAuthority(authority string) bool {
	for _, a := range id.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}

// SetIdentity attaches the identity to the request context.
func SetIdentity(c *gin.Context, id Identity) {
	c.Set(identityKey, id)
}

// GetIdentity returns the request identity and true when the gate
// authenticated the request; otherwise the zero Identity and false.
func GetIdentity(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
