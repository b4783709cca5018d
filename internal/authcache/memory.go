package authcache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	payload   AccessPayload
	email     string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation for tests and local
// development without Redis. Expiry is enforced lazily on read.
type MemoryStore struct {
	mu   sync.Mutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: time.Now,
	}
}

// PutAccess allow-lists jti with the payload until ttl elapses.
func (s *MemoryStore) PutAccess(ctx context.Context, jti string, payload AccessPayload, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[accessPrefix+jti] = entry{payload: payload, expiresAt: s.nowF().Add(ttl)}
	return nil
}

// GetAccess returns the payload for jti and ok=true when allow-listed.
func (s *MemoryStore) GetAccess(ctx context.Context, jti string) (AccessPayload, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(accessPrefix + jti)
	if !ok {
		return AccessPayload{}, false, nil
	}
	return e.payload, true, nil
}

// DeleteAccess removes jti from the allow-list. Unknown jti is a no-op.
func (s *MemoryStore) DeleteAccess(ctx context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, accessPrefix+jti)
	return nil
}

// PutCode stores a one-time code -> email mapping in the given namespace.
func (s *MemoryStore) PutCode(ctx context.Context, namespace, code, email string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[namespace+code] = entry{email: email, expiresAt: s.nowF().Add(ttl)}
	return nil
}

// ConsumeCode reads and deletes the mapping under the store lock, so a code
// is observed by at most one caller.
func (s *MemoryStore) ConsumeCode(ctx context.Context, namespace, code string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := namespace + code
	e, ok := s.live(key)
	if !ok {
		return "", false, nil
	}
	delete(s.m, key)
	return e.email, true, nil
}

// live returns the entry for key if present and not expired; expired entries
// are dropped. Caller must hold s.mu.
func (s *MemoryStore) live(key string) (entry, bool) {
	e, ok := s.m[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.After(s.nowF()) {
		delete(s.m, key)
		return entry{}, false
	}
	return e, true
}
