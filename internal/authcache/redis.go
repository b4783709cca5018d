package authcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"commerce-auth/backend/internal/redis"
)

// RedisStore implements Store on Redis. TTL eviction is delegated to Redis;
// ConsumeCode uses GETDEL so a code observed by one caller is gone for all.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore returns a Store backed by the given Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// PutAccess allow-lists jti with the payload until ttl elapses.
func (r *RedisStore) PutAccess(ctx context.Context, jti string, payload AccessPayload, ttl time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("authcache: marshal payload: %w", err)
	}
	return r.client.Set(ctx, accessPrefix+jti, data, ttl).Err()
}

// GetAccess returns the payload for jti and ok=true when allow-listed.
func (r *RedisStore) GetAccess(ctx context.Context, jti string) (AccessPayload, bool, error) {
	val, err := r.client.Get(ctx, accessPrefix+jti).Result()
	if errors.Is(err, goredis.Nil) {
		return AccessPayload{}, false, nil
	}
	if err != nil {
		return AccessPayload{}, false, err
	}
	var p AccessPayload
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return AccessPayload{}, false, fmt.Errorf("authcache: unmarshal payload: %w", err)
	}
	return p, true, nil
}

// DeleteAccess removes jti from the allow-list. Unknown jti is a no-op.
func (r *RedisStore) DeleteAccess(ctx context.Context, jti string) error {
	return r.client.Del(ctx, accessPrefix+jti).Err()
}

// PutCode stores a one-time code -> email mapping in the given namespace.
func (r *RedisStore) PutCode(ctx context.Context, namespace, code, email string, ttl time.Duration) error {
	return r.client.Set(ctx, namespace+code, email, ttl).Err()
}

// ConsumeCode atomically reads and deletes the mapping via GETDEL.
func (r *RedisStore) ConsumeCode(ctx context.Context, namespace, code string) (string, bool, error) {
	val, err := r.client.GetDel(ctx, namespace+code).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}
