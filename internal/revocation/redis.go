package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "revoked:"

// Redis is a ledger shared by every API replica. Keys carry a TTL equal to
// the token's remaining lifetime so Redis reclaims them on its own.
type Redis struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// RedisOption configures a Redis ledger.
type RedisOption func(*Redis)

func WithPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

func WithClock(fn func() time.Time) RedisOption {
	return func(r *Redis) {
		if fn != nil {
			r.now = fn
		}
	}
}

func NewRedis(client redis.UniversalClient, opts ...RedisOption) *Redis {
	r := &Redis{client: client, prefix: defaultPrefix, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// key hashes the token so raw bearer credentials never sit in Redis.
func (r *Redis) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return r.prefix + hex.EncodeToString(sum[:])
}

func (r *Redis) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(r.now())
	if ttl <= 0 {
		// Already expired; validation rejects it without a ledger entry.
		return nil
	}
	if err := r.client.SetNX(ctx, r.key(token), strconv.FormatInt(expiresAt.Unix(), 10), ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(token)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// Purge removes entries whose recorded expiry is at or before now. Redis TTLs
// normally get there first; this covers clock drift between replicas.
func (r *Redis) Purge(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := r.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("redis get: %w", err)
		}
		exp, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || exp <= now.Unix() {
			n, err := r.client.Del(ctx, key).Result()
			if err != nil {
				return removed, fmt.Errorf("redis del: %w", err)
			}
			removed += int(n)
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("redis scan: %w", err)
	}
	return removed, nil
}

func (r *Redis) Len(ctx context.Context) (int, error) {
	n := 0
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("redis scan: %w", err)
	}
	return n, nil
}
