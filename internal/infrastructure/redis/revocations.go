// Package redisinfra keeps the refresh-token denylist in Redis.
package redisinfra

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "revoked"

var errRedisUnavailable = errors.New("revocation redis unavailable")

// NewClient builds a client and verifies connectivity.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}
	return client, nil
}

// RevocationStore records revoked token ids with a TTL matching the token's
// remaining lifetime, so entries vanish once the token would expire anyway.
type RevocationStore struct {
	redis  *redis.Client
	prefix string
	now    func() time.Time
}

func NewRevocationStore(client *redis.Client) *RevocationStore {
	return &RevocationStore{redis: client, prefix: revokedKeyPrefix, now: time.Now}
}

func (s *RevocationStore) key(tokenID string) string {
	return s.prefix + ":" + tokenID
}

// Revoke denylists tokenID until expiresAt. Already expired tokens are skipped.
func (s *RevocationStore) Revoke(ctx context.Context, tokenID string, userID int64, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.redis.Set(ctx, s.key(tokenID), strconv.FormatInt(userID, 10), ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}
	return nil
}

func (s *RevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", errRedisUnavailable, err)
	}
	return n > 0, nil
}
