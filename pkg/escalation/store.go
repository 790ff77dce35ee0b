package escalation

import (
	"context"

	"github.com/go-redis/redis/v8"
)

const (
	blockHashKey     = "wardgate:security:blocklist"
	whitelistHashKey = "wardgate:security:whitelist"
)

// RedisStore mirrors block and whitelist membership into Redis hashes
// so a restarted process can reload standing decisions.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) SaveBlock(ctx context.Context, identity, reason string) error {
	return s.client.HSet(ctx, blockHashKey, identity, reason).Err()
}

func (s *RedisStore) RemoveBlock(ctx context.Context, identity string) error {
	return s.client.HDel(ctx, blockHashKey, identity).Err()
}

func (s *RedisStore) SaveWhitelist(ctx context.Context, identity, reason string) error {
	return s.client.HSet(ctx, whitelistHashKey, identity, reason).Err()
}

// LoadBlocked returns every persisted block decision.
func (s *RedisStore) LoadBlocked(ctx context.Context) (map[string]string, error) {
	return s.client.HGetAll(ctx, blockHashKey).Result()
}

// LoadWhitelisted returns every persisted whitelist decision.
func (s *RedisStore) LoadWhitelisted(ctx context.Context) (map[string]string, error) {
	return s.client.HGetAll(ctx, whitelistHashKey).Result()
}
