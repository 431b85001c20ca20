package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// KeyStore reserves idempotency keys for in-flight submissions so two
// processes cannot race the same logical fact. Reservations expire with the
// submission timeout: a timed-out attempt frees the key for resubmission, and
// the ledger's own key dedup guarantees the retry cannot double-record.
type KeyStore interface {
	// Reserve claims the key for ttl. Returns false if another submission
	// holds it.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release frees the key after the submission settles.
	Release(ctx context.Context, key string) error
}

// RedisKeyStore reserves keys via SET NX.
type RedisKeyStore struct {
	client *redis.Client
	prefix string
}

func NewRedisKeyStore(client *redis.Client) *RedisKeyStore {
	return &RedisKeyStore{client: client, prefix: "custodia:idem:"}
}

func (s *RedisKeyStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.prefix+key, 1, ttl).Result()
}

func (s *RedisKeyStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

// MemoryKeyStore is the single-process fallback when Redis is not configured.
type MemoryKeyStore struct {
	mu   sync.Mutex
	keys map[string]time.Time
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{keys: make(map[string]time.Time)}
}

func (s *MemoryKeyStore) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if expiry, ok := s.keys[key]; ok && now.Before(expiry) {
		return false, nil
	}
	s.keys[key] = now.Add(ttl)
	return true, nil
}

func (s *MemoryKeyStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}
