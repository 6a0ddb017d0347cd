package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const linkNonceKeyPrefix = "socialhub:link_nonce:"

// NonceStore keeps one pending OAuth state per key. Put replaces any earlier
// value and Take consumes it, so a state can be redeemed at most once.
type NonceStore interface {
	Put(ctx context.Context, key, nonce string, ttl time.Duration) error
	Take(ctx context.Context, key string) (string, bool, error)
}

type redisNonceStore struct {
	rdb *redis.Client
}

func NewRedisNonceStore(rdb *redis.Client) NonceStore {
	return &redisNonceStore{rdb: rdb}
}

func (s *redisNonceStore) Put(ctx context.Context, key, nonce string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, linkNonceKeyPrefix+key, nonce, ttl).Err(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// Take uses GETDEL so two concurrent callbacks cannot both redeem the state.
func (s *redisNonceStore) Take(ctx context.Context, key string) (string, bool, error) {
	nonce, err := s.rdb.GetDel(ctx, linkNonceKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		slog.Info(err.Error())
		return "", false, err
	}
	return nonce, true, nil
}

type memoryNonce struct {
	value     string
	expiresAt time.Time
}

type memoryNonceStore struct {
	mu      sync.Mutex
	entries map[string]memoryNonce
	now     func() time.Time
}

// NewMemoryNonceStore is a single-process NonceStore for tests and setups without Redis.
func NewMemoryNonceStore() NonceStore {
	return &memoryNonceStore{
		entries: map[string]memoryNonce{},
		now:     time.Now,
	}
}

func (s *memoryNonceStore) Put(_ context.Context, key, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
		}
	}
	s.entries[key] = memoryNonce{value: nonce, expiresAt: now.Add(ttl)}
	return nil
}

func (s *memoryNonceStore) Take(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	delete(s.entries, key)

	if !s.now().Before(e.expiresAt) {
		return "", false, nil
	}
	return e.value, true, nil
}
