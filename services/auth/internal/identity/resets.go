package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ResetStore keeps single-use password reset tokens.
type ResetStore interface {
	Put(ctx context.Context, token string, userID uuid.UUID, ttl time.Duration) error
	// Take returns the user for token and deletes it.
	Take(ctx context.Context, token string) (uuid.UUID, bool, error)
}

const resetPrefix = "reset:password:"

type RedisResetStore struct {
	client *redis.Client
}

func NewRedisResetStore(client *redis.Client) *RedisResetStore {
	return &RedisResetStore{client: client}
}

func (s *RedisResetStore) Put(ctx context.Context, token string, userID uuid.UUID, ttl time.Duration) error {
	return s.client.Set(ctx, resetPrefix+token, userID.String(), ttl).Err()
}

func (s *RedisResetStore) Take(ctx context.Context, token string) (uuid.UUID, bool, error) {
	v, err := s.client.GetDel(ctx, resetPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, false, nil
	}
	return id, true, nil
}

type memoryReset struct {
	userID uuid.UUID
	until  time.Time
}

type MemoryResetStore struct {
	mu     sync.Mutex
	tokens map[string]memoryReset
}

func NewMemoryResetStore() *MemoryResetStore {
	return &MemoryResetStore{tokens: map[string]memoryReset{}}
}

func (s *MemoryResetStore) Put(_ context.Context, token string, userID uuid.UUID, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = memoryReset{userID: userID, until: time.Now().Add(ttl)}
	return nil
}

func (s *MemoryResetStore) Take(_ context.Context, token string) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.tokens[token]
	delete(s.tokens, token)
	if !ok || time.Now().After(r.until) {
		return uuid.Nil, false, nil
	}
	return r.userID, true, nil
}
