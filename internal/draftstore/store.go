package draftstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AntimonyIQ/rojifi-payment-pipeline/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned for unknown or expired draft ids.
var ErrNotFound = errors.New("draft snapshot not found")

const redisKeyPrefix = "draft"

// Store persists draft snapshots between requests. The pipeline holds no
// global state; callers own the store's lifecycle.
type Store interface {
	Load(ctx context.Context, id uuid.UUID) (*models.DraftSnapshot, error)
	Save(ctx context.Context, snap *models.DraftSnapshot) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// RedisStore keeps snapshots in Redis as JSON with a sliding TTL.
type RedisStore struct {
	redis redis.Cmdable
	ttl   time.Duration
}

func NewRedisStore(redis redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{redis: redis, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, id uuid.UUID) (*models.DraftSnapshot, error) {
	val, err := s.redis.Get(ctx, redisKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load draft snapshot: %w", err)
	}
	var snap models.DraftSnapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, fmt.Errorf("decode draft snapshot: %w", err)
	}
	return &snap, nil
}

func (s *RedisStore) Save(ctx context.Context, snap *models.DraftSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode draft snapshot: %w", err)
	}
	if err := s.redis.Set(ctx, redisKey(snap.Draft.ID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("save draft snapshot: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.redis.Del(ctx, redisKey(id)).Err(); err != nil {
		return fmt.Errorf("delete draft snapshot: %w", err)
	}
	return nil
}

func redisKey(id uuid.UUID) string {
	return fmt.Sprintf("%s:%s", redisKeyPrefix, id)
}

// MemoryStore is an in-process store for tests and single-node setups.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[uuid.UUID][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[uuid.UUID][]byte)}
}

func (s *MemoryStore) Load(ctx context.Context, id uuid.UUID) (*models.DraftSnapshot, error) {
	s.mu.RLock()
	payload, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var snap models.DraftSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, fmt.Errorf("decode draft snapshot: %w", err)
	}
	return &snap, nil
}

func (s *MemoryStore) Save(ctx context.Context, snap *models.DraftSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode draft snapshot: %w", err)
	}
	s.mu.Lock()
	s.items[snap.Draft.ID] = payload
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
	return nil
}
