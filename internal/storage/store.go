// Package storage persists the autotrader's configuration, journal and risk
// state in a key-value store, and closed trades and candles in Postgres.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"fx-autotrader/internal/model"

	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("not found")

// Key suffixes under the configured prefix.
const (
	KeyConfig    = "config"
	KeyLogs      = "logs"
	KeyRiskState = "risk_state"

	// RiskStateTTL outlives a trading day so a restart keeps today's counters.
	RiskStateTTL = 7 * 24 * time.Hour
)

// Store is the autotrader's durable state.
type Store interface {
	LoadConfig(ctx context.Context) (model.AutoTraderConfig, error)
	SaveConfig(ctx context.Context, cfg model.AutoTraderConfig) error
	LoadLogs(ctx context.Context) ([]model.LogEntry, error)
	SaveLogs(ctx context.Context, logs []model.LogEntry) error
	LoadRiskState(ctx context.Context) (model.DailyStats, error)
	SaveRiskState(ctx context.Context, s model.DailyStats) error
}

type backend interface {
	get(ctx context.Context, key string) ([]byte, error)
	set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// kvStore encodes every value as JSON under prefix+key.
type kvStore struct {
	b      backend
	prefix string
}

func (s kvStore) load(ctx context.Context, key string, v any) error {
	data, err := s.b.get(ctx, s.prefix+key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return nil
}

func (s kvStore) save(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.b.set(ctx, s.prefix+key, data, ttl)
}

func (s kvStore) LoadConfig(ctx context.Context) (model.AutoTraderConfig, error) {
	var cfg model.AutoTraderConfig
	err := s.load(ctx, KeyConfig, &cfg)
	return cfg, err
}

func (s kvStore) SaveConfig(ctx context.Context, cfg model.AutoTraderConfig) error {
	return s.save(ctx, KeyConfig, cfg, 0)
}

func (s kvStore) LoadLogs(ctx context.Context) ([]model.LogEntry, error) {
	var logs []model.LogEntry
	err := s.load(ctx, KeyLogs, &logs)
	return logs, err
}

func (s kvStore) SaveLogs(ctx context.Context, logs []model.LogEntry) error {
	return s.save(ctx, KeyLogs, logs, 0)
}

func (s kvStore) LoadRiskState(ctx context.Context) (model.DailyStats, error) {
	var st model.DailyStats
	err := s.load(ctx, KeyRiskState, &st)
	return st, err
}

func (s kvStore) SaveRiskState(ctx context.Context, st model.DailyStats) error {
	return s.save(ctx, KeyRiskState, st, RiskStateTTL)
}

// RedisStore keeps the state in Redis.
type RedisStore struct {
	kvStore
	client *redis.Client
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	s := &RedisStore{client: client}
	s.kvStore = kvStore{b: redisBackend{client: client}, prefix: prefix}
	return s
}

// Ping checks the connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

type redisBackend struct {
	client *redis.Client
}

func (r redisBackend) get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from redis: %w", key, err)
	}
	return data, nil
}

func (r redisBackend) set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write %s to redis: %w", key, err)
	}
	return nil
}

// MemoryStore keeps the state in process. Used when Redis is not configured.
type MemoryStore struct {
	kvStore
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{kvStore: kvStore{b: &memBackend{data: make(map[string][]byte)}}}
}

type memBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func (m *memBackend) get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return data, nil
}

// TTLs are ignored in memory.
func (m *memBackend) set(_ context.Context, key string, data []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	return nil
}
