package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zhouzirui/liveness/backend/internal/config"
	"github.com/zhouzirui/liveness/backend/internal/model/liveness"
)

// RedisStore 将最终判定以 JSON 形式写入 Redis，键带命名空间并设置过期时间。
type RedisStore struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

// NewRedisClient 连接 Redis 并做一次 Ping 检查。
func NewRedisClient(ctx context.Context, cfg config.StoreConfig) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisStore wraps an established client.
func NewRedisStore(client *redis.Client, namespace string, ttl time.Duration) *RedisStore {
	if namespace == "" {
		namespace = "liveness"
	}
	return &RedisStore{client: client, namespace: namespace, ttl: ttl}
}

func createKey(namespace, sessionID string) string {
	return fmt.Sprintf("%s:verdict:%s", namespace, sessionID)
}

func (s *RedisStore) Save(ctx context.Context, sessionID string, v liveness.Verdict) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}
	return s.client.Set(ctx, createKey(s.namespace, sessionID), data, s.ttl).Err()
}

func (s *RedisStore) Load(ctx context.Context, sessionID string) (liveness.Verdict, error) {
	data, err := s.client.Get(ctx, createKey(s.namespace, sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return liveness.Verdict{}, ErrNotFound
	}
	if err != nil {
		return liveness.Verdict{}, fmt.Errorf("load verdict: %w", err)
	}

	var v liveness.Verdict
	if err := json.Unmarshal(data, &v); err != nil {
		return liveness.Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	return v.Normalize(), nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Open 根据配置选择 Redis 或内存存储。
func Open(ctx context.Context, cfg config.StoreConfig) (VerdictStore, error) {
	if !cfg.RedisEnabled() {
		return NewMemoryStore(cfg.VerdictTTL), nil
	}
	client, err := NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewRedisStore(client, cfg.Namespace, cfg.VerdictTTL), nil
}
