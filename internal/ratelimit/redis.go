package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore backs the limiter with a shared Redis so multiple instances
// enforce one budget per client. Keys carry the window as their TTL; an
// expired key simply vanishes and the next hit starts a fresh window.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

const keyPrefix = "ratelimit:"

func NewRedisStore(cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis rate limit store connected",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		zap.Int("db", cfg.DB),
	)

	return &RedisStore{client: client, logger: logger}, nil
}

func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration) (Record, error) {
	countKey := keyPrefix + key + ":count"
	startKey := keyPrefix + key + ":start"
	now := time.Now()

	count, err := s.client.Incr(ctx, countKey).Result()
	if err != nil {
		return Record{}, err
	}

	if count == 1 {
		pipe := s.client.Pipeline()
		pipe.PExpire(ctx, countKey, window)
		pipe.Set(ctx, startKey, now.UnixMilli(), window)
		if _, err := pipe.Exec(ctx); err != nil {
			s.logger.Error("Failed to arm rate limit window", zap.String("key", key), zap.Error(err))
		}
		return Record{Count: 1, WindowStart: now, LastRequest: now}, nil
	}

	windowStart := now
	if startMillis, err := s.client.Get(ctx, startKey).Int64(); err == nil {
		windowStart = time.UnixMilli(startMillis)
	}

	return Record{Count: int(count), WindowStart: windowStart, LastRequest: now}, nil
}

func (s *RedisStore) Status(ctx context.Context, key string) (Record, bool, error) {
	countKey := keyPrefix + key + ":count"
	startKey := keyPrefix + key + ":start"

	count, err := s.client.Get(ctx, countKey).Int()
	if err == redis.Nil {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}

	windowStart := time.Now()
	if startMillis, err := s.client.Get(ctx, startKey).Int64(); err == nil {
		windowStart = time.UnixMilli(startMillis)
	}

	return Record{Count: count, WindowStart: windowStart}, true, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, keyPrefix+key+":count", keyPrefix+key+":start").Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
