package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "captions:"

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore keeps records as plain redis strings under a common prefix.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to redis. Addr is either host:port or a redis:// URL.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	var opt *redis.Options
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opt = parsed
	} else {
		opt = &redis.Options{Addr: addr, Password: cfg.Password, DB: cfg.DB}
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func NewRedisStoreFromClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, redisKeyPrefix+key, value, 0)
	pipe.ZAdd(ctx, redisKeyPrefix+"index", redis.Z{Score: float64(time.Now().UnixMilli()), Member: key})
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, redisKeyPrefix+key)
	pipe.ZRem(ctx, redisKeyPrefix+"index", key)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns every stored record, most recently updated first.
func (s *RedisStore) List(ctx context.Context) ([]RecordInfo, error) {
	members, err := s.rdb.ZRevRangeWithScores(ctx, redisKeyPrefix+"index", 0, -1).Result()
	if err != nil {
		return nil, err
	}

	ret := make([]RecordInfo, 0, len(members))
	for _, m := range members {
		key, ok := m.Member.(string)
		if !ok {
			continue
		}
		size, err := s.rdb.StrLen(ctx, redisKeyPrefix+key).Result()
		if err != nil {
			return nil, err
		}
		ret = append(ret, RecordInfo{
			Key:       key,
			Size:      size,
			UpdatedAt: time.UnixMilli(int64(m.Score)),
		})
	}
	return ret, nil
}
