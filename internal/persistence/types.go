package persistence

import (
	"context"
	"time"
)

// Store is implemented by every storage backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) ([]RecordInfo, error)
	Close() error
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*RedisStore)(nil)
)

// RecordInfo describes a stored record without its payload.
type RecordInfo struct {
	Key       string
	Size      int64
	UpdatedAt time.Time
}
