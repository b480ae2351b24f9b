package cache

import (
	"context"
	"time"
)

// BytesCache — минимальный контракт кэша. Реализация живёт в rediscache,
// в тестах подменяется картой в памяти.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}
