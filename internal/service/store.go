package service

import "context"

// KeyValueStore is the durable store behind the pending queue and the cached
// chat identity. database.Database and database.MemoryStore implement it.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Update(ctx context.Context, key string, fn func(current string, exists bool) (string, error)) error
}
