// Package kvstore is the C1 key-value store adapter: a thin interface
// over the Redis data structures the number-pool engine is built on
// (strings, sets, sorted sets, hashes), plus named distributed locks
// and a pool-properties invalidation channel.
package kvstore

import (
	"context"
	"time"
)

// ScoredMember pairs a sorted-set member with its score, used for the
// taken-number sorted set (score = last renewed-at unix time).
type ScoredMember struct {
	Member string
	Score  float64
}

// Store is everything numberpool, catalog-cache, routecache,
// userprofile, and staticnumber need from the underlying KV engine.
// All values passed in and returned are the caller's plain bytes;
// compression framing is an implementation detail of Set/Get.
type Store interface {
	// Strings
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	// Sets
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) (int64, error)
	SPop(ctx context.Context, key string) (string, bool, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	SScanMatch(ctx context.Context, key, pattern string, count int64) ([]string, error)

	// Sorted sets
	ZAddXX(ctx context.Context, key string, member string, score float64) (bool, error)
	ZAddNX(ctx context.Context, key string, member string, score float64) (bool, error)
	ZRem(ctx context.Context, key string, members ...string) error
	ZRange(ctx context.Context, key string) ([]string, error)
	ZRangeByScoreWithScores(ctx context.Context, key string, limit int64) ([]ScoredMember, error)

	// Hashes
	HSet(ctx context.Context, key, field, value string) error
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HDel(ctx context.Context, key string, fields ...string) error

	// Pub/sub
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, ready chan<- struct{}, handler func([]byte)) error

	// Locks
	NewLock(name string, holdTimeout, waitTimeout time.Duration) Lock

	Close() error
}
