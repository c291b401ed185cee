package kvstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests connect to a local Redis, mirroring the teacher's own
// redis_test.go. They are skipped automatically when nothing is
// listening so `go test ./...` stays green without infrastructure.
func dialTestStore(t *testing.T) *RedisStore {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	store, err := NewRedisStore(ctx, Options{Addr: "localhost:6379"})
	if err != nil {
		t.Skipf("no local redis available: %v", err)
	}
	return store
}

func TestRedisStore_StringRoundTrip(t *testing.T) {
	store := dialTestStore(t)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "zar-test:key", []byte("1234567890"), 0))

	value, ok, err := store.Get(ctx, "zar-test:key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1234567890", string(value))

	require.NoError(t, store.Del(ctx, "zar-test:key"))
	_, ok, err = store.Get(ctx, "zar-test:key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_SetOps(t *testing.T) {
	store := dialTestStore(t)
	defer store.Close()
	ctx := context.Background()
	key := "zar-test:set"
	defer store.Del(ctx, key)

	require.NoError(t, store.SAdd(ctx, key, "a", "b"))
	members, err := store.SMembers(ctx, key)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, members)

	removed, err := store.SRem(ctx, key, "a", "z")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

func TestRedisStore_Lock(t *testing.T) {
	store := dialTestStore(t)
	defer store.Close()
	ctx := context.Background()

	l1 := store.NewLock("zar-test:lock", 2*time.Second, 100*time.Millisecond)
	require.NoError(t, l1.Acquire(ctx))

	l2 := store.NewLock("zar-test:lock", 2*time.Second, 100*time.Millisecond)
	assert.Error(t, l2.Acquire(ctx))

	require.NoError(t, l1.Release(ctx))
	require.NoError(t, l2.Acquire(ctx))
	require.NoError(t, l2.Release(ctx))
}
