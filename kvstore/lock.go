package kvstore

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	bo "github.com/totalhack/zar-numberpool/backoff"
)

// ErrLockNotOwned is returned by Release when the lock value on the
// server no longer matches this holder's token (it expired and was
// re-acquired by someone else, or was never acquired).
var ErrLockNotOwned = errors.New("lock not owned")

// ErrLockWaitTimeout is returned by Acquire when the lock could not be
// obtained before waitTimeout elapsed.
var ErrLockWaitTimeout = errors.New("timed out waiting for lock")

const lockPollInterval = 50 * time.Millisecond

// Lock is a named, server-expiring mutual exclusion lock: Acquire
// blocks (bounded by waitTimeout) until the named lock is free, and
// the server self-releases it after holdTimeout even if Release is
// never called (e.g. the holder crashed).
type Lock interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

type redisLock struct {
	client      *redis.Client
	key         string
	owner       string
	holdTimeout time.Duration
	waitTimeout time.Duration
}

func newRedisLock(client *redis.Client, name string, holdTimeout, waitTimeout time.Duration) *redisLock {
	return &redisLock{
		client:      client,
		key:         name,
		owner:       uuid.New().String(),
		holdTimeout: holdTimeout,
		waitTimeout: waitTimeout,
	}
}

// Acquire grounded on the teacher's DistributedLock.Acquire (SetNX),
// extended with a bounded poll loop so callers can wait briefly
// instead of failing on the first contended attempt.
func (l *redisLock) Acquire(ctx context.Context) error {
	tries := uint(l.waitTimeout/lockPollInterval) + 1

	w := bo.NewConstant(ctx, lockPollInterval, tries)
	w.SetDoOperation(func() (any, error) {
		ok, err := l.client.SetNX(ctx, l.key, l.owner, l.holdTimeout).Result()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrLockWaitTimeout
		}
		return nil, nil
	})

	if err := w.Exec(); err != nil {
		return err
	}
	return nil
}

// releaseScript atomically checks ownership before deleting, so a
// holder whose lock already expired and was re-acquired elsewhere
// can't delete someone else's lock.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

func (l *redisLock) Release(ctx context.Context) error {
	result, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.owner).Result()
	if err != nil {
		return err
	}
	if n, ok := result.(int64); !ok || n == 0 {
		return ErrLockNotOwned
	}
	return nil
}
