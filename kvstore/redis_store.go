package kvstore

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/totalhack/zar-numberpool/compressor"
)

const (
	framePrefixRaw        byte = 0x00
	framePrefixCompressed byte = 0x01
)

// RedisStore implements Store over github.com/redis/go-redis/v9,
// adapted from the original RedisClient/DistributedLock/PubSubService
// trio into one cohesive adapter.
type RedisStore struct {
	client      *redis.Client
	compresser  compressor.Compresser
	compressMin int
	log         *logrus.Entry
}

// Options configures a RedisStore.
type Options struct {
	Addr         string
	Password     string
	DB           int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
	PoolTimeout  time.Duration

	// Compresser is applied to values at or above CompressMinBytes.
	// Defaults to compressor.NoneCompressor{} if nil.
	Compresser     compressor.Compresser
	CompressMinBytes int
}

func (o Options) withDefaults() Options {
	if o.DialTimeout == 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = 30 * time.Second
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = 30 * time.Second
	}
	if o.PoolSize == 0 {
		o.PoolSize = 10
	}
	if o.PoolTimeout == 0 {
		o.PoolTimeout = 30 * time.Second
	}
	if o.Compresser == nil {
		o.Compresser = compressor.NoneCompressor{}
	}
	if o.CompressMinBytes == 0 {
		o.CompressMinBytes = 1 << 62 // effectively off unless explicitly set
	}
	return o
}

// NewRedisStore dials Redis once, synchronously, and pings it.
// Callers wanting bounded retry should go through Connect instead.
func NewRedisStore(ctx context.Context, opts Options) (*RedisStore, error) {
	opts = opts.withDefaults()
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolSize:     opts.PoolSize,
		PoolTimeout:  opts.PoolTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to connect to redis at %s", opts.Addr)
	}

	return &RedisStore{
		client:      client,
		compresser:  opts.Compresser,
		compressMin: opts.CompressMinBytes,
		log:         logrus.WithField("component", "kvstore"),
	}, nil
}

func (s *RedisStore) Close() error {
	s.log.Info("closing redis store")
	return s.client.Close()
}

func (s *RedisStore) frame(value []byte) ([]byte, error) {
	if len(value) < s.compressMin {
		return append([]byte{framePrefixRaw}, value...), nil
	}
	compressed, err := s.compresser.Compress(value)
	if err != nil {
		if errors.Is(err, compressor.ErrNotShrunk) {
			return append([]byte{framePrefixRaw}, value...), nil
		}
		return nil, err
	}
	return append([]byte{framePrefixCompressed}, compressed...), nil
}

func (s *RedisStore) unframe(framed []byte) ([]byte, error) {
	if len(framed) == 0 {
		return framed, nil
	}
	prefix, payload := framed[0], framed[1:]
	switch prefix {
	case framePrefixCompressed:
		return s.compresser.Decompress(payload)
	default:
		return payload, nil
	}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	value, err := s.unframe(raw)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	framed, err := s.frame(value)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, framed, ttl).Err()
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.SAdd(ctx, key, args...).Err()
}

func (s *RedisStore) SRem(ctx context.Context, key string, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.SRem(ctx, key, args...).Result()
}

func (s *RedisStore) SPop(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.SPop(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.client.SMembers(ctx, key).Result()
}

func (s *RedisStore) SScanMatch(ctx context.Context, key, pattern string, count int64) ([]string, error) {
	var (
		cursor  uint64
		matched []string
	)
	for {
		keys, next, err := s.client.SScan(ctx, key, cursor, pattern, count).Result()
		if err != nil {
			return nil, err
		}
		matched = append(matched, keys...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return matched, nil
}

func (s *RedisStore) zAdd(ctx context.Context, key, member string, score float64, nx, xx bool) (bool, error) {
	res, err := s.client.ZAddArgs(ctx, key, redis.ZAddArgs{
		NX:      nx,
		XX:      xx,
		Ch:      true,
		Members: []redis.Z{{Score: score, Member: member}},
	}).Result()
	if err != nil {
		return false, err
	}
	return res > 0, nil
}

func (s *RedisStore) ZAddXX(ctx context.Context, key string, member string, score float64) (bool, error) {
	return s.zAdd(ctx, key, member, score, false, true)
}

func (s *RedisStore) ZAddNX(ctx context.Context, key string, member string, score float64) (bool, error) {
	return s.zAdd(ctx, key, member, score, true, false)
}

func (s *RedisStore) ZRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.ZRem(ctx, key, args...).Err()
}

func (s *RedisStore) ZRange(ctx context.Context, key string) ([]string, error) {
	return s.client.ZRange(ctx, key, 0, -1).Result()
}

func (s *RedisStore) ZRangeByScoreWithScores(ctx context.Context, key string, limit int64) ([]ScoredMember, error) {
	res, err := s.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "+inf",
		Count: limit,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ScoredMember, 0, len(res))
	for _, z := range res {
		member, _ := z.Member.(string)
		out = append(out, ScoredMember{Member: member, Score: z.Score})
	}
	return out, nil
}

func (s *RedisStore) HSet(ctx context.Context, key, field, value string) error {
	return s.client.HSet(ctx, key, field, value).Err()
}

func (s *RedisStore) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := s.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) HDel(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}
	return s.client.HDel(ctx, key, fields...).Err()
}

func (s *RedisStore) Publish(ctx context.Context, channel string, payload []byte) error {
	return s.client.Publish(ctx, channel, payload).Err()
}

func (s *RedisStore) Subscribe(ctx context.Context, channel string, ready chan<- struct{}, handler func([]byte)) error {
	pubsub := s.client.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		ready <- struct{}{}
	}

	ch := pubsub.Channel()
	for msg := range ch {
		handler([]byte(msg.Payload))
	}
	return nil
}

func (s *RedisStore) NewLock(name string, holdTimeout, waitTimeout time.Duration) Lock {
	return newRedisLock(s.client, name, holdTimeout, waitTimeout)
}
