package kvstore

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/totalhack/zar-numberpool/apierrors"
	bo "github.com/totalhack/zar-numberpool/backoff"
)

// Connect dials Redis with a bounded constant-interval retry, grounded
// on the original's get_number_pool_conn (5 tries, 1 second pause).
// Once tries are exhausted it returns the last dial error wrapped with
// kind apierrors.KindPoolUnavailable.
func Connect(ctx context.Context, opts Options, tries uint, pause time.Duration) (*RedisStore, error) {
	log := logrus.WithField("component", "kvstore")
	var store *RedisStore

	w := bo.NewConstant(ctx, pause, tries)
	w.SetDoOperation(func() (any, error) {
		s, err := NewRedisStore(ctx, opts)
		if err != nil {
			log.WithError(err).Warn("retrying number pool store connection")
			return nil, err
		}
		store = s
		return nil, nil
	})

	if err := w.Exec(); err != nil {
		log.WithError(err).Error("could not connect to number pool store")
		return nil, apierrors.Wrap(apierrors.KindPoolUnavailable, err, "could not connect to number pool store")
	}
	return store, nil
}
