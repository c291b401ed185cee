package kvstore

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// poolPropertiesChannel is the single pub/sub channel C3 uses to tell
// every engine instance sharing a Redis that a pool's properties were
// rewritten, so each instance's in-process properties cache can be
// invalidated instead of going stale until its own next write.
const poolPropertiesChannel = "zar:pool-properties-changed"

// PoolPropertiesEvent is published whenever init/reset writes a pool's
// properties row to the store.
type PoolPropertiesEvent struct {
	PoolID int64 `json:"pool_id"`
}

// PoolPropertiesBus publishes and subscribes to pool-properties
// invalidation events, grounded on the teacher's PubSubService.
type PoolPropertiesBus struct {
	store Store
	log   *logrus.Entry
}

func NewPoolPropertiesBus(store Store) *PoolPropertiesBus {
	return &PoolPropertiesBus{store: store, log: logrus.WithField("component", "kvstore.pubsub")}
}

func (b *PoolPropertiesBus) Publish(ctx context.Context, poolID int64) error {
	payload, err := json.Marshal(PoolPropertiesEvent{PoolID: poolID})
	if err != nil {
		return err
	}
	return b.store.Publish(ctx, poolPropertiesChannel, payload)
}

// Subscribe blocks, invoking onChange for every event received, until
// ctx is cancelled or the subscription errors. ready is signaled once
// the subscription is confirmed, mirroring the teacher's readyChan
// handshake so callers can synchronize startup in tests.
func (b *PoolPropertiesBus) Subscribe(ctx context.Context, ready chan<- struct{}, onChange func(poolID int64)) error {
	return b.store.Subscribe(ctx, poolPropertiesChannel, ready, func(payload []byte) {
		var evt PoolPropertiesEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			b.log.WithError(err).Warn("dropping malformed pool properties event")
			return
		}
		onChange(evt.PoolID)
	})
}
