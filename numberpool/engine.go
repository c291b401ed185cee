// Package numberpool implements the dynamic number-pool engine (C3):
// lease, renew, update-number, reset, init, and stats over the
// per-pool Redis structures described in SPEC_FULL.md.
package numberpool

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/totalhack/zar-numberpool/apierrors"
	"github.com/totalhack/zar-numberpool/catalog"
	"github.com/totalhack/zar-numberpool/config"
	"github.com/totalhack/zar-numberpool/kvstore"
	"github.com/totalhack/zar-numberpool/parser"
)

// Engine owns the KV connection and the process-local pool-properties
// cache; per spec.md §9 it replaces the original's module-global
// connection and cache with an explicit, test-injectable value.
type Engine struct {
	store   kvstore.Store
	catalog catalog.Reader
	cfg     *config.Settings
	log     *logrus.Entry
	parser  parser.Parser
	bus     *kvstore.PoolPropertiesBus
	now     func() time.Time

	propsMu sync.RWMutex
	props   map[int64]map[string]any
}

// NewEngine builds an Engine over an already-connected Store. Callers
// that want bounded connection retry should obtain store via
// kvstore.Connect first.
func NewEngine(store kvstore.Store, reader catalog.Reader, cfg *config.Settings) *Engine {
	return &Engine{
		store:   store,
		catalog: reader,
		cfg:     cfg,
		log:     logrus.WithField("component", "numberpool"),
		parser:  &parser.JSONParser{},
		bus:     kvstore.NewPoolPropertiesBus(store),
		now:     time.Now,
		props:   map[int64]map[string]any{},
	}
}

// RefreshConn swaps the underlying store, e.g. after a reconnect,
// mirroring the original's refresh_conn.
func (e *Engine) RefreshConn(store kvstore.Store) {
	e.store = store
	e.bus = kvstore.NewPoolPropertiesBus(store)
}

// SubscribePoolProperties runs a background listener invalidating the
// in-process properties cache when another engine instance rewrites a
// pool's properties. Blocks until ctx is cancelled.
func (e *Engine) SubscribePoolProperties(ctx context.Context, ready chan<- struct{}) error {
	return e.bus.Subscribe(ctx, ready, func(poolID int64) {
		e.propsMu.Lock()
		delete(e.props, poolID)
		e.propsMu.Unlock()
	})
}

// GetNumberContext returns the raw context stored at a number's key,
// regardless of whether it has expired, or nil if the number has never
// been leased. Used by attribution, which treats an expired-but-present
// context the same as a live one (the original's get_pool_number_context
// does no freshness filtering).
func (e *Engine) GetNumberContext(ctx context.Context, number string) (*NumberContext, error) {
	return e.getNumberContext(ctx, number)
}

func (e *Engine) getNumberContext(ctx context.Context, number string) (*NumberContext, error) {
	raw, ok, err := e.store.Get(ctx, number)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var nc NumberContext
	if err := e.parser.Unmarshal(raw, &nc); err != nil {
		return nil, err
	}
	return &nc, nil
}

func (e *Engine) setNumberContext(ctx context.Context, number string, nc *NumberContext) error {
	raw, err := e.parser.Marshal(nc)
	if err != nil {
		return err
	}
	return e.store.Set(ctx, number, raw, 0)
}

func (e *Engine) contextAge(nc *NumberContext) time.Duration {
	return e.now().Sub(time.Unix(int64(nc.RenewedAt), 0))
}

func (e *Engine) contextExpired(nc *NumberContext) bool {
	return e.contextAge(nc) >= e.cfg.PoolCacheExpiration
}

// NumberStatus reports the three-state status of a number and, if it
// has one, its current context (with_age semantics folded into the
// caller computing age from RenewedAt directly).
func (e *Engine) NumberStatus(ctx context.Context, number string) (NumberStatus, *NumberContext, error) {
	return e.numberStatus(ctx, number)
}

func (e *Engine) numberStatus(ctx context.Context, number string) (NumberStatus, *NumberContext, error) {
	nc, err := e.getNumberContext(ctx, number)
	if err != nil {
		return StatusFree, nil, err
	}
	if nc == nil {
		return StatusFree, nil, nil
	}
	if e.contextExpired(nc) {
		return StatusExpired, nc, nil
	}
	return StatusTaken, nc, nil
}

// PoolProperties returns a pool's property bag, using and populating
// the process-local write-through cache.
func (e *Engine) PoolProperties(ctx context.Context, poolID int64) (map[string]any, error) {
	e.propsMu.RLock()
	if p, ok := e.props[poolID]; ok {
		e.propsMu.RUnlock()
		return p, nil
	}
	e.propsMu.RUnlock()

	raw, ok, err := e.store.Get(ctx, poolPropertiesKey(poolID))
	if err != nil {
		return nil, err
	}
	if !ok {
		e.log.Warnf("pool properties not found for pool %d", poolID)
		return map[string]any{}, nil
	}
	var props map[string]any
	if err := e.parser.Unmarshal(raw, &props); err != nil {
		return nil, err
	}

	e.propsMu.Lock()
	e.props[poolID] = props
	e.propsMu.Unlock()
	return props, nil
}

// SetPoolProperties writes a pool's property JSON to the store first,
// then the process-local cache (write-through, per spec.md §5), and
// broadcasts the change so other engine instances invalidate theirs.
func (e *Engine) SetPoolProperties(ctx context.Context, pool catalog.Pool) error {
	propsJSON := pool.Properties
	if strings.TrimSpace(propsJSON) == "" {
		propsJSON = "{}"
	}
	props := map[string]any{}
	if err := e.parser.Unmarshal([]byte(propsJSON), &props); err != nil {
		return apierrors.Wrap(apierrors.KindConfigError, err, "invalid pool properties JSON")
	}
	raw, err := e.parser.Marshal(props)
	if err != nil {
		return err
	}
	if err := e.store.Set(ctx, poolPropertiesKey(pool.ID), raw, 0); err != nil {
		return err
	}

	e.propsMu.Lock()
	e.props[pool.ID] = props
	e.propsMu.Unlock()

	if err := e.bus.Publish(ctx, pool.ID); err != nil {
		e.log.WithError(err).Warn("failed to publish pool properties change")
	}
	return nil
}

// IsAreaCodePool reports whether a pool's "area_code" property equals
// "all" case-insensitively, marking it an area-code pool.
func (e *Engine) IsAreaCodePool(ctx context.Context, poolID int64) (bool, error) {
	props, err := e.PoolProperties(ctx, poolID)
	if err != nil {
		return false, err
	}
	ac, _ := props["area_code"].(string)
	return strings.EqualFold(ac, "all"), nil
}

func (e *Engine) fallbackAreaCode(ctx context.Context, poolID int64) (string, error) {
	props, err := e.PoolProperties(ctx, poolID)
	if err != nil {
		return "", err
	}
	fb, _ := props["fallback_area_code"].(string)
	return fb, nil
}

func (e *Engine) sessionNumber(ctx context.Context, poolID int64, reqCtx RequestContext) (string, error) {
	sid := reqCtx.SID()
	if sid == "" {
		return "", nil
	}
	number, ok, err := e.store.HGet(ctx, sidHashKey(poolID), sid)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return number, nil
}

func (e *Engine) addSessionNumber(ctx context.Context, poolID int64, sid, number string) error {
	return e.store.HSet(ctx, sidHashKey(poolID), sid, number)
}
