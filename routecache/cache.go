// Package routecache implements C5: a call-route memo keyed by the
// calling and called numbers, so a second inbound call between the
// same two parties can skip pool/attribution lookup entirely.
package routecache

import (
	"context"
	"fmt"
	"time"

	"github.com/totalhack/zar-numberpool/kvstore"
	"github.com/totalhack/zar-numberpool/parser"
)

// Context is the cached attribution result for a call_from->call_to
// pair: whatever attribution.Resolve produced last time these two
// numbers were connected.
type Context map[string]any

// Cache is a TTL'd Context store over kvstore.Store.
type Cache struct {
	store  kvstore.Store
	parser parser.Parser
	ttl    time.Duration
}

// NewCache builds a Cache with the given store and expiration
// (spec.md's NUMBER_POOL_ROUTE_CACHE_EXPIRATION, default 30 days).
func NewCache(store kvstore.Store, ttl time.Duration) *Cache {
	return &Cache{store: store, parser: &parser.JSONParser{}, ttl: ttl}
}

func routeKey(callFrom, callTo string) string {
	return fmt.Sprintf("%s->%s", callFrom, callTo)
}

// Get returns the cached route context for a call_from/call_to pair.
func (c *Cache) Get(ctx context.Context, callFrom, callTo string) (Context, bool, error) {
	raw, ok, err := c.store.Get(ctx, routeKey(callFrom, callTo))
	if err != nil || !ok {
		return nil, ok, err
	}
	var rc Context
	if err := c.parser.Unmarshal(raw, &rc); err != nil {
		return nil, false, err
	}
	return rc, true, nil
}

// Set writes the route context for a call_from/call_to pair.
func (c *Cache) Set(ctx context.Context, callFrom, callTo string, rc Context) error {
	raw, err := c.parser.Marshal(rc)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, routeKey(callFrom, callTo), raw, c.ttl)
}
