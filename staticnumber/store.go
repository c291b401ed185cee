// Package staticnumber implements C7: a context bag for numbers that
// are never leased through the pool engine (vanity/billboard numbers
// with a fixed, pre-assigned attribution context).
package staticnumber

import (
	"context"
	"fmt"

	"github.com/totalhack/zar-numberpool/kvstore"
	"github.com/totalhack/zar-numberpool/parser"
)

// Store is an un-expiring context map keyed by number.
type Store struct {
	store  kvstore.Store
	parser parser.Parser
}

// NewStore builds a Store over the given kvstore.Store.
func NewStore(store kvstore.Store) *Store {
	return &Store{store: store, parser: &parser.JSONParser{}}
}

func staticKey(number string) string {
	return fmt.Sprintf("static:%s", number)
}

// Get returns a static number's context.
func (s *Store) Get(ctx context.Context, number string) (map[string]any, bool, error) {
	raw, ok, err := s.store.Get(ctx, staticKey(number))
	if err != nil || !ok {
		return nil, ok, err
	}
	var v map[string]any
	if err := s.parser.Unmarshal(raw, &v); err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Set writes a static number's context. No TTL: static numbers are
// permanent assignments, not leases.
func (s *Store) Set(ctx context.Context, number string, numberCtx map[string]any) error {
	raw, err := s.parser.Marshal(numberCtx)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, staticKey(number), raw, 0)
}
