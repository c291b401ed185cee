// Package userprofile implements C6: a TTL'd context keyed by caller
// identity (today just phone numbers), used to recall a caller's
// latest-known context across pools.
package userprofile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/totalhack/zar-numberpool/kvstore"
	"github.com/totalhack/zar-numberpool/parser"
)

// IDType identifies the kind of id a user context is keyed by.
type IDType string

// IDTypePhone is the only id type the engine currently populates;
// IGNORED_USER_CONTEXT_CALLER_IDS filtering only applies to it.
const IDTypePhone IDType = "phone"

// Store is a TTL'd Context store that silently no-ops reads/writes/
// removals for a configured set of ignored phone caller ids (e.g.
// "anonymous" and carrier-injected placeholder numbers).
type Store struct {
	store   kvstore.Store
	parser  parser.Parser
	ttl     time.Duration
	ignored map[string]bool
}

// NewStore builds a Store with the given expiration (spec.md's
// NUMBER_POOL_USER_CONTEXT_EXPIRATION, default 14 days) and ignored
// caller id list (compared case-insensitively with a leading "+"
// stripped, per the original's normalization).
func NewStore(store kvstore.Store, ttl time.Duration, ignoredCallerIDs []string) *Store {
	ignored := make(map[string]bool, len(ignoredCallerIDs))
	for _, id := range ignoredCallerIDs {
		ignored[normalizeCallerID(id)] = true
	}
	return &Store{store: store, parser: &parser.JSONParser{}, ttl: ttl, ignored: ignored}
}

func normalizeCallerID(userID string) string {
	return strings.TrimPrefix(strings.ToLower(userID), "+")
}

func (s *Store) ignoredCallerID(idType IDType, userID string) bool {
	return idType == IDTypePhone && s.ignored[normalizeCallerID(userID)]
}

func userKey(idType IDType, userID string) string {
	return fmt.Sprintf("%s:%s", idType, userID)
}

// Get returns a user's cached context, or (nil, false, nil) if absent
// or the caller id is ignored.
func (s *Store) Get(ctx context.Context, idType IDType, userID string) (map[string]any, bool, error) {
	if s.ignoredCallerID(idType, userID) {
		return nil, false, nil
	}
	raw, ok, err := s.store.Get(ctx, userKey(idType, userID))
	if err != nil || !ok {
		return nil, ok, err
	}
	var v map[string]any
	if err := s.parser.Unmarshal(raw, &v); err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Set overwrites a user's cached context outright. A no-op for
// ignored caller ids.
func (s *Store) Set(ctx context.Context, idType IDType, userID string, userCtx map[string]any) error {
	if s.ignoredCallerID(idType, userID) {
		return nil
	}
	raw, err := s.parser.Marshal(userCtx)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, userKey(idType, userID), raw, s.ttl)
}

// Update merges userCtx into whatever context already exists for the
// user, incoming keys winning on conflict, and returns the merged
// result. A no-op (returning userCtx unmodified) for ignored caller
// ids.
func (s *Store) Update(ctx context.Context, idType IDType, userID string, userCtx map[string]any) (map[string]any, error) {
	if s.ignoredCallerID(idType, userID) {
		return userCtx, nil
	}
	current, ok, err := s.Get(ctx, idType, userID)
	if err != nil {
		return nil, err
	}
	merged := userCtx
	if ok {
		merged = mergeOverwrite(current, userCtx)
	}
	if err := s.Set(ctx, idType, userID, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// Remove deletes a user's cached context. A no-op for ignored caller
// ids.
func (s *Store) Remove(ctx context.Context, idType IDType, userID string) error {
	if s.ignoredCallerID(idType, userID) {
		return nil
	}
	return s.store.Del(ctx, userKey(idType, userID))
}

func mergeOverwrite(base, incoming map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(incoming))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range incoming {
		out[k] = v
	}
	return out
}
