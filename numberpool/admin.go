package numberpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/totalhack/zar-numberpool/apierrors"
	"github.com/totalhack/zar-numberpool/catalog"
	"github.com/totalhack/zar-numberpool/channel"
)

type poolInitResult struct {
	poolID int64
	err    error
}

// InitPools seeds the Free/Taken structures for every active pool from
// the catalog (or, if poolIDs is non-empty, just those pools). A pool
// already populated is reset in preserve mode: numbers the catalog has
// removed are dropped, numbers it has added are appended, and existing
// leases on numbers that remain are left untouched. Each pool's init
// acquires only that pool's own lock, so the targeted pools are
// initialized concurrently and fanned back in through channel.OrDone,
// which also lets an admin request cancel the whole batch early without
// waiting for every in-flight pool to finish. Failing to init one pool
// (e.g. its own lock is held elsewhere) does not stop the rest;
// per-pool failures come back in the returned map.
func (e *Engine) InitPools(ctx context.Context, poolIDs []int64) (map[int64]error, error) {
	lock := e.store.NewLock(initLockName, e.cfg.InitLockTimeout, e.cfg.InitLockTimeout)
	if err := lock.Acquire(ctx); err != nil {
		e.log.Warnf("could not acquire init lock, moving on: %s", err)
		return nil, nil
	}
	defer lock.Release(ctx)

	pools, err := e.catalog.ActivePools(ctx)
	if err != nil {
		return nil, err
	}

	wanted := make(map[int64]bool, len(poolIDs))
	for _, id := range poolIDs {
		wanted[id] = true
	}

	var targets []catalog.Pool
	for _, pool := range pools {
		if len(wanted) == 0 || wanted[pool.ID] {
			targets = append(targets, pool)
		}
	}

	results := make(chan poolInitResult, len(targets))
	var wg sync.WaitGroup
	for _, pool := range targets {
		wg.Add(1)
		go func(pool catalog.Pool) {
			defer wg.Done()
			results <- poolInitResult{poolID: pool.ID, err: e.initPool(ctx, pool)}
		}(pool)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	errs := map[int64]error{}
	for r := range channel.OrDone(ctx, results) {
		if r.err != nil {
			e.log.WithError(r.err).Warnf("failed to init pool %d", r.poolID)
			errs[r.poolID] = r.err
		}
	}
	if len(errs) == 0 {
		return nil, nil
	}
	return errs, nil
}

func (e *Engine) initPool(ctx context.Context, pool catalog.Pool) error {
	if err := e.SetPoolProperties(ctx, pool); err != nil {
		return err
	}

	lock := e.store.NewLock(poolLockName(pool.ID), e.cfg.LockHoldTimeout, e.cfg.LockWaitTimeout)
	if err := lock.Acquire(ctx); err != nil {
		return apierrors.Wrap(apierrors.KindPoolUnavailable, err, fmt.Sprintf("could not acquire lock for pool %d", pool.ID))
	}
	defer lock.Release(ctx)

	numbers, err := e.catalogNumbers(ctx, pool.ID)
	if err != nil {
		return err
	}

	exists, err := e.poolExists(ctx, pool.ID)
	if err != nil {
		return err
	}
	if exists {
		return e.resetPoolNumbers(ctx, pool.ID, numbers, true)
	}
	return e.addNumbers(ctx, pool.ID, numbers)
}

func (e *Engine) catalogNumbers(ctx context.Context, poolID int64) ([]string, error) {
	poolNumbers, err := e.catalog.PoolNumbers(ctx, poolID)
	if err != nil {
		return nil, err
	}
	numbers := make([]string, len(poolNumbers))
	for i, pn := range poolNumbers {
		numbers[i] = pn.Number
	}
	return numbers, nil
}

func (e *Engine) poolExists(ctx context.Context, poolID int64) (bool, error) {
	free, err := e.store.Exists(ctx, freeKey(poolID))
	if err != nil {
		return false, err
	}
	if free {
		return true, nil
	}
	return e.store.Exists(ctx, takenKey(poolID))
}

// ResetPool rebuilds one pool's Free/Taken structures, acquiring the
// pool's own lock. If numbers is empty the catalog's current numbers
// for the pool are used.
func (e *Engine) ResetPool(ctx context.Context, poolID int64, numbers []string, preserve bool) error {
	lock := e.store.NewLock(poolLockName(poolID), e.cfg.LockHoldTimeout, e.cfg.LockWaitTimeout)
	if err := lock.Acquire(ctx); err != nil {
		return apierrors.Wrap(apierrors.KindPoolUnavailable, err, fmt.Sprintf("could not acquire lock for pool %d", poolID))
	}
	defer lock.Release(ctx)

	if len(numbers) == 0 {
		var err error
		numbers, err = e.catalogNumbers(ctx, poolID)
		if err != nil {
			return err
		}
	}
	return e.resetPoolNumbers(ctx, poolID, numbers, preserve)
}

// resetPoolNumbers assumes the pool's lock is already held. In
// preserve mode it diffs target against the pool's current numbers and
// only adds/removes the difference; otherwise every target number is
// removed and re-added, which also clears any live lease on a number
// that stays in the catalog (a full reset is meant to be destructive).
func (e *Engine) resetPoolNumbers(ctx context.Context, poolID int64, target []string, preserve bool) error {
	targetSet := make(map[string]bool, len(target))
	for _, n := range target {
		targetSet[n] = true
	}

	var removes, adds []string
	if preserve {
		current, err := e.currentNumbers(ctx, poolID)
		if err != nil {
			return err
		}
		currentSet := make(map[string]bool, len(current))
		for _, n := range current {
			currentSet[n] = true
		}
		for _, n := range current {
			if !targetSet[n] {
				removes = append(removes, n)
			}
		}
		for _, n := range target {
			if !currentSet[n] {
				adds = append(adds, n)
			}
		}
	} else {
		removes = target
		adds = target
	}

	if err := e.removeNumbers(ctx, poolID, removes); err != nil {
		return err
	}
	return e.addNumbers(ctx, poolID, adds)
}

func (e *Engine) currentNumbers(ctx context.Context, poolID int64) ([]string, error) {
	free, err := e.store.SMembers(ctx, freeKey(poolID))
	if err != nil {
		return nil, err
	}
	taken, err := e.store.ZRange(ctx, takenKey(poolID))
	if err != nil {
		return nil, err
	}
	return append(free, taken...), nil
}

// removeNumbers drops a set of numbers from a pool entirely: taken
// entry, free entry, and bare-number context. Session hash
// back-references for whichever of these numbers were actually taken
// are read and cleaned up before their contexts are deleted, so the
// sid->number hash doesn't accumulate permanently stale entries for
// numbers that are removed while still leased.
func (e *Engine) removeNumbers(ctx context.Context, poolID int64, numbers []string) error {
	if len(numbers) == 0 {
		return nil
	}

	sids := make([]string, 0, len(numbers))
	for _, number := range numbers {
		nc, err := e.getNumberContext(ctx, number)
		if err != nil {
			return err
		}
		if nc == nil {
			continue
		}
		if sid := nc.RequestContext.SID(); sid != "" {
			sids = append(sids, sid)
		}
	}

	if err := e.store.ZRem(ctx, takenKey(poolID), numbers...); err != nil {
		return err
	}
	if err := e.store.Del(ctx, numbers...); err != nil {
		return err
	}
	if _, err := e.store.SRem(ctx, freeKey(poolID), numbers...); err != nil {
		return err
	}
	if len(sids) > 0 {
		if err := e.store.HDel(ctx, sidHashKey(poolID), sids...); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) addNumbers(ctx context.Context, poolID int64, numbers []string) error {
	if len(numbers) == 0 {
		return nil
	}
	return e.store.SAdd(ctx, freeKey(poolID), numbers...)
}

// PoolStats summarizes one pool's Free/Taken counts, with each taken
// number's context attached when requested.
type PoolStats struct {
	Free     int                       `json:"free"`
	Taken    int                       `json:"taken"`
	Total    int                       `json:"total"`
	Contexts map[string]*NumberContext `json:"contexts,omitempty"`
}

// GetAllPoolStats reports Free/Taken counts for every active catalog
// pool, keyed "<pool id>/<pool name>".
func (e *Engine) GetAllPoolStats(ctx context.Context, withContexts bool) (map[string]PoolStats, error) {
	pools, err := e.catalog.ActivePools(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]PoolStats, len(pools))
	for _, pool := range pools {
		free, err := e.store.SMembers(ctx, freeKey(pool.ID))
		if err != nil {
			return nil, err
		}
		taken, err := e.store.ZRange(ctx, takenKey(pool.ID))
		if err != nil {
			return nil, err
		}

		stats := PoolStats{Free: len(free), Taken: len(taken), Total: len(free) + len(taken)}
		if withContexts {
			contexts := make(map[string]*NumberContext, len(taken))
			for _, number := range taken {
				nc, err := e.getNumberContext(ctx, number)
				if err != nil {
					return nil, err
				}
				contexts[number] = nc
			}
			stats.Contexts = contexts
		}
		out[fmt.Sprintf("%d/%s", pool.ID, pool.Name)] = stats
	}
	return out, nil
}
