package numberpool

import (
	"context"
	"fmt"

	"github.com/totalhack/zar-numberpool/apierrors"
)

// UpdateNumber rewrites a taken number's request context in place,
// without touching its lease/renewal timestamps. A session-id mismatch
// between the caller and the number's current owner is not an error:
// the existing context is returned unchanged, matching the original's
// "don't let someone else's browser clobber this lease" behavior.
func (e *Engine) UpdateNumber(ctx context.Context, poolID int64, number string, reqCtx RequestContext, merge bool) (*NumberContext, error) {
	lock := e.store.NewLock(poolLockName(poolID), e.cfg.LockHoldTimeout, e.cfg.LockWaitTimeout)
	if err := lock.Acquire(ctx); err != nil {
		return nil, apierrors.Wrap(apierrors.KindPoolUnavailable, err, fmt.Sprintf("could not acquire lock for pool %d", poolID))
	}
	defer lock.Release(ctx)

	_, nc, err := e.numberStatus(ctx, number)
	if err != nil {
		return nil, err
	}
	if nc == nil {
		e.log.Warnf("number %s in pool %d has no context, can not update", number, poolID)
		return nil, nil
	}

	currSID := nc.RequestContext.SID()
	sid := reqCtx.SID()
	if sid != currSID {
		e.log.Warnf("session key mismatch for number %s in pool %d (%s != %s), not updating", number, poolID, sid, currSID)
		return nc, nil
	}

	if merge {
		nc.RequestContext = mergeRequestContext(nc.RequestContext, reqCtx)
	} else {
		nc.RequestContext = reqCtx
	}

	if err := e.setNumberContext(ctx, number, nc); err != nil {
		return nil, err
	}
	return nc, nil
}
