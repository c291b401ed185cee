package numberpool

import (
	"context"
	"fmt"
	"strings"

	"github.com/totalhack/zar-numberpool/apierrors"
)

// LeaseInput describes a lease_number call: the pool to lease from, the
// visitor's request context, and an optional target (a pinned number or
// a set of preferred area codes for area-code pools).
type LeaseInput struct {
	PoolID          int64
	RequestContext  RequestContext
	TargetNumber    string
	TargetAreaCodes []string
	Renew           bool
}

// LeaseNumber implements the pool's core allocation algorithm: pin to
// the caller's existing session number if one exists, otherwise lease
// or renew the requested target, falling back to a fresh number (via
// the area-code selector for area-code pools, or a random pop
// otherwise) when nothing else applies.
func (e *Engine) LeaseNumber(ctx context.Context, in LeaseInput) (string, error) {
	reqCtx := in.RequestContext
	if reqCtx == nil {
		reqCtx = RequestContext{}
	}
	targetNumber := in.TargetNumber
	renew := in.Renew
	fromSID := false
	sidNumberMismatch := false
	keyMismatch := false

	areaCodePool, err := e.IsAreaCodePool(ctx, in.PoolID)
	if err != nil {
		return "", err
	}

	lock := e.store.NewLock(poolLockName(in.PoolID), e.cfg.LockHoldTimeout, e.cfg.LockWaitTimeout)
	if err := lock.Acquire(ctx); err != nil {
		return "", apierrors.Wrap(apierrors.KindPoolUnavailable, err, fmt.Sprintf("could not acquire lock for pool %d", in.PoolID))
	}
	defer lock.Release(ctx)

	sidNumber, err := e.sessionNumber(ctx, in.PoolID, reqCtx)
	if err != nil {
		return "", err
	}
	if sidNumber != "" {
		if targetNumber != "" && targetNumber != sidNumber {
			e.log.Warnf("session number %s and target number %s mismatch for pool %d, using session number", sidNumber, targetNumber, in.PoolID)
			sidNumberMismatch = true
		}
		fromSID = true
		renew = true
		targetNumber = sidNumber
	}

	var number string

	if targetNumber != "" {
		status, numCtx, err := e.numberStatus(ctx, targetNumber)
		if err != nil {
			return "", err
		}

		switch status {
		case StatusFree:
			number, err = e.leaseFreeNumber(ctx, in.PoolID, targetNumber, reqCtx)
			if err != nil {
				return "", err
			}
		case StatusExpired:
			number, err = e.leaseExpiredNumber(ctx, in.PoolID, targetNumber, reqCtx)
			if err != nil {
				return "", err
			}
		case StatusTaken:
			if renew {
				desired := numCtx.clone()
				if len(reqCtx) > 0 {
					desired.RequestContext = mergeRequestContext(numCtx.RequestContext, reqCtx)
				}
				ok, rerr := e.renewNumber(ctx, in.PoolID, targetNumber, desired, fromSID)
				switch {
				case apierrors.Is(rerr, apierrors.KindSessionKeyMismatch):
					keyMismatch = true
				case rerr != nil:
					return "", rerr
				case ok:
					number = targetNumber
				}
			}
		}
	}

	if number == "" && (!fromSID || (keyMismatch && !sidNumberMismatch)) {
		if areaCodePool {
			number, err = e.leaseAreaCodeNumber(ctx, in.PoolID, reqCtx, in.TargetAreaCodes)
		} else {
			number, err = e.leaseRandomNumber(ctx, in.PoolID, reqCtx)
		}
		if err != nil {
			return "", err
		}
	}

	if number == "" {
		if fromSID {
			return "", apierrors.Wrap(apierrors.KindSessionNumberUnavailable, apierrors.ErrSessionNumberUnavailable, fmt.Sprintf("session number unavailable for pool %d", in.PoolID))
		}
		return "", apierrors.Wrap(apierrors.KindPoolEmpty, apierrors.ErrPoolEmpty, fmt.Sprintf("no numbers available in pool %d", in.PoolID))
	}
	return number, nil
}

func (e *Engine) leaseFreeNumber(ctx context.Context, poolID int64, number string, reqCtx RequestContext) (string, error) {
	removed, err := e.store.SRem(ctx, freeKey(poolID), number)
	if err != nil {
		return "", err
	}
	if removed == 0 {
		return "", apierrors.Wrap(apierrors.KindNumberNotFound, apierrors.ErrNumberNotFound, fmt.Sprintf("number %s not found in pool %d free set", number, poolID))
	}
	if err := e.takeNumber(ctx, poolID, number, reqCtx, false); err != nil {
		return "", err
	}
	return number, nil
}

func (e *Engine) leaseExpiredNumber(ctx context.Context, poolID int64, number string, reqCtx RequestContext) (string, error) {
	if err := e.takeNumber(ctx, poolID, number, reqCtx, true); err != nil {
		return "", err
	}
	return number, nil
}

func (e *Engine) leaseRandomNumber(ctx context.Context, poolID int64, reqCtx RequestContext) (string, error) {
	number, ok, err := e.store.SPop(ctx, freeKey(poolID))
	if err != nil {
		return "", err
	}
	if !ok {
		member, found, err := e.leastRecentlyRenewed(ctx, poolID)
		if err != nil {
			return "", err
		}
		if !found {
			return "", nil
		}
		status, _, err := e.numberStatus(ctx, member)
		if err != nil {
			return "", err
		}
		if status != StatusExpired {
			return "", nil
		}
		return e.leaseExpiredNumber(ctx, poolID, member, reqCtx)
	}
	if err := e.takeNumber(ctx, poolID, number, reqCtx, false); err != nil {
		return "", err
	}
	return number, nil
}

func (e *Engine) leastRecentlyRenewed(ctx context.Context, poolID int64) (string, bool, error) {
	members, err := e.store.ZRangeByScoreWithScores(ctx, takenKey(poolID), 1)
	if err != nil {
		return "", false, err
	}
	if len(members) == 0 {
		return "", false, nil
	}
	return members[0].Member, true, nil
}

// leaseAreaCodeNumber implements the area-code pool's selection order:
// for each candidate area code, try a free number with that prefix
// first, then the oldest taken number with that prefix that has gone
// expired, bounded to a few expired-takeover attempts per code. Falls
// back once to the pool's configured fallback area code if none of the
// requested codes yielded a number.
func (e *Engine) leaseAreaCodeNumber(ctx context.Context, poolID int64, reqCtx RequestContext, areaCodes []string) (string, error) {
	const maxExpiredTriesPerAreaCode = 3

	fallback, err := e.fallbackAreaCode(ctx, poolID)
	if err != nil {
		return "", err
	}
	if fallback == "" {
		return "", apierrors.Wrap(apierrors.KindConfigError, apierrors.ErrConfigError, fmt.Sprintf("pool %d has no fallback_area_code configured", poolID))
	}
	if len(areaCodes) == 0 {
		e.log.Warnf("no area codes requested for pool %d, using fallback %s", poolID, fallback)
		areaCodes = []string{fallback}
	}

	for _, areaCode := range areaCodes {
		if !validAreaCode(areaCode) {
			return "", apierrors.Wrap(apierrors.KindConfigError, apierrors.ErrConfigError, fmt.Sprintf("invalid area code: %q", areaCode))
		}

		free, err := e.store.SScanMatch(ctx, freeKey(poolID), areaCode+"*", 10)
		if err != nil {
			return "", err
		}
		for _, candidate := range free {
			leased, err := e.leaseFreeNumber(ctx, poolID, candidate, reqCtx)
			if err != nil {
				return "", err
			}
			if leased != "" {
				return leased, nil
			}
		}

		taken, err := e.store.ZRange(ctx, takenKey(poolID))
		if err != nil {
			return "", err
		}
		tries := maxExpiredTriesPerAreaCode
		for _, number := range taken {
			if !strings.HasPrefix(number, areaCode) {
				continue
			}
			status, _, err := e.numberStatus(ctx, number)
			if err != nil {
				return "", err
			}
			if status != StatusExpired {
				break
			}
			leased, err := e.leaseExpiredNumber(ctx, poolID, number, reqCtx)
			if err != nil {
				return "", err
			}
			if leased != "" {
				return leased, nil
			}
			tries--
			if tries <= 0 {
				e.log.Warnf("gave up checking expired numbers for area code %s in pool %d", areaCode, poolID)
				break
			}
		}
	}

	if !containsString(areaCodes, fallback) {
		e.log.Warnf("no number found for area codes %v in pool %d, trying fallback %s", areaCodes, poolID, fallback)
		return e.leaseAreaCodeNumber(ctx, poolID, reqCtx, []string{fallback})
	}

	return "", nil
}

func validAreaCode(ac string) bool {
	if len(ac) != 3 {
		return false
	}
	for _, r := range ac {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (e *Engine) takeNumber(ctx context.Context, poolID int64, number string, reqCtx RequestContext, update bool) error {
	now := float64(e.now().Unix())
	nc := &NumberContext{
		PoolID:         poolID,
		RequestContext: reqCtx,
		LeasedAt:       now,
		RenewedAt:      now,
	}

	var ok bool
	var err error
	if update {
		ok, err = e.store.ZAddXX(ctx, takenKey(poolID), number, now)
	} else {
		ok, err = e.store.ZAddNX(ctx, takenKey(poolID), number, now)
	}
	if err != nil {
		return err
	}
	if !ok {
		return apierrors.Wrap(apierrors.KindInternalError, apierrors.ErrInternalError, fmt.Sprintf("failed to mark number %s taken in pool %d", number, poolID))
	}

	if err := e.setNumberContext(ctx, number, nc); err != nil {
		return err
	}
	if sid := reqCtx.SID(); sid != "" {
		if err := e.addSessionNumber(ctx, poolID, sid, number); err != nil {
			return err
		}
	}
	return nil
}

// renewNumber extends a taken number's lease. context is the desired
// post-renewal context (already merged with any incoming request
// context); fromSID marks a renewal driven by the session pin rather
// than an explicit caller-supplied target, in which case the session
// hash back-reference is left untouched since it's already correct.
func (e *Engine) renewNumber(ctx context.Context, poolID int64, number string, desired *NumberContext, fromSID bool) (bool, error) {
	curr, err := e.getNumberContext(ctx, number)
	if err != nil {
		return false, err
	}
	if curr == nil {
		return false, apierrors.Wrap(apierrors.KindInternalError, apierrors.ErrInternalError, fmt.Sprintf("trying to renew inactive number %s in pool %d", number, poolID))
	}

	nc := desired
	if nc == nil {
		nc = curr
	}

	sid := nc.RequestContext.SID()
	currSID := curr.RequestContext.SID()
	if sid != currSID {
		e.log.Warnf("session key mismatch for number %s in pool %d (%s != %s), not renewing", number, poolID, sid, currSID)
		return false, apierrors.Wrap(apierrors.KindSessionKeyMismatch, apierrors.ErrSessionKeyMismatch, "session key mismatch")
	}

	renewedAt := float64(e.now().UnixNano()) / 1e9
	if renewedAt-nc.LeasedAt > e.cfg.MaxRenewalAge.Seconds() {
		e.log.Warnf("not renewing number %s in pool %d, max renewal age exceeded", number, poolID)
		return false, apierrors.Wrap(apierrors.KindMaxRenewalExceeded, apierrors.ErrMaxRenewalExceeded, "maximum renewal age exceeded")
	}
	nc.RenewedAt = renewedAt

	ok, err := e.store.ZAddXX(ctx, takenKey(poolID), number, renewedAt)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, apierrors.Wrap(apierrors.KindInternalError, apierrors.ErrInternalError, fmt.Sprintf("failed to renew number %s in pool %d", number, poolID))
	}
	if err := e.setNumberContext(ctx, number, nc); err != nil {
		return false, err
	}
	if sid != "" && !fromSID {
		if err := e.addSessionNumber(ctx, poolID, sid, number); err != nil {
			return false, err
		}
	}
	return true, nil
}
