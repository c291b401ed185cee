// Package attribution implements C8: given an inbound call's from/to
// numbers, resolve which visit (if any) drove the lease of the number
// that was dialed, preferring a still-active pool lease over a cached
// route, and falling back to cached user history or a static vanity
// assignment.
package attribution

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/totalhack/zar-numberpool/apierrors"
	"github.com/totalhack/zar-numberpool/config"
	"github.com/totalhack/zar-numberpool/geo"
	"github.com/totalhack/zar-numberpool/numberpool"
	"github.com/totalhack/zar-numberpool/routecache"
	"github.com/totalhack/zar-numberpool/staticnumber"
	"github.com/totalhack/zar-numberpool/userprofile"
)

var log = logrus.WithField("component", "attribution")

// Result is the attribution outcome for one call_from/call_to pair.
type Result struct {
	// At most one of StaticContext or the pool/route fields (PoolID,
	// RequestContext, LeasedAt, RenewedAt) is populated; on the
	// user-context-only path neither is. UserContext may additionally be
	// set on any path.
	StaticContext   map[string]any            `json:"static_context,omitempty"`
	PoolID          int64                     `json:"pool_id,omitempty"`
	RequestContext  numberpool.RequestContext `json:"request_context,omitempty"`
	LeasedAt        float64                   `json:"leased_at,omitempty"`
	RenewedAt       float64                   `json:"renewed_at,omitempty"`
	UserContext     map[string]any            `json:"user_context,omitempty"`
	HasCachedRoute  bool                      `json:"has_cached_route"`
	FromRouteCache  bool                      `json:"-"`
	UserContextOnly bool                      `json:"-"`
}

// Resolver wires together the number-pool engine's live lease state with
// the route cache, user-context store and static-number store to answer
// "who called this tracking number".
type Resolver struct {
	cfg     *config.Settings
	engine  *numberpool.Engine
	routes  *routecache.Cache
	users   *userprofile.Store
	statics *staticnumber.Store
	geo     *geo.Table
}

// NewResolver builds a Resolver. geoTable may be nil, in which case
// zip-to-area-code distance enrichment is skipped entirely.
func NewResolver(cfg *config.Settings, engine *numberpool.Engine, routes *routecache.Cache, users *userprofile.Store, statics *staticnumber.Store, geoTable *geo.Table) *Resolver {
	return &Resolver{cfg: cfg, engine: engine, routes: routes, users: users, statics: statics, geo: geoTable}
}

func trimCountryCode(number string) string {
	return strings.TrimPrefix(number, "+1")
}

// Resolve implements spec.md §4.4's ten-step algorithm.
func (r *Resolver) Resolve(ctx context.Context, callFrom, callTo string) (*Result, error) {
	callFrom = trimCountryCode(callFrom)
	callTo = trimCountryCode(callTo)
	userAreaCode := ""
	if len(callFrom) >= 3 {
		userAreaCode = callFrom[:3]
	}

	poolCtx, err := r.engine.GetNumberContext(ctx, callTo)
	if err != nil {
		return nil, err
	}
	routeRaw, hasRoute, err := r.routes.Get(ctx, callFrom, callTo)
	if err != nil {
		return nil, err
	}
	userCtx, hasUser, err := r.users.Get(ctx, userprofile.IDTypePhone, callFrom)
	if err != nil {
		return nil, err
	}

	hasCachedRoute := hasRoute
	fromRouteCache := false

	if hasUser {
		r.enrichZipDistance(userCtx, r.cfg.UserContextZipKey, userAreaCode, callFrom, callTo)
	}

	if poolCtx == nil && !hasRoute {
		staticCtx, ok, err := r.statics.Get(ctx, callTo)
		if err != nil {
			return nil, err
		}
		if ok {
			res := &Result{StaticContext: staticCtx, HasCachedRoute: hasCachedRoute}
			if hasUser {
				res.UserContext = userCtx
			}
			log.Infof("%s -> %s: found static number context", callFrom, callTo)
			return res, nil
		}
	}

	var chosen *numberpool.NumberContext
	switch {
	case poolCtx == nil && hasRoute:
		chosen = routeCtxToNumberContext(routeRaw)
		fromRouteCache = true
	case poolCtx != nil && !hasRoute:
		chosen = poolCtx
	case poolCtx != nil && hasRoute:
		routeCtx := routeCtxToNumberContext(routeRaw)
		numberSID := poolCtx.RequestContext.SID()
		routeSID := routeCtx.RequestContext.SID()
		switch {
		case numberSID == routeSID:
			chosen = poolCtx
		case sameIPUserAgent(poolCtx.RequestContext, routeCtx.RequestContext):
			chosen = poolCtx
			log.Warnf("%s -> %s: different sid but same IP/user agent, using number context", callFrom, callTo)
		default:
			chosen = routeCtx
			fromRouteCache = true
			log.Warnf("%s -> %s: different sid and different IP/user agent, using route context", callFrom, callTo)
		}
	}

	if chosen == nil {
		if hasUser {
			log.Warnf("%s -> %s: only found user context", callFrom, callTo)
			return &Result{UserContext: userCtx, HasCachedRoute: hasCachedRoute, UserContextOnly: true}, nil
		}
		log.Warnf("%s -> %s: not found", callFrom, callTo)
		return nil, apierrors.Wrap(apierrors.KindNumberNotFound, apierrors.ErrNumberNotFound, "no attribution context found")
	}

	r.enrichZipDistance(chosen.RequestContext.LatestContext(), r.cfg.PoolContextZipKey, userAreaCode, callFrom, callTo)

	res := &Result{
		PoolID:         chosen.PoolID,
		RequestContext: chosen.RequestContext,
		LeasedAt:       chosen.LeasedAt,
		RenewedAt:      chosen.RenewedAt,
		HasCachedRoute: hasCachedRoute,
		FromRouteCache: fromRouteCache,
	}
	if hasUser {
		res.UserContext = userCtx
	}

	if err := r.routes.Set(ctx, callFrom, callTo, numberContextToRouteCtx(chosen)); err != nil {
		return nil, err
	}

	return res, nil
}

func (r *Resolver) enrichZipDistance(target map[string]any, zipKey, userAreaCode, callFrom, callTo string) {
	if target == nil || r.geo == nil || zipKey == "" || userAreaCode == "" {
		return
	}
	zip, _ := target[zipKey].(string)
	if zip == "" {
		return
	}
	dist, ok := r.geo.DistanceMiles(zip, userAreaCode)
	if !ok {
		log.Warnf("%s -> %s: failed to calculate zip %s to area code %s distance", callFrom, callTo, zip, userAreaCode)
		return
	}
	target["zip_to_area_code_distance"] = dist
}

func sameIPUserAgent(a, b numberpool.RequestContext) bool {
	ip1, ip2 := a.IP(), b.IP()
	ua1, ua2 := a.UserAgent(), b.UserAgent()
	if ip1 == "" || ip2 == "" || ua1 == "" || ua2 == "" {
		return false
	}
	return ip1 == ip2 && ua1 == ua2
}

func routeCtxToNumberContext(rc routecache.Context) *numberpool.NumberContext {
	nc := &numberpool.NumberContext{}
	if poolID, ok := rc["pool_id"].(float64); ok {
		nc.PoolID = int64(poolID)
	}
	if reqCtx, ok := rc["request_context"].(map[string]any); ok {
		nc.RequestContext = numberpool.RequestContext(reqCtx)
	}
	if v, ok := rc["leased_at"].(float64); ok {
		nc.LeasedAt = v
	}
	if v, ok := rc["renewed_at"].(float64); ok {
		nc.RenewedAt = v
	}
	return nc
}

func numberContextToRouteCtx(nc *numberpool.NumberContext) routecache.Context {
	return routecache.Context{
		"pool_id":         nc.PoolID,
		"request_context": map[string]any(nc.RequestContext),
		"leased_at":       nc.LeasedAt,
		"renewed_at":      nc.RenewedAt,
	}
}
