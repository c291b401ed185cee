package numberpool

// RequestContext is the arbitrary JSON payload attached to a lease or
// renewal: at minimum `sid`, typically `ip`, `user_agent`, `referer`,
// `host`, `sid_original_referer`, `latest_context`, and `visits`.
type RequestContext map[string]any

func (c RequestContext) str(key string) string {
	if c == nil {
		return ""
	}
	v, _ := c[key].(string)
	return v
}

func (c RequestContext) nested(key string) map[string]any {
	if c == nil {
		return nil
	}
	v, _ := c[key].(map[string]any)
	return v
}

// SID is the session id this context belongs to, or "" if absent.
func (c RequestContext) SID() string { return c.str("sid") }

// IP is the request's source address, or "" if absent.
func (c RequestContext) IP() string { return c.str("ip") }

// UserAgent is the request's user agent, or "" if absent.
func (c RequestContext) UserAgent() string { return c.str("user_agent") }

// Visits is the per-visit payload map (vid -> payload), or nil.
func (c RequestContext) Visits() map[string]any { return c.nested("visits") }

// LatestContext is the most recent visit's arbitrary payload, or nil.
func (c RequestContext) LatestContext() map[string]any { return c.nested("latest_context") }

// clone returns a shallow copy so callers never mutate a context fetched
// from the store in place.
func (c RequestContext) clone() RequestContext {
	out := make(RequestContext, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// mergeRequestContext overwrites base with incoming key-by-key, except
// "visits" and "latest_context", which are dict-merged one level deep
// with incoming winning per-key conflicts.
func mergeRequestContext(base, incoming RequestContext) RequestContext {
	merged := base.clone()
	for k, v := range incoming {
		if k == "visits" || k == "latest_context" {
			merged[k] = mergeNested(merged.nested(k), asNestedMap(v))
			continue
		}
		merged[k] = v
	}
	return merged
}

func asNestedMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func mergeNested(base, incoming map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(incoming))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range incoming {
		out[k] = v
	}
	return out
}

// NumberContext is the value stored at the bare number key: the pool
// owning it, the visitor's request context, and the lease/renewal
// timestamps (unix seconds) that drive expiration.
type NumberContext struct {
	PoolID         int64          `json:"pool_id"`
	RequestContext RequestContext `json:"request_context"`
	LeasedAt       float64        `json:"leased_at"`
	RenewedAt      float64        `json:"renewed_at"`
}

func (c *NumberContext) clone() *NumberContext {
	if c == nil {
		return nil
	}
	cp := *c
	cp.RequestContext = c.RequestContext.clone()
	return &cp
}
