package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/totalhack/zar-numberpool/apierrors"
	"github.com/totalhack/zar-numberpool/areacode"
	"github.com/totalhack/zar-numberpool/identity"
	"github.com/totalhack/zar-numberpool/numberpool"
	"github.com/totalhack/zar-numberpool/userprofile"
)

type pageProperties struct {
	URL         string              `json:"url"`
	Referrer    string              `json:"referrer,omitempty"`
	Zar         *identity.ZarCookie `json:"zar,omitempty"`
	PoolID      int64               `json:"pool_id,omitempty"`
	PoolContext map[string]any      `json:"pool_context,omitempty"`
	PoolMaxAge  int64               `json:"pool_max_age,omitempty"`
	IsBot       bool                `json:"is_bot,omitempty"`
}

type pageRequest struct {
	Type       string         `json:"type"`
	Properties pageProperties `json:"properties"`
	UserID     string         `json:"userId,omitempty"`
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func (s *server) setIdentityCookies(w http.ResponseWriter, host string, res *identity.ReconcileResult) {
	if c, err := identity.CookieParams(identity.SIDCookieName, res.SID, identity.SIDCookieMaxAge, host); err == nil {
		http.SetCookie(w, c)
	}
	if c, err := s.cidCodec.Cookie(res.CID, host); err == nil {
		http.SetCookie(w, c)
	}
}

func (s *server) buildRequestContext(r *http.Request, sid string, extra map[string]any) numberpool.RequestContext {
	hp := identity.ExtractHeaderParams(r.Header)
	rc := numberpool.RequestContext{
		"sid":        sid,
		"ip":         hp.IP,
		"user_agent": hp.UserAgent,
		"host":       hp.Host,
		"referer":    hp.Referer,
	}
	for k, v := range extra {
		rc[k] = v
	}
	return rc
}

func (s *server) handlePage(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": true})
		return
	}

	now := time.Now().UnixMilli()
	sidState, _ := identity.ParseCookieState(cookieValue(r, identity.SIDCookieName))
	cidState, _ := s.cidCodec.Parse(cookieValue(r, identity.CIDCookieName))
	sessionResetParam := r.URL.Query().Get(s.cfg.SessionSourceParam)

	res := identity.Reconcile(req.Properties.Zar, sidState, cidState, sessionResetParam, now)
	s.setIdentityCookies(w, r.Host, res)

	resp := map[string]any{
		"vid": res.VID.ID,
		"sid": res.SID.ID,
		"cid": res.CID.ID,
		"id":  res.CID.ID,
	}

	poolCookie, _ := identity.ParsePoolCookie(cookieValue(r, identity.PoolCookieName))
	poolEnabled := poolCookie != nil && poolCookie.Enabled
	if r.URL.Query().Get("pl") == "1" {
		poolEnabled = true
	}

	if req.Properties.PoolID != 0 && poolEnabled {
		targetAreaCodes, err := areacode.Resolve(s.cfg, s.areaCodes, areacode.Criteria{URL: req.Properties.URL})
		if err != nil {
			log.WithError(err).Warn("area code resolution failed, leasing without area-code targeting")
		}
		rc := s.buildRequestContext(r, res.SID.ID, req.Properties.PoolContext)
		number, err := s.engine.LeaseNumber(r.Context(), numberpool.LeaseInput{
			PoolID:          req.Properties.PoolID,
			RequestContext:  rc,
			TargetAreaCodes: targetAreaCodes,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		newPoolCookie := &identity.PoolCookie{
			Enabled: true,
			Numbers: map[string]any{
				"number": number,
			},
		}
		if c, err := identity.CookieParams(identity.PoolCookieName, newPoolCookie, identity.PoolCookieMaxAge, r.Host); err == nil {
			http.SetCookie(w, c)
		}
		resp["pool_data"] = map[string]any{"pool_id": req.Properties.PoolID, "number": number}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleTrack(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": true})
		return
	}

	sidState, _ := identity.ParseCookieState(cookieValue(r, identity.SIDCookieName))
	cidState, _ := s.cidCodec.Parse(cookieValue(r, identity.CIDCookieName))
	vid, sid, cid := identity.GetZarIDs(req.Properties.Zar, "", "")
	if sidState != nil && sid == "" {
		sid = sidState.ID
	}
	if cidState != nil && cid == "" {
		cid = cidState.ID
	}

	if r.Header.Get("Content-Type") == "text/plain" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": cid, "vid": vid, "sid": sid})
}

func (s *server) handleNoscript(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UnixMilli()
	sidState, _ := identity.ParseCookieState(cookieValue(r, identity.SIDCookieName))
	cidState, _ := s.cidCodec.Parse(cookieValue(r, identity.CIDCookieName))

	body := identity.NewZarCookie(now)
	res := identity.Reconcile(body, sidState, cidState, "", now)
	s.setIdentityCookies(w, r.Host, res)

	writeJSON(w, http.StatusOK, map[string]any{"vid": res.VID.ID, "sid": res.SID.ID, "cid": res.CID.ID})
}

type numberPoolRequest struct {
	PoolID     int64          `json:"pool_id"`
	Number     string         `json:"number,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

func (s *server) handleNumberPool(w http.ResponseWriter, r *http.Request) {
	var req numberPoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": true})
		return
	}

	sidState, _ := identity.ParseCookieState(cookieValue(r, identity.SIDCookieName))
	if sidState == nil || sidState.ID == "" {
		writeError(w, apierrors.Wrap(apierrors.KindNoSID, apierrors.ErrNoSID, "number_pool requires a session id"))
		return
	}

	if req.Number != "" {
		poolCookie, _ := identity.ParsePoolCookie(cookieValue(r, identity.PoolCookieName))
		if poolCookie == nil {
			writeError(w, apierrors.Wrap(apierrors.KindPoolCookieExpired, apierrors.ErrPoolCookieExpired, "pool cookie missing"))
			return
		}
	}

	targetAreaCodes, err := areacode.Resolve(s.cfg, s.areaCodes, areacode.Criteria{URL: requestURL(req.Properties, req.Context)})
	if err != nil {
		log.WithError(err).Warn("area code resolution failed, leasing without area-code targeting")
	}

	rc := s.buildRequestContext(r, sidState.ID, req.Context)
	number, err := s.engine.LeaseNumber(r.Context(), numberpool.LeaseInput{
		PoolID:          req.PoolID,
		RequestContext:  rc,
		TargetNumber:    req.Number,
		TargetAreaCodes: targetAreaCodes,
		Renew:           req.Number != "",
	})
	if err != nil {
		writeError(w, err)
		return
	}

	newPoolCookie := &identity.PoolCookie{Enabled: true, Numbers: map[string]any{"number": number}}
	if c, err := identity.CookieParams(identity.PoolCookieName, newPoolCookie, identity.PoolCookieMaxAge, r.Host); err == nil {
		http.SetCookie(w, c)
	}

	writeJSON(w, http.StatusOK, map[string]any{"number": number, "pool_id": req.PoolID})
}

func (s *server) handleUpdateNumber(w http.ResponseWriter, r *http.Request) {
	var req numberPoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": true})
		return
	}

	sidState, _ := identity.ParseCookieState(cookieValue(r, identity.SIDCookieName))
	sid := ""
	if sidState != nil {
		sid = sidState.ID
	}

	rc := s.buildRequestContext(r, sid, req.Context)
	updated, err := s.engine.UpdateNumber(r.Context(), req.PoolID, req.Number, rc, true)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"number": req.Number, "context": updated.RequestContext})
}

type trackCallRequest struct {
	Key      string `json:"key"`
	CallID   string `json:"call_id"`
	CallFrom string `json:"call_from"`
	CallTo   string `json:"call_to"`
}

func (s *server) handleTrackCall(w http.ResponseWriter, r *http.Request) {
	var req trackCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": true})
		return
	}

	result, err := s.attr.Resolve(r.Context(), req.CallFrom, req.CallTo)
	if err != nil {
		writeError(w, err)
		return
	}

	log.WithFields(map[string]any{
		"call_id":   req.CallID,
		"call_from": req.CallFrom,
		"call_to":   req.CallTo,
		"pool_id":   result.PoolID,
	}).Info("call attributed")

	writeJSON(w, http.StatusOK, result)
}

// requestURL pulls the visitor's most recently loaded page URL out of a
// number_pool request body: /number_pool has no dedicated url field, so
// callers pass it through properties or context the way the original's
// latest_context did.
func requestURL(properties, context map[string]any) string {
	if u, ok := properties["url"].(string); ok && u != "" {
		return u
	}
	if u, ok := context["url"].(string); ok && u != "" {
		return u
	}
	return ""
}

type userContextRequest struct {
	IDType  userprofile.IDType `json:"id_type"`
	UserID  string             `json:"user_id"`
	Context map[string]any     `json:"context,omitempty"`
}

func (s *server) handleGetUserContext(w http.ResponseWriter, r *http.Request) {
	var req userContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": true})
		return
	}
	userCtx, ok, err := s.users.Get(r.Context(), req.IDType, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"context": userCtx, "found": ok})
}

func (s *server) handleUpdateUserContext(w http.ResponseWriter, r *http.Request) {
	var req userContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": true})
		return
	}
	merged, err := s.users.Update(r.Context(), req.IDType, req.UserID, req.Context)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"context": merged})
}

func (s *server) handleRemoveUserContext(w http.ResponseWriter, r *http.Request) {
	var req userContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": true})
		return
	}
	if err := s.users.Remove(r.Context(), req.IDType, req.UserID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": true})
}

type staticNumberContextRequest struct {
	Number  string         `json:"number"`
	Context map[string]any `json:"context,omitempty"`
}

func (s *server) handleGetStaticNumberContext(w http.ResponseWriter, r *http.Request) {
	var req staticNumberContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": true})
		return
	}
	numberCtx, ok, err := s.statics.Get(r.Context(), req.Number)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"context": numberCtx, "found": ok})
}

func (s *server) handleSetStaticNumberContexts(w http.ResponseWriter, r *http.Request) {
	var req []staticNumberContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": true})
		return
	}
	for _, entry := range req {
		if err := s.statics.Set(r.Context(), entry.Number, entry.Context); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"set": len(req)})
}

func (s *server) handleOK(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
