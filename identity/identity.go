// Package identity implements C10: allocation and reconciliation of the
// three visitor identifiers (vid, sid, cid) and the pool lease cookie
// that rides alongside them, per spec.md §4.6.
package identity

import (
	"math/rand"
	"net/http"

	"github.com/google/uuid"
)

const base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"

// toBase36 mirrors the original's to_base(s, 36): digits low-to-high,
// "0" for zero.
func toBase36(n int64) string {
	if n == 0 {
		return "0"
	}
	var out []byte
	for n > 0 {
		out = append(out, base36Chars[n%36])
		n /= 36
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

// NewVID generates a visit id matching the client-side format:
// Date.now().toString(36) + "." + Math.random().toString(36) digits,
// using the provided unix-millisecond timestamp so callers can pass a
// fixed time in tests.
func NewVID(unixMillis int64) string {
	frac := rand.Int63n(1e15)
	return toBase36(unixMillis) + "." + toBase36(frac)
}

// NewSID generates a session id (UUIDv4).
func NewSID() string {
	return uuid.NewString()
}

// NewCID generates a customer/visitor id (UUIDv4).
func NewCID() string {
	return uuid.NewString()
}

// IDState is one of the three zar cookie entries: {id, isNew, visits,
// origReferrer, t, resetParamValue?}.
type IDState struct {
	ID              string `json:"id"`
	IsNew           bool   `json:"isNew"`
	Visits          int    `json:"visits"`
	OrigReferrer    string `json:"origReferrer"`
	T               int64  `json:"t"`
	ResetParamValue string `json:"resetParamValue,omitempty"`
	CookieMismatch  bool   `json:"cookie_mismatch,omitempty"`
}

// ZarCookie is the client-supplied `zar` block: per-identifier state
// for vid/sid/cid, as synthesized client-side or server-side (noscript).
type ZarCookie struct {
	VID *IDState `json:"vid,omitempty"`
	SID *IDState `json:"sid,omitempty"`
	CID *IDState `json:"cid,omitempty"`
}

// NewZarCookie synthesizes a fresh ZarCookie server-side, used by the
// noscript path where no client JS ran to create one.
func NewZarCookie(unixMillis int64) *ZarCookie {
	return &ZarCookie{
		VID: &IDState{ID: NewVID(unixMillis), IsNew: true, Visits: 1, T: unixMillis},
		SID: &IDState{ID: NewSID(), IsNew: true, Visits: 1, T: unixMillis},
		CID: &IDState{ID: NewCID(), IsNew: true, Visits: 1, T: unixMillis},
	}
}

// GetZarIDs extracts vid/sid/cid from a ZarCookie, overwriting sid/cid
// with the values from same-named cookies when those differ (a cookie
// always wins over a possibly-stale client body value) and flagging the
// overwritten entries as a cookie_mismatch.
func GetZarIDs(zar *ZarCookie, cookieSID, cookieCID string) (vid, sid, cid string) {
	if zar == nil {
		zar = &ZarCookie{}
	}
	if zar.VID != nil {
		vid = zar.VID.ID
	}
	if zar.SID != nil {
		sid = zar.SID.ID
	}
	if zar.CID != nil {
		cid = zar.CID.ID
	}

	if cookieSID != "" && cookieSID != sid {
		sid = cookieSID
		if zar.SID == nil {
			zar.SID = &IDState{}
		}
		zar.SID.ID = sid
		zar.SID.CookieMismatch = true
	}
	if cookieCID != "" && cookieCID != cid {
		cid = cookieCID
		if zar.CID == nil {
			zar.CID = &IDState{}
		}
		zar.CID.ID = cid
		zar.CID.CookieMismatch = true
	}
	return vid, sid, cid
}

// HeaderParams is the subset of an inbound request's headers the
// engine needs for request-context enrichment.
type HeaderParams struct {
	Host      string
	IP        string
	UserAgent string
	Referer   string
}

// ExtractHeaderParams reads host/ip/user-agent/referer out of an
// http.Header, preferring proxy-forwarded values the way a service
// behind a load balancer must.
func ExtractHeaderParams(headers http.Header) HeaderParams {
	get := func(keys ...string) string {
		for _, k := range keys {
			if v := headers.Get(k); v != "" {
				return v
			}
		}
		return ""
	}
	return HeaderParams{
		Host:      get("X-Forwarded-Host", "Host"),
		IP:        get("X-Forwarded-For", "X-Real-Ip", "Forwarded"),
		UserAgent: get("User-Agent"),
		Referer:   get("Referer"),
	}
}
