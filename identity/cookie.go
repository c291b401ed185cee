package identity

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/totalhack/zar-numberpool/config"
	"github.com/totalhack/zar-numberpool/crypter"
)

// Cookie name/max-age constants from spec.md §4.6.
const (
	SIDCookieName  = "_zar_sid"
	CIDCookieName  = "_zar_cid"
	PoolCookieName = "_zar_pool"

	SIDCookieMaxAge  = 7 * 24 * time.Hour
	CIDCookieMaxAge  = 2 * 365 * 24 * time.Hour
	PoolCookieMaxAge = 7 * 24 * time.Hour

	testserverHost = "testserver"
)

// cookieDomain computes the Domain attribute for a zar cookie: the
// two-label suffix of the request host, with no Domain set at all for
// the literal test host "testserver" or any host with fewer than two
// labels (bare hostnames, IPs without a registrable suffix).
func cookieDomain(host string) string {
	h := host
	if i := strings.IndexByte(h, ':'); i >= 0 {
		h = h[:i]
	}
	if h == testserverHost {
		return ""
	}
	labels := strings.Split(h, ".")
	if len(labels) < 2 {
		return ""
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

// CookieParams builds the outgoing *http.Cookie for a zar identifier or
// pool-lease cookie: a URL-encoded JSON value, SameSite=None, HttpOnly,
// Secure, Path=/, and a Domain computed from the request host per
// spec.md §6 / SPEC_FULL.md's C10 section. zar_cookie_params's original
// body sits outside the filtered source (it is imported from a module
// the distillation did not retrieve); this reproduces its documented
// fields.
func CookieParams(name string, value any, maxAge time.Duration, host string) (*http.Cookie, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     name,
		Value:    url.QueryEscape(string(raw)),
		Domain:   cookieDomain(host),
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	}, nil
}

// ParseCookieState URL-decodes and JSON-unmarshals a zar identifier
// cookie value into an IDState, returning (nil, nil) for an absent or
// empty cookie.
func ParseCookieState(raw string) (*IDState, error) {
	if raw == "" {
		return nil, nil
	}
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return nil, err
	}
	var s IDState
	if err := json.Unmarshal([]byte(decoded), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// PoolCookie is the `_zar_pool` cookie's value: whether pool leasing is
// opted into for this session, and the most recent lease response per
// pool id.
type PoolCookie struct {
	Enabled bool           `json:"enabled"`
	Numbers map[string]any `json:"numbers"`
}

// ParsePoolCookie URL-decodes and JSON-unmarshals a `_zar_pool` cookie
// value, returning (nil, nil) for an absent or empty cookie.
func ParsePoolCookie(raw string) (*PoolCookie, error) {
	if raw == "" {
		return nil, nil
	}
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return nil, err
	}
	var pc PoolCookie
	if err := json.Unmarshal([]byte(decoded), &pc); err != nil {
		return nil, err
	}
	return &pc, nil
}

// CIDCodec builds and parses the cid cookie, optionally AES-CBC
// encrypting its payload per SPEC_FULL.md's C10 hardening option: when
// config.Settings.CookieEncryptionKey is set, the cid cookie value is
// encrypted with the teacher's crypter.Aes before URL-encoding and
// decrypted on read; absent a key, the cookie is plain URL-encoded JSON
// exactly as spec.md §6 describes.
type CIDCodec struct {
	enc crypter.Crypter
}

// NewCIDCodec builds a CIDCodec from Settings. Encryption stays off
// (enc left nil) when CookieEncryptionKey is unset.
func NewCIDCodec(cfg *config.Settings) (*CIDCodec, error) {
	if cfg.CookieEncryptionKey == "" {
		return &CIDCodec{}, nil
	}
	enc, err := crypter.NewAes(cfg.CookieEncryptionKey, cfg.CookieEncryptionIV)
	if err != nil {
		return nil, err
	}
	return &CIDCodec{enc: enc}, nil
}

// Cookie builds the outgoing cid *http.Cookie, encrypting its JSON
// payload first when the codec was built with an encryption key.
func (c *CIDCodec) Cookie(state *IDState, host string) (*http.Cookie, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	payload := string(raw)
	if c.enc != nil {
		cipherText, err := c.enc.EnCrypt(raw)
		if err != nil {
			return nil, err
		}
		payload = base64.StdEncoding.EncodeToString(cipherText)
	}
	return &http.Cookie{
		Name:     CIDCookieName,
		Value:    url.QueryEscape(payload),
		Domain:   cookieDomain(host),
		Path:     "/",
		MaxAge:   int(CIDCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	}, nil
}

// Parse URL-decodes and (when the codec has an encryption key)
// decrypts a cid cookie value into an IDState, returning (nil, nil)
// for an absent or empty cookie.
func (c *CIDCodec) Parse(raw string) (*IDState, error) {
	if raw == "" {
		return nil, nil
	}
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return nil, err
	}
	payload := []byte(decoded)
	if c.enc != nil {
		cipherText, err := base64.StdEncoding.DecodeString(decoded)
		if err != nil {
			return nil, err
		}
		payload, err = c.enc.DeCrypt(cipherText)
		if err != nil {
			return nil, err
		}
	}
	var s IDState
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
