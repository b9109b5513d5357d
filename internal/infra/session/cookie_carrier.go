package session

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type CookieConfig struct {
	Name   string
	Domain string
	Path   string
	Secure bool // true when served over TLS
}

// CookieCarrier binds a Store to one request/response pair. A write is visible
// to later reads within the same request.
type CookieCarrier struct {
	w   http.ResponseWriter
	r   *http.Request
	cfg CookieConfig

	written bool
	value   string
}

func NewCookieCarrier(w http.ResponseWriter, r *http.Request, cfg CookieConfig) *CookieCarrier {
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	return &CookieCarrier{w: w, r: r, cfg: cfg}
}

func (c *CookieCarrier) Read() (string, bool) {
	if c.written {
		return c.value, c.value != ""
	}
	ck, err := c.r.Cookie(c.cfg.Name)
	if err != nil || ck.Value == "" {
		return "", false
	}
	return ck.Value, true
}

func (c *CookieCarrier) Write(token string, ttl time.Duration) {
	c.written, c.value = true, token
	http.SetCookie(c.w, &http.Cookie{
		Name:     c.cfg.Name,
		Value:    token,
		Path:     c.cfg.Path,
		Domain:   c.cfg.Domain,
		MaxAge:   int(ttl.Seconds()),
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		Secure:   c.cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (c *CookieCarrier) Delete() {
	c.written, c.value = true, ""
	http.SetCookie(c.w, &http.Cookie{
		Name:     c.cfg.Name,
		Value:    "",
		Path:     c.cfg.Path,
		Domain:   c.cfg.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.cfg.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// Manager builds per-request stores sharing one codec and schema.
type Manager struct {
	codec  Codec
	schema Schema
	cookie CookieConfig
	ttl    time.Duration
	log    *zerolog.Logger
}

func NewManager(codec Codec, schema Schema, cookie CookieConfig, ttl time.Duration, logger *zerolog.Logger) *Manager {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if cookie.Name == "" {
		cookie.Name = "sess"
	}
	return &Manager{codec: codec, schema: schema, cookie: cookie, ttl: ttl, log: logger}
}

func (m *Manager) ForRequest(w http.ResponseWriter, r *http.Request) *Store {
	return NewStore(m.codec, NewCookieCarrier(w, r, m.cookie), m.schema, m.ttl, m.log)
}

// Present reports whether r carries a session cookie at all, readable or not.
func (m *Manager) Present(r *http.Request) bool {
	c, err := r.Cookie(m.cookie.Name)
	return err == nil && c.Value != ""
}
