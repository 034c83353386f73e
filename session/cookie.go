// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

// MinHashKeyLen is the minimum length of the key signing session cookies.
const MinHashKeyLen = 32

const stateCookieSuffix = "_state"

// CookieCodec carries session ids in an HMAC signed cookie. The session id
// itself is opaque, the signature keeps clients from forging one.
type CookieCodec struct {
	sc       *securecookie.SecureCookie
	name     string
	path     string
	secure   bool
	maxAge   int
	sameSite http.SameSite
}

// NewCookieCodec creates a CookieCodec signing with hashKey, which must be at
// least MinHashKeyLen bytes.
//
// Supported options: WithCookieName, WithCookiePath, WithCookieSecure,
// WithCookieMaxAge
func NewCookieCodec(hashKey []byte, opt ...Option) (*CookieCodec, error) {
	const op = "session.NewCookieCodec"
	if len(hashKey) < MinHashKeyLen {
		return nil, fmt.Errorf("%s: hash key must be at least %d bytes: %w", op, MinHashKeyLen, ErrInvalidParameter)
	}
	opts := getCookieOpts(opt...)
	sc := securecookie.New(hashKey, nil)
	sc.SetSerializer(securecookie.JSONEncoder{})
	sc.MaxAge(opts.withMaxAge)
	return &CookieCodec{
		sc:       sc,
		name:     opts.withName,
		path:     opts.withPath,
		secure:   opts.withSecure,
		maxAge:   opts.withMaxAge,
		sameSite: opts.withSameSite,
	}, nil
}

// Name returns the cookie's name.
func (c *CookieCodec) Name() string { return c.name }

// SetSession writes the signed session cookie for id.
func (c *CookieCodec) SetSession(w http.ResponseWriter, id string) error {
	const op = "CookieCodec.SetSession"
	if id == "" {
		return fmt.Errorf("%s: session id is empty: %w", op, ErrInvalidParameter)
	}
	encoded, err := c.sc.Encode(c.name, id)
	if err != nil {
		return fmt.Errorf("%s: unable to encode cookie: %w", op, err)
	}
	http.SetCookie(w, c.cookie(encoded, c.maxAge))
	return nil
}

// SessionID returns the session id carried by r. A missing or tampered
// cookie returns an error wrapping ErrNoSession.
func (c *CookieCodec) SessionID(r *http.Request) (string, error) {
	const op = "CookieCodec.SessionID"
	ck, err := r.Cookie(c.name)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", fmt.Errorf("%s: %w", op, ErrNoSession)
		}
		return "", fmt.Errorf("%s: %w: %w", op, ErrNoSession, err)
	}
	var id string
	if err := c.sc.Decode(c.name, ck.Value, &id); err != nil {
		return "", fmt.Errorf("%s: %w: %w: %w", op, ErrNoSession, ErrInvalidCookie, err)
	}
	if id == "" {
		return "", fmt.Errorf("%s: %w", op, ErrNoSession)
	}
	return id, nil
}

// Clear expires the session cookie.
func (c *CookieCodec) Clear(w http.ResponseWriter) {
	ck := c.cookie("", -1)
	ck.Expires = time.Unix(0, 0)
	http.SetCookie(w, ck)
}

// StateCookieName returns the name of the cookie binding a pending login to
// the browser that started it.
func (c *CookieCodec) StateCookieName() string { return c.name + stateCookieSuffix }

// SetState writes a signed cookie holding the state of the browser's pending
// login. It expires after ttl.
func (c *CookieCodec) SetState(w http.ResponseWriter, state string, ttl time.Duration) error {
	const op = "CookieCodec.SetState"
	switch {
	case state == "":
		return fmt.Errorf("%s: state is empty: %w", op, ErrInvalidParameter)
	case ttl <= 0:
		return fmt.Errorf("%s: ttl must be positive: %w", op, ErrInvalidParameter)
	}
	name := c.StateCookieName()
	encoded, err := c.sc.Encode(name, state)
	if err != nil {
		return fmt.Errorf("%s: unable to encode cookie: %w", op, err)
	}
	ck := c.cookie(encoded, int(ttl/time.Second))
	ck.Name = name
	http.SetCookie(w, ck)
	return nil
}

// State returns the pending login state carried by r. A missing or tampered
// cookie returns an error wrapping ErrNoState.
func (c *CookieCodec) State(r *http.Request) (string, error) {
	const op = "CookieCodec.State"
	name := c.StateCookieName()
	ck, err := r.Cookie(name)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, ErrNoState, err)
	}
	var state string
	if err := c.sc.Decode(name, ck.Value, &state); err != nil {
		return "", fmt.Errorf("%s: %w: %w: %w", op, ErrNoState, ErrInvalidCookie, err)
	}
	if state == "" {
		return "", fmt.Errorf("%s: %w", op, ErrNoState)
	}
	return state, nil
}

// MatchState reports whether r carries the pending login state for state.
func (c *CookieCodec) MatchState(r *http.Request, state string) bool {
	bound, err := c.State(r)
	if err != nil || state == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(bound), []byte(state)) == 1
}

// ClearState expires the pending login cookie.
func (c *CookieCodec) ClearState(w http.ResponseWriter) {
	ck := c.cookie("", -1)
	ck.Name = c.StateCookieName()
	ck.Expires = time.Unix(0, 0)
	http.SetCookie(w, ck)
}

func (c *CookieCodec) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     c.name,
		Value:    value,
		Path:     c.path,
		MaxAge:   maxAge,
		Secure:   c.secure,
		HttpOnly: true,
		SameSite: c.sameSite,
	}
}
