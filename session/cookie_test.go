// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testHashKey = []byte(strings.Repeat("k", MinHashKeyLen))

func testCookieRequest(t *testing.T, cookies ...*http.Cookie) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/userinfo", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func TestNewCookieCodec(t *testing.T) {
	t.Parallel()
	t.Run("short-key", func(t *testing.T) {
		assert := assert.New(t)
		_, err := NewCookieCodec([]byte("too-short"))
		assert.Truef(errors.Is(err, ErrInvalidParameter), "wanted \"%s\" but got \"%s\"", ErrInvalidParameter, err)
	})
	t.Run("defaults", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c, err := NewCookieCodec(testHashKey)
		require.NoError(err)
		assert.Equal(DefaultCookieName, c.Name())

		rec := httptest.NewRecorder()
		require.NoError(c.SetSession(rec, "s1"))
		cookies := rec.Result().Cookies()
		require.Len(cookies, 1)
		ck := cookies[0]
		assert.Equal(DefaultCookieName, ck.Name)
		assert.Equal("/", ck.Path)
		assert.True(ck.HttpOnly)
		assert.True(ck.Secure)
		assert.Equal(http.SameSiteLaxMode, ck.SameSite)
		assert.Equal(0, ck.MaxAge)
		assert.NotContains(ck.Value, "s1")
	})
	t.Run("options", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c, err := NewCookieCodec(testHashKey,
			WithCookieName("sid"),
			WithCookiePath("/app"),
			WithCookieSecure(false),
			WithCookieMaxAge(time.Hour),
		)
		require.NoError(err)
		rec := httptest.NewRecorder()
		require.NoError(c.SetSession(rec, "s1"))
		ck := rec.Result().Cookies()[0]
		assert.Equal("sid", ck.Name)
		assert.Equal("/app", ck.Path)
		assert.False(ck.Secure)
		assert.Equal(3600, ck.MaxAge)
	})
}

func TestCookieCodec_SessionID(t *testing.T) {
	t.Parallel()
	c, err := NewCookieCodec(testHashKey)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	require.NoError(t, c.SetSession(rec, "s1"))
	valid := rec.Result().Cookies()[0]

	other, err := NewCookieCodec([]byte(strings.Repeat("o", MinHashKeyLen)))
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	require.NoError(t, other.SetSession(rec, "s1"))
	foreign := rec.Result().Cookies()[0]

	tests := []struct {
		name        string
		cookies     []*http.Cookie
		want        string
		wantErrIs   []error
		wantErrNotIs error
	}{
		{
			name:    "valid",
			cookies: []*http.Cookie{valid},
			want:    "s1",
		},
		{
			name:         "missing",
			wantErrIs:    []error{ErrNoSession},
			wantErrNotIs: ErrInvalidCookie,
		},
		{
			name:      "tampered",
			cookies:   []*http.Cookie{{Name: DefaultCookieName, Value: valid.Value + "x"}},
			wantErrIs: []error{ErrNoSession, ErrInvalidCookie},
		},
		{
			name:      "raw-session-id",
			cookies:   []*http.Cookie{{Name: DefaultCookieName, Value: "s1"}},
			wantErrIs: []error{ErrNoSession, ErrInvalidCookie},
		},
		{
			name:      "signed-with-another-key",
			cookies:   []*http.Cookie{foreign},
			wantErrIs: []error{ErrNoSession, ErrInvalidCookie},
		},
		{
			name:         "other-cookie-only",
			cookies:      []*http.Cookie{{Name: "unrelated", Value: valid.Value}},
			wantErrIs:    []error{ErrNoSession},
			wantErrNotIs: ErrInvalidCookie,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := c.SessionID(testCookieRequest(t, tt.cookies...))
			if len(tt.wantErrIs) > 0 {
				require.Error(err)
				for _, want := range tt.wantErrIs {
					assert.Truef(errors.Is(err, want), "wanted \"%s\" but got \"%s\"", want, err)
				}
				if tt.wantErrNotIs != nil {
					assert.False(errors.Is(err, tt.wantErrNotIs))
				}
				assert.Empty(got)
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}
}

func TestCookieCodec_SetSession(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	c, err := NewCookieCodec(testHashKey)
	require.NoError(t, err)
	err = c.SetSession(httptest.NewRecorder(), "")
	assert.Truef(errors.Is(err, ErrInvalidParameter), "wanted \"%s\" but got \"%s\"", ErrInvalidParameter, err)
}

func TestCookieCodec_Clear(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	c, err := NewCookieCodec(testHashKey, WithCookiePath("/app"))
	require.NoError(err)
	rec := httptest.NewRecorder()
	c.Clear(rec)
	cookies := rec.Result().Cookies()
	require.Len(cookies, 1)
	ck := cookies[0]
	assert.Equal(DefaultCookieName, ck.Name)
	assert.Equal("/app", ck.Path)
	assert.Empty(ck.Value)
	assert.True(ck.MaxAge < 0)
	assert.True(ck.HttpOnly)
}

func TestCookieCodec_State(t *testing.T) {
	t.Parallel()
	c, err := NewCookieCodec(testHashKey)
	require.NoError(t, err)
	other, err := NewCookieCodec([]byte(strings.Repeat("o", MinHashKeyLen)))
	require.NoError(t, err)

	stateCookie := func(t *testing.T, codec *CookieCodec, state string) *http.Cookie {
		t.Helper()
		rec := httptest.NewRecorder()
		require.NoError(t, codec.SetState(rec, state, 10*time.Minute))
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		return cookies[0]
	}

	t.Run("set", func(t *testing.T) {
		assert := assert.New(t)
		ck := stateCookie(t, c, "st_1")
		assert.Equal(DefaultCookieName+"_state", ck.Name)
		assert.Equal(c.StateCookieName(), ck.Name)
		assert.Equal(600, ck.MaxAge)
		assert.True(ck.HttpOnly)
		assert.True(ck.Secure)
		assert.Equal(http.SameSiteLaxMode, ck.SameSite)
	})
	t.Run("invalid-parameters", func(t *testing.T) {
		assert := assert.New(t)
		err := c.SetState(httptest.NewRecorder(), "", time.Minute)
		assert.Truef(errors.Is(err, ErrInvalidParameter), "wanted \"%s\" but got \"%s\"", ErrInvalidParameter, err)
		err = c.SetState(httptest.NewRecorder(), "st_1", 0)
		assert.Truef(errors.Is(err, ErrInvalidParameter), "wanted \"%s\" but got \"%s\"", ErrInvalidParameter, err)
	})

	tests := []struct {
		name      string
		cookies   []*http.Cookie
		state     string
		wantMatch bool
		wantErr   error
	}{
		{name: "match", cookies: []*http.Cookie{stateCookie(t, c, "st_1")}, state: "st_1", wantMatch: true},
		{name: "other-state", cookies: []*http.Cookie{stateCookie(t, c, "st_1")}, state: "st_2"},
		{name: "empty-state", cookies: []*http.Cookie{stateCookie(t, c, "st_1")}, state: ""},
		{name: "no-cookie", state: "st_1", wantErr: ErrNoState},
		{name: "foreign-key", cookies: []*http.Cookie{stateCookie(t, other, "st_1")}, state: "st_1", wantErr: ErrInvalidCookie},
		{
			name:    "session-cookie-replayed",
			cookies: []*http.Cookie{{Name: c.StateCookieName(), Value: testSessionValue(t, c, "st_1")}},
			state:   "st_1",
			wantErr: ErrInvalidCookie,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			req := testCookieRequest(t, tt.cookies...)
			assert.Equal(tt.wantMatch, c.MatchState(req, tt.state))
			got, err := c.State(req)
			if tt.wantErr != nil {
				assert.Truef(errors.Is(err, tt.wantErr), "wanted \"%s\" but got \"%s\"", tt.wantErr, err)
				assert.Empty(got)
				return
			}
			assert.NoError(err)
		})
	}

	t.Run("clear", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		rec := httptest.NewRecorder()
		c.ClearState(rec)
		cookies := rec.Result().Cookies()
		require.Len(cookies, 1)
		assert.Equal(c.StateCookieName(), cookies[0].Name)
		assert.Empty(cookies[0].Value)
		assert.True(cookies[0].MaxAge < 0)
	})
}

// testSessionValue returns the value of a session cookie for id.
func testSessionValue(t *testing.T, c *CookieCodec, id string) string {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, c.SetSession(rec, id))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0].Value
}
