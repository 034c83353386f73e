// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/oidc-rp/oidc"
	"github.com/hashicorp/oidc-rp/session"
	"github.com/hashicorp/oidc-rp/user"
)

const testRedirectURL = "https://app.example.com/auth-callback"

type testEnv struct {
	tp         *oidc.TestProvider
	provider   *oidc.Provider
	clock      *clockwork.FakeClock
	sessions   *session.MemoryStore
	requests   *session.MemoryRequestStore
	users      *user.MemoryDirectory
	cookies    *session.CookieCodec
	registry   *prometheus.Registry
	controller *Controller
}

// testNewEnv starts a TestProvider issuing one hour id_tokens for subject
// "u1" named "alice", and a Controller using it. The provider, the verifier
// and the controller share a fake clock.
func testNewEnv(t *testing.T, opt ...Option) *testEnv {
	t.Helper()
	return testNewEnvAt(t, time.Now(), opt...)
}

// testNewEnvAt is testNewEnv with the fake clock starting at now.
func testNewEnvAt(t *testing.T, now time.Time, opt ...Option) *testEnv {
	t.Helper()
	require := require.New(t)

	e := &testEnv{
		tp:       oidc.StartTestProvider(t),
		clock:    clockwork.NewFakeClockAt(now),
		sessions: session.NewMemoryStore(),
		users:    user.NewMemoryDirectory(),
		registry: prometheus.NewRegistry(),
	}
	e.tp.SetClientCreds("demo-app", "demo-secret")
	e.tp.SetAllowedRedirectURIs([]string{testRedirectURL})
	e.tp.SetNowFunc(e.clock.Now)
	e.tp.SetIDTokenTTL(time.Hour)
	e.tp.SetSubject("u1")
	e.tp.SetCustomClaims(map[string]interface{}{"preferred_username": "alice"})

	c, err := oidc.NewConfig(e.tp.DiscoveryURL(), "demo-app", "demo-secret", testRedirectURL,
		oidc.WithProviderCA(e.tp.CACert()),
		oidc.WithScopes("profile"),
	)
	require.NoError(err)
	e.provider, err = oidc.NewProvider(c, oidc.WithNow(e.clock.Now))
	require.NoError(err)
	t.Cleanup(e.provider.Done)

	e.requests = session.NewMemoryRequestStore(session.WithClock(e.clock))
	e.cookies, err = session.NewCookieCodec([]byte(strings.Repeat("s", session.MinHashKeyLen)))
	require.NoError(err)

	opts := append([]Option{WithClock(e.clock), WithRegisterer(e.registry)}, opt...)
	e.controller, err = NewController(e.provider, e.sessions, e.requests, e.users, e.cookies, opts...)
	require.NoError(err)
	return e
}

// authenticate runs /login and follows the provider's authorization URL the
// way a browser would, returning the state and code it was redirected back
// with.
func (e *testEnv) authenticate(t *testing.T) (state, code string) {
	t.Helper()
	require := require.New(t)
	rec := httptest.NewRecorder()
	e.controller.Login(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(http.StatusFound, rec.Code)

	cfg := &oidc.Config{ProviderCA: e.tp.CACert()}
	client, err := cfg.HttpClient()
	require.NoError(err)
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	resp, err := client.Get(rec.Header().Get("Location"))
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusFound, resp.StatusCode)
	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(err)
	require.Empty(loc.Query().Get("error"))
	return loc.Query().Get("state"), loc.Query().Get("code")
}

// callback completes the attempt for state from the browser that started
// it, so the request carries the pending login cookie for state along with
// any other cookies given.
func (e *testEnv) callback(t *testing.T, state, code string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	if state != "" {
		cookies = append(cookies, e.stateCookie(t, state))
	}
	return e.callbackFrom(t, state, code, cookies...)
}

// callbackFrom completes the attempt for state with exactly the cookies
// given.
func (e *testEnv) callbackFrom(t *testing.T, state, code string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	q := url.Values{}
	if state != "" {
		q.Set("state", state)
	}
	if code != "" {
		q.Set("code", code)
	}
	req := httptest.NewRequest(http.MethodGet, "/auth-callback?"+q.Encode(), nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	e.controller.Callback(rec, req)
	return rec
}

func (e *testEnv) stateCookie(t *testing.T, state string) *http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, e.cookies.SetState(rec, state, DefaultRequestTTL))
	ck := testCookie(t, rec, e.cookies.StateCookieName())
	require.NotNil(t, ck)
	return ck
}

// login runs a complete login from a browser holding cookies and returns the
// session cookie.
func (e *testEnv) login(t *testing.T, cookies ...*http.Cookie) *http.Cookie {
	t.Helper()
	state, code := e.authenticate(t)
	rec := e.callback(t, state, code, cookies...)
	require.Equal(t, http.StatusFound, rec.Code, rec.Body.String())
	ck := testSessionCookie(t, rec, e.cookies.Name())
	require.NotNil(t, ck)
	return ck
}

func (e *testEnv) sessionID(t *testing.T, ck *http.Cookie) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(ck)
	sid, err := e.cookies.SessionID(req)
	require.NoError(t, err)
	return sid
}

func testSessionCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	return testCookie(t, rec, name)
}

// testCookie returns the last cookie named name that rec sets, cleared
// cookies included.
func testCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	var found *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			found = ck
		}
	}
	return found
}

// testCountingVerifier counts Verify calls, passing them on to next when set.
type testCountingVerifier struct {
	next  TokenVerifier
	err   error
	calls atomic.Int32
}

func (v *testCountingVerifier) Verify(ctx context.Context, raw oidc.IdToken) (*oidc.IdentityToken, error) {
	v.calls.Add(1)
	if v.err != nil {
		return nil, v.err
	}
	return v.next.Verify(ctx, raw)
}
