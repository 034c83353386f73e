// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/oidc-rp/auth"
	"github.com/hashicorp/oidc-rp/oidc"
	"github.com/hashicorp/oidc-rp/policy"
	"github.com/hashicorp/oidc-rp/session"
	"github.com/hashicorp/oidc-rp/user"
)

const testRedirectURL = "https://app.example.com/auth-callback"

type testEnv struct {
	tp       *oidc.TestProvider
	registry *prometheus.Registry
	server   *Server
}

func testNewEnv(t *testing.T, opt ...Option) *testEnv {
	t.Helper()
	require := require.New(t)

	e := &testEnv{
		tp:       oidc.StartTestProvider(t),
		registry: prometheus.NewRegistry(),
	}
	e.tp.SetClientCreds("demo-app", "demo-secret")
	e.tp.SetAllowedRedirectURIs([]string{testRedirectURL})
	e.tp.SetSubject("u1")
	e.tp.SetCustomClaims(map[string]interface{}{"preferred_username": "alice"})

	c, err := oidc.NewConfig(e.tp.DiscoveryURL(), "demo-app", "demo-secret", testRedirectURL,
		oidc.WithProviderCA(e.tp.CACert()),
		oidc.WithScopes("profile"),
	)
	require.NoError(err)
	p, err := oidc.NewProvider(c, oidc.WithRegisterer(e.registry))
	require.NoError(err)
	t.Cleanup(p.Done)

	cookies, err := session.NewCookieCodec([]byte(strings.Repeat("s", session.MinHashKeyLen)))
	require.NoError(err)
	controller, err := auth.NewController(p,
		session.NewMemoryStore(),
		session.NewMemoryRequestStore(),
		user.NewMemoryDirectory(),
		cookies,
		auth.WithRegisterer(e.registry),
	)
	require.NoError(err)

	opts := append([]Option{WithGatherer(e.registry)}, opt...)
	e.server, err = New("127.0.0.1:0", controller, opts...)
	require.NoError(err)
	return e
}

func (e *testEnv) do(t *testing.T, method, target string, body io.Reader, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

// login runs /login, follows the provider's authorization URL and completes
// /auth-callback, returning the session cookie.
func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()
	require := require.New(t)

	rec := e.do(t, http.MethodGet, "/login", nil)
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

	q := url.Values{"state": {loc.Query().Get("state")}, "code": {loc.Query().Get("code")}}
	rec = e.do(t, http.MethodGet, "/auth-callback?"+q.Encode(), nil, rec.Result().Cookies()...)
	require.Equal(http.StatusFound, rec.Code, rec.Body.String())
	require.Equal("/", rec.Header().Get("Location"))
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == session.DefaultCookieName {
			return ck
		}
	}
	require.FailNow("no session cookie set")
	return nil
}

func TestNew(t *testing.T) {
	t.Parallel()
	e := testNewEnv(t)
	tests := []struct {
		name       string
		addr       string
		controller *auth.Controller
		wantErr    error
	}{
		{name: "valid", addr: ":8080", controller: e.server.controller},
		{name: "empty-addr", controller: e.server.controller, wantErr: ErrInvalidParameter},
		{name: "nil-controller", addr: ":8080", wantErr: ErrNilParameter},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := New(tt.addr, tt.controller)
			if tt.wantErr != nil {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantErr), "wanted \"%s\" but got \"%s\"", tt.wantErr, err)
				return
			}
			require.NoError(err)
			assert.Equal(DefaultShutdownTimeout, got.shutdownTimeout)
			assert.NotNil(got.Handler())
		})
	}
}

func TestServer_SessionRoutes(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	e := testNewEnv(t)

	rec := e.do(t, http.MethodGet, "/userinfo", nil)
	assert.Equal(http.StatusUnauthorized, rec.Code)
	assert.JSONEq(`{"detail":"You are not authenticated."}`, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/logout", nil)
	assert.Equal(http.StatusUnauthorized, rec.Code)

	ck := e.login(t)

	rec = e.do(t, http.MethodGet, "/userinfo", nil, ck)
	require.Equal(http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal("application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(`{"userinfo":{"id":"u1","name":"alice"}}`, rec.Body.String())

	rec = e.do(t, http.MethodGet, "/logout", nil, ck)
	require.Equal(http.StatusFound, rec.Code)
	assert.Equal("/", rec.Header().Get("Location"))

	rec = e.do(t, http.MethodGet, "/userinfo", nil, ck)
	assert.Equal(http.StatusUnauthorized, rec.Code)
}

func TestServer_ExternalAuth(t *testing.T) {
	t.Parallel()
	denyList := policy.NewDenyList("mallory")
	tests := []struct {
		name       string
		checker    policy.Checker
		body       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "allowed",
			checker:    denyList,
			body:       `{"groups":["staff"],"roles":["user"],"attributes":{"username":"bob"}}`,
			wantStatus: http.StatusOK,
			wantBody:   `{}`,
		},
		{
			name:       "denied",
			checker:    denyList,
			body:       `{"attributes":{"username":"Mallory"}}`,
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"detail":"denied"}`,
		},
		{
			name:       "malformed",
			checker:    denyList,
			body:       `{"attributes":`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"detail":"malformed request body"}`,
		},
		{
			name:       "wrong-shape",
			checker:    denyList,
			body:       `{"groups":"staff"}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"detail":"malformed request body"}`,
		},
		{
			name:       "no-checker",
			body:       `{"attributes":{"username":"mallory"}}`,
			wantStatus: http.StatusOK,
			wantBody:   `{}`,
		},
		{
			name: "unavailable",
			checker: policy.CheckerFunc(func(context.Context, policy.Input) error {
				return fmt.Errorf("test: %w", policy.ErrUnavailable)
			}),
			body:       `{}`,
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"detail":"policy unavailable"}`,
		},
		{
			name: "failed",
			checker: policy.CheckerFunc(func(context.Context, policy.Input) error {
				return fmt.Errorf("test: %w", policy.ErrUnexpectedStatus)
			}),
			body:       `{}`,
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"detail":"internal error"}`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			e := testNewEnv(t, WithExternalAuthChecker(tt.checker))
			rec := e.do(t, http.MethodPost, "/external-auth", strings.NewReader(tt.body))
			assert.Equal(tt.wantStatus, rec.Code)
			assert.JSONEq(tt.wantBody, rec.Body.String())
		})
	}
	t.Run("method", func(t *testing.T) {
		t.Parallel()
		e := testNewEnv(t)
		rec := e.do(t, http.MethodGet, "/external-auth", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()
	t.Run("no-checks", func(t *testing.T) {
		t.Parallel()
		e := testNewEnv(t)
		rec := e.do(t, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})
	t.Run("checks", func(t *testing.T) {
		t.Parallel()
		e := testNewEnv(t,
			WithHealthCheck("sessions", func(context.Context) error { return nil }),
			WithHealthCheck("users", func(context.Context) error { return errors.New("connection refused") }),
		)
		rec := e.do(t, http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.JSONEq(t, `{"status":"unavailable","checks":{"sessions":"ok","users":"unavailable"}}`, rec.Body.String())
	})
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	e := testNewEnv(t)

	_ = e.do(t, http.MethodGet, "/userinfo", nil)
	_ = e.do(t, http.MethodGet, "/userinfo", nil)

	rec := e.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), `oidc_rp_guard_total{result="unauthenticated"} 2`)
}

type testCloser struct {
	closed atomic.Bool
	err    error
}

func (c *testCloser) Close() error {
	c.closed.Store(true)
	return c.err
}

func TestServer_Serve(t *testing.T) {
	t.Parallel()
	t.Run("graceful", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		closer := &testCloser{}
		e := testNewEnv(t, WithCloser(closer), WithShutdownTimeout(time.Second))

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(err)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- e.server.Serve(ctx, ln) }()

		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		require.NoError(err)
		resp.Body.Close()
		assert.Equal(http.StatusOK, resp.StatusCode)

		cancel()
		select {
		case err := <-done:
			assert.NoError(err)
		case <-time.After(5 * time.Second):
			require.FailNow("server did not shut down")
		}
		assert.True(closer.closed.Load())
	})
	t.Run("closer-errors", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		first := &testCloser{err: errors.New("first failed")}
		second := &testCloser{err: errors.New("second failed")}
		e := testNewEnv(t, WithCloser(first, second))

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(err)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err = e.server.Serve(ctx, ln)
		require.Error(err)
		assert.Contains(err.Error(), "first failed")
		assert.Contains(err.Error(), "second failed")
		assert.True(first.closed.Load())
		assert.True(second.closed.Load())
	})
}
