// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/oidc-rp/oidc"
)

const testRedirect = "https://app.example.com/auth-callback"

func TestAuthCode(t *testing.T) {
	t.Parallel()
	clientID := "test-client-id"
	clientSecret := "test-client-secret"
	tp := oidc.StartTestProvider(t)
	p := testNewProvider(t, clientID, clientSecret, testRedirect, tp)
	rw := &SingleRequestReader{}

	tests := []struct {
		name      string
		p         *oidc.Provider
		rw        RequestReader
		sFn       SuccessResponseFunc
		eFn       ErrorResponseFunc
		wantErr   bool
		wantIsErr error
	}{
		{"valid", p, rw, testSuccessFn, testFailFn, false, nil},
		{"nil-p", nil, rw, testSuccessFn, testFailFn, true, oidc.ErrInvalidParameter},
		{"nil-rw", p, nil, testSuccessFn, testFailFn, true, oidc.ErrInvalidParameter},
		{"nil-sFn", p, rw, nil, testFailFn, true, oidc.ErrInvalidParameter},
		{"nil-eFn", p, rw, testSuccessFn, nil, true, oidc.ErrInvalidParameter},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := AuthCode(tt.p, tt.rw, tt.sFn, tt.eFn)
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			assert.NotNil(got)
		})
	}
}

type testNilRequestReader struct{}

func (*testNilRequestReader) Read(context.Context, string) (*oidc.Request, error) {
	return nil, nil
}

type testFailingRequestReader struct{}

func (*testFailingRequestReader) Read(context.Context, string) (*oidc.Request, error) {
	return nil, errors.New("store is down")
}

func Test_AuthCodeResponses(t *testing.T) {
	t.Parallel()
	clientID := "test-client-id"
	clientSecret := "test-client-secret"

	tests := []struct {
		name                string
		exp                 time.Duration
		query               func(state, code string) url.Values
		readerOverride      RequestReader
		setup               func(tp *oidc.TestProvider)
		wantStatusCode      int
		wantRespError       string
		wantRespDescription string
	}{
		{
			name:           "basic",
			exp:            time.Minute,
			wantStatusCode: http.StatusOK,
		},
		{
			name: "provider-error",
			exp:  time.Minute,
			query: func(state, _ string) url.Values {
				return url.Values{"state": {state}, "error": {"access_denied"}, "error_description": {"user cancelled"}}
			},
			wantStatusCode:      http.StatusUnauthorized,
			wantRespError:       "access_denied",
			wantRespDescription: "user cancelled",
		},
		{
			name:                "expired",
			exp:                 500 * time.Millisecond,
			wantStatusCode:      http.StatusInternalServerError,
			wantRespError:       "internal-callback-error",
			wantRespDescription: "request is expired",
		},
		{
			name: "missing-state",
			exp:  time.Minute,
			query: func(_, code string) url.Values {
				return url.Values{"code": {code}}
			},
			wantStatusCode:      http.StatusInternalServerError,
			wantRespError:       "internal-callback-error",
			wantRespDescription: "not found",
		},
		{
			name: "state-not-matching",
			exp:  time.Minute,
			query: func(_, code string) url.Values {
				return url.Values{"state": {"st_not-matching"}, "code": {code}}
			},
			wantStatusCode:      http.StatusInternalServerError,
			wantRespError:       "internal-callback-error",
			wantRespDescription: "not found",
		},
		{
			name:                "reader-returns-nil",
			exp:                 time.Minute,
			readerOverride:      &testNilRequestReader{},
			wantStatusCode:      http.StatusInternalServerError,
			wantRespError:       "internal-callback-error",
			wantRespDescription: "not found",
		},
		{
			name:                "reader-fails",
			exp:                 time.Minute,
			readerOverride:      &testFailingRequestReader{},
			wantStatusCode:      http.StatusInternalServerError,
			wantRespError:       "internal-callback-error",
			wantRespDescription: "store is down",
		},
		{
			name:                "bad-exchange",
			exp:                 time.Minute,
			setup:               func(tp *oidc.TestProvider) { tp.SetTokenStatus(http.StatusUnauthorized) },
			wantStatusCode:      http.StatusInternalServerError,
			wantRespError:       "internal-callback-error",
			wantRespDescription: "login failed",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			tp := oidc.StartTestProvider(t)
			p := testNewProvider(t, clientID, clientSecret, testRedirect, tp)
			if tt.setup != nil {
				tt.setup(tp)
			}

			// expiry applies after the provider redirect, so only the callback sees it
			oidcRequest, err := oidc.NewRequest(time.Minute, testRedirect)
			require.NoError(err)
			state, code := testAuthenticate(t, tp, p, oidcRequest)
			oidcRequest.Expiration = time.Now().Add(tt.exp)

			var reader RequestReader = &SingleRequestReader{Request: oidcRequest}
			if tt.readerOverride != nil {
				reader = tt.readerOverride
			}
			h, err := AuthCode(p, reader, testSuccessFn, testFailFn)
			require.NoError(err)

			q := url.Values{"state": {state}, "code": {code}}
			if tt.query != nil {
				q = tt.query(state, code)
			}
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/auth-callback?"+q.Encode(), nil))

			resp := rec.Result()
			defer resp.Body.Close()
			contents, err := io.ReadAll(resp.Body)
			require.NoError(err)
			assert.Equal(tt.wantStatusCode, resp.StatusCode)

			if tt.wantRespError != "" {
				var errResp AuthenErrorResponse
				require.NoError(json.Unmarshal(contents, &errResp))
				assert.Equal(tt.wantRespError, errResp.Error)
				assert.Contains(errResp.Description, tt.wantRespDescription)
				return
			}
			assert.Equal("login successful", string(contents))
		})
	}
}

func Test_AuthCodeSingleUse(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := oidc.StartTestProvider(t)
	p := testNewProvider(t, "test-client-id", "test-client-secret", testRedirect, tp)
	oidcRequest, err := oidc.NewRequest(time.Minute, testRedirect)
	require.NoError(err)
	state, code := testAuthenticate(t, tp, p, oidcRequest)

	var gotErr error
	h, err := AuthCode(p, &SingleRequestReader{Request: oidcRequest}, testSuccessFn,
		func(state string, r *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request) {
			gotErr = e
			testFailFn(state, r, e, w, req)
		})
	require.NoError(err)

	target := "/auth-callback?" + url.Values{"state": {state}, "code": {code}}.Encode()
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, target, nil))
	assert.Equal(http.StatusOK, rec.Code)

	// a replayed callback can't complete the attempt again
	rec = httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, target, nil))
	assert.Equal(http.StatusInternalServerError, rec.Code)
	assert.Truef(errors.Is(gotErr, oidc.ErrNotFound), "wanted \"%s\" but got \"%s\"", oidc.ErrNotFound, gotErr)
}

func TestSingleRequestReader_Read(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	oidcRequest, err := oidc.NewRequest(time.Minute, testRedirect)
	require.NoError(err)
	sr := &SingleRequestReader{Request: oidcRequest}

	_, err = sr.Read(context.Background(), "st_other")
	assert.Truef(errors.Is(err, oidc.ErrNotFound), "wanted \"%s\" but got \"%s\"", oidc.ErrNotFound, err)

	got, err := sr.Read(context.Background(), oidcRequest.State)
	require.NoError(err)
	assert.Equal(oidcRequest, got)
	assert.NotSame(oidcRequest, got)

	_, err = sr.Read(context.Background(), oidcRequest.State)
	assert.Truef(errors.Is(err, oidc.ErrNotFound), "wanted \"%s\" but got \"%s\"", oidc.ErrNotFound, err)

	empty := &SingleRequestReader{}
	_, err = empty.Read(context.Background(), "")
	assert.Truef(errors.Is(err, oidc.ErrNotFound), "wanted \"%s\" but got \"%s\"", oidc.ErrNotFound, err)
}

func Test_AuthCodeWithNow(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := oidc.StartTestProvider(t)
	p := testNewProvider(t, "test-client-id", "test-client-secret", testRedirect, tp)
	oidcRequest, err := oidc.NewRequest(time.Minute, testRedirect)
	require.NoError(err)
	state, code := testAuthenticate(t, tp, p, oidcRequest)

	// an hour later by the handler's clock, though not by the wall clock
	later := func() time.Time { return time.Now().Add(time.Hour) }
	var gotErr error
	h, err := AuthCode(p, &SingleRequestReader{Request: oidcRequest}, testSuccessFn,
		func(state string, r *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request) {
			gotErr = e
			testFailFn(state, r, e, w, req)
		},
		oidc.WithNow(later),
	)
	require.NoError(err)

	target := "/auth-callback?" + url.Values{"state": {state}, "code": {code}}.Encode()
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, target, nil))
	assert.Equal(http.StatusInternalServerError, rec.Code)
	assert.Truef(errors.Is(gotErr, oidc.ErrExpiredRequest), "wanted \"%s\" but got \"%s\"", oidc.ErrExpiredRequest, gotErr)
}
