// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestNewRequest(t *testing.T) {
	t.Parallel()
	skew := 250 * time.Millisecond
	defaultExpireIn := 1 * time.Second
	testNow := func() time.Time {
		return time.Now().Add(-1 * time.Minute)
	}

	tests := []struct {
		name        string
		expireIn    time.Duration
		redirectURL string
		opts        []Option
		wantNowFunc func() time.Time
		wantErr     bool
		wantIsErr   error
	}{
		{
			name:        "valid-WithNow",
			expireIn:    defaultExpireIn,
			redirectURL: "https://bob.com/auth-callback",
			opts:        []Option{WithNow(testNow)},
			wantNowFunc: testNow,
		},
		{
			name:        "valid-no-opt",
			expireIn:    defaultExpireIn,
			redirectURL: "https://bob.com/auth-callback",
			wantNowFunc: time.Now,
		},
		{
			name:        "zero-expireIn",
			expireIn:    0,
			redirectURL: "https://bob.com/auth-callback",
			wantErr:     true,
			wantIsErr:   ErrInvalidParameter,
		},
		{
			name:      "missing-redirect",
			expireIn:  defaultExpireIn,
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := NewRequest(tt.expireIn, tt.redirectURL, tt.opts...)
			if tt.wantErr {
				require.Error(err)
				assert.Truef(errors.Is(err, tt.wantIsErr), "wanted \"%s\" but got \"%s\"", tt.wantIsErr, err)
				return
			}
			require.NoError(err)
			require.NoError(got.Validate())
			tExp := tt.wantNowFunc().Add(tt.expireIn)
			assert.True(got.Expiration.Before(tExp.Add(skew)))
			assert.True(got.Expiration.After(tExp.Add(-skew)))
			assert.NotEqualf(got.State, got.Nonce, "%s state should not equal %s nonce", got.State, got.Nonce)
			assert.True(strings.HasPrefix(got.State, "st_"))
			assert.True(strings.HasPrefix(got.Nonce, "n_"))
			assert.Equal(tt.redirectURL, got.RedirectURL)
			assert.GreaterOrEqual(len(got.CodeVerifier), 43)
		})
	}
}

func TestRequest_IsExpired(t *testing.T) {
	t.Parallel()
	t.Run("not-expired", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		r, err := NewRequest(2*time.Second, "https://bob.com/auth-callback")
		require.NoError(err)
		assert.False(r.IsExpired())
	})
	t.Run("expired", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		r, err := NewRequest(1*time.Nanosecond, "https://bob.com/auth-callback")
		require.NoError(err)
		assert.True(r.IsExpired())
	})
	t.Run("WithNow", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		r, err := NewRequest(time.Minute, "https://bob.com/auth-callback", WithNow(func() time.Time { return start }))
		require.NoError(err)
		assert.False(r.IsExpired(WithNow(func() time.Time { return start.Add(30 * time.Second) })))
		assert.True(r.IsExpired(WithNow(func() time.Time { return start.Add(2 * time.Minute) })))
		assert.True(r.IsExpired(
			WithNow(func() time.Time { return start.Add(30 * time.Second) }),
			WithExpirySkew(time.Minute),
		))
	})
}

func TestRequest_Validate(t *testing.T) {
	t.Parallel()
	valid := func() *Request {
		return &Request{State: "st", Nonce: "n", CodeVerifier: "v", RedirectURL: "https://bob.com"}
	}
	tests := []struct {
		name    string
		req     func() *Request
		wantErr error
	}{
		{name: "valid", req: valid},
		{name: "nil", req: func() *Request { return nil }, wantErr: ErrNilParameter},
		{name: "no-state", req: func() *Request { r := valid(); r.State = ""; return r }, wantErr: ErrInvalidParameter},
		{name: "no-nonce", req: func() *Request { r := valid(); r.Nonce = ""; return r }, wantErr: ErrInvalidParameter},
		{name: "equal", req: func() *Request { r := valid(); r.Nonce = r.State; return r }, wantErr: ErrInvalidParameter},
		{name: "no-verifier", req: func() *Request { r := valid(); r.CodeVerifier = ""; return r }, wantErr: ErrInvalidParameter},
		{name: "no-redirect", req: func() *Request { r := valid(); r.RedirectURL = ""; return r }, wantErr: ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req().Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.Truef(t, errors.Is(err, tt.wantErr), "wanted \"%s\" but got \"%s\"", tt.wantErr, err)
		})
	}
}

func TestRequest_JSON(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	r, err := NewRequest(time.Minute, "https://bob.com/auth-callback", WithUILocales(language.German))
	require.NoError(err)
	b, err := json.Marshal(r)
	require.NoError(err)
	var got Request
	require.NoError(json.Unmarshal(b, &got))
	assert.Equal(r.State, got.State)
	assert.Equal(r.CodeVerifier, got.CodeVerifier)
	assert.True(r.Expiration.Equal(got.Expiration))
	require.Len(got.UILocales, 1)
	assert.Equal("de", got.UILocales[0].String())
}

func TestRequest_UILocalesParam(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		locales []language.Tag
		want    string
	}{
		{name: "none", want: ""},
		{name: "one", locales: []language.Tag{language.French}, want: "fr"},
		{name: "several", locales: []language.Tag{language.AmericanEnglish, language.German}, want: "en-US de"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r, err := NewRequest(time.Minute, "https://bob.com/auth-callback", WithUILocales(tt.locales...))
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.UILocalesParam())
		})
	}
}
