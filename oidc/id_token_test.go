// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityToken_Methods(t *testing.T) {
	t.Parallel()
	exp := time.Unix(1700000000, 0)
	tk := &IdentityToken{
		Issuer:   "https://example.com/",
		Audience: []string{"client"},
		Subject:  "u1",
		Expiry:   exp,
		raw:      IdToken("raw"),
		claims: map[string]interface{}{
			"sub":                "u1",
			"preferred_username": "alice",
			"groups":             []interface{}{"a", "b"},
		},
	}
	t.Run("claims-copy", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		var got map[string]interface{}
		require.NoError(tk.Claims(&got))
		got["sub"] = "mallory"
		assert.Equal("u1", tk.StringClaim("sub"))
		assert.Equal("alice", tk.StringClaim("preferred_username"))
		assert.Equal("", tk.StringClaim("groups"))
		assert.Equal("", tk.StringClaim("missing"))
	})
	t.Run("nil-claims", func(t *testing.T) {
		err := tk.Claims(nil)
		assert.Truef(t, errors.Is(err, ErrNilParameter), "wanted \"%s\" but got \"%s\"", ErrNilParameter, err)
	})
	t.Run("raw", func(t *testing.T) {
		assert.Equal(t, IdToken("raw"), tk.Raw())
	})
	t.Run("is-expired", func(t *testing.T) {
		assert := assert.New(t)
		assert.False(tk.IsExpired(exp.Add(-time.Second)))
		assert.True(tk.IsExpired(exp))
		assert.True(tk.IsExpired(exp.Add(time.Second)))
	})
}
