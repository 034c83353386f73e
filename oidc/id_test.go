// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		opt        []Option
		wantPrefix string
	}{
		{name: "state", opt: []Option{WithPrefix("st")}, wantPrefix: "st_"},
		{name: "nonce", opt: []Option{WithPrefix("n")}, wantPrefix: "n_"},
		{name: "bare"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			seen := map[string]bool{}
			for i := 0; i < 50; i++ {
				got, err := NewID(tt.opt...)
				require.NoError(err)
				require.Truef(strings.HasPrefix(got, tt.wantPrefix), "%q lacks prefix %q", got, tt.wantPrefix)
				random := strings.TrimPrefix(got, tt.wantPrefix)
				assert.Len(random, DefaultIDLength)
				_, err = base64.RawURLEncoding.DecodeString(random)
				assert.NoErrorf(err, "%q is not unpadded base64url", random)
				assert.False(seen[got], "duplicate id %q", got)
				seen[got] = true
			}
		})
	}
}
