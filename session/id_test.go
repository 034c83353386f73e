// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		got, err := NewID()
		require.NoError(err)
		assert.NotEmpty(got)
		assert.False(seen[got], "duplicate session id %q", got)
		seen[got] = true
	}
}
