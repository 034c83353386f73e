// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	t.Parallel()
	tests := []struct {
		kind       Kind
		wantString string
		wantStatus int
	}{
		{kind: KindUnauthenticated, wantString: "unauthenticated", wantStatus: http.StatusUnauthorized},
		{kind: KindProviderUnavailable, wantString: "provider unavailable", wantStatus: http.StatusServiceUnavailable},
		{kind: KindProtocol, wantString: "protocol error", wantStatus: http.StatusInternalServerError},
		{kind: KindInternal, wantString: "internal error", wantStatus: http.StatusInternalServerError},
		{kind: KindUnknown, wantString: "unknown", wantStatus: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.wantString, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			assert.Equal(tt.wantString, tt.kind.String())
			assert.Equal(tt.wantStatus, tt.kind.StatusCode())
		})
	}
}

func TestError(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	cause := errors.New("cause")
	err := fmt.Errorf("wrapped: %w", &Error{Kind: KindProviderUnavailable, Op: "Controller.Guard", Err: cause})
	assert.Equal(KindProviderUnavailable, KindOf(err))
	assert.ErrorIs(err, cause)
	assert.Equal("wrapped: Controller.Guard: provider unavailable: cause", err.Error())
	assert.Equal("op: unauthenticated", (&Error{Kind: KindUnauthenticated, Op: "op"}).Error())
	assert.Equal(KindUnknown, KindOf(cause))
	assert.Equal(KindUnknown, KindOf(nil))
}
