// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"sync"

	"github.com/hashicorp/oidc-rp/oidc"
)

// RequestReader defines an interface for finding and reading an oidc.Request
//
// Implementations must be concurrently safe, since the reader will likely be
// used within a concurrent http.Handler. A Request completes at most one
// authentication attempt, so readers used with AuthCode should remove the
// Request they return.
type RequestReader interface {
	// Read an existing Request entry.  The returned request's State
	// must match the state used to look it up. When there's no entry for the
	// state the error must wrap oidc.ErrNotFound.
	Read(ctx context.Context, state string) (*oidc.Request, error)
}

// SingleRequestReader implements the RequestReader interface for a single
// request which can be read once. It is concurrently safe.
type SingleRequestReader struct {
	Request *oidc.Request

	mu   sync.Mutex
	read bool
}

// Read() will return a copy of its single-request the first time the state
// matches its Request.State, otherwise it returns an error of
// oidc.ErrNotFound. It satisfies the RequestReader interface.  Read() is
// concurrently safe.
func (sr *SingleRequestReader) Read(_ context.Context, state string) (*oidc.Request, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.Request == nil || sr.read || sr.Request.State != state {
		return nil, oidc.ErrNotFound
	}
	sr.read = true
	cp := *sr.Request
	return &cp, nil
}
