// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/hashicorp/oidc-rp/oidc"
	"github.com/hashicorp/oidc-rp/oidc/callback"
)

// RequestStore keeps pending authentication requests between the redirect to
// the provider and the provider's redirect back, keyed by state.
//
// Read consumes the request: a request is returned at most once, so a
// replayed callback can't complete the same attempt twice. Requests past
// their Expiration are never returned.
type RequestStore interface {
	callback.RequestReader

	// Write stores req under req.State.
	Write(ctx context.Context, req *oidc.Request) error
}

// MemoryRequestStore is an in-process RequestStore.
type MemoryRequestStore struct {
	clock clockwork.Clock

	mu       sync.Mutex
	requests map[string]oidc.Request
}

var _ RequestStore = (*MemoryRequestStore)(nil)

// NewMemoryRequestStore creates an empty MemoryRequestStore.
//
// Supported options: WithClock
func NewMemoryRequestStore(opt ...Option) *MemoryRequestStore {
	opts := getStoreOpts(opt...)
	return &MemoryRequestStore{
		clock:    opts.withClock,
		requests: map[string]oidc.Request{},
	}
}

// Write implements RequestStore. Expired requests are dropped as a side
// effect.
func (s *MemoryRequestStore) Write(_ context.Context, req *oidc.Request) error {
	const op = "MemoryRequestStore.Write"
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for state, r := range s.requests {
		if !r.Expiration.After(now) {
			delete(s.requests, state)
		}
	}
	s.requests[req.State] = *req
	return nil
}

// Read implements RequestStore.
func (s *MemoryRequestStore) Read(_ context.Context, state string) (*oidc.Request, error) {
	const op = "MemoryRequestStore.Read"
	s.mu.Lock()
	r, ok := s.requests[state]
	delete(s.requests, state)
	s.mu.Unlock()
	if !ok || !r.Expiration.After(s.clock.Now()) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return &r, nil
}

// Len returns the number of requests held, including expired ones not yet
// dropped.
func (s *MemoryRequestStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}
