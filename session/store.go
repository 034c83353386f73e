// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/oidc-rp/oidc"
)

// Store maps session ids to the raw id_token obtained at login. It holds no
// verdicts: the id_token is verified again whenever the session is used.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Put binds token to id, replacing any previous binding.
	Put(ctx context.Context, id string, token oidc.IdToken) error

	// Get returns the token bound to id or an error wrapping ErrNotFound.
	Get(ctx context.Context, id string) (oidc.IdToken, error)

	// Delete removes the binding for id. Deleting an unknown id succeeds.
	Delete(ctx context.Context, id string) error
}

// MemoryStore is an in-process Store. Sessions are never evicted; an expired
// session is rejected when its id_token fails verification.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]oidc.IdToken
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: map[string]oidc.IdToken{}}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, id string, token oidc.IdToken) error {
	const op = "MemoryStore.Put"
	if err := validatePut(id, token); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = token
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (oidc.IdToken, error) {
	const op = "MemoryStore.Get"
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.sessions[id]
	if !ok {
		return "", fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return token, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Len returns the number of sessions held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func validatePut(id string, token oidc.IdToken) error {
	switch {
	case id == "":
		return fmt.Errorf("session id is empty: %w", ErrInvalidParameter)
	case token == "":
		return fmt.Errorf("id_token is empty: %w", ErrInvalidParameter)
	}
	return nil
}
