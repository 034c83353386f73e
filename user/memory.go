// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package user

import (
	"context"
	"fmt"
	"sync"
)

// MemoryDirectory is an in-process Directory.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]User
}

var _ Directory = (*MemoryDirectory)(nil)

// NewMemoryDirectory creates an empty MemoryDirectory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: map[string]User{}}
}

// FindBySubject implements Directory.
func (d *MemoryDirectory) FindBySubject(_ context.Context, id string) (*User, error) {
	const op = "MemoryDirectory.FindBySubject"
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return &u, nil
}

// Upsert implements Directory.
func (d *MemoryDirectory) Upsert(_ context.Context, u User) (*User, bool, error) {
	const op = "MemoryDirectory.Upsert"
	if err := u.validate(); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.users[u.ID]; ok {
		return &existing, false, nil
	}
	d.users[u.ID] = u
	return &u, true, nil
}

// Len returns the number of users held.
func (d *MemoryDirectory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}
