// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package user records the local users of the relying party, one per provider
// subject.
package user

import (
	"context"
	"fmt"
)

// User is a local account bound to a provider subject.
type User struct {
	// ID is the subject identifier of the verified id_token the user was
	// first seen with.
	ID string `json:"id"`

	// Name is the display name recorded when the user was created.
	Name string `json:"name"`
}

// Directory stores users indexed by subject. Implementations must be safe
// for concurrent use.
type Directory interface {
	// FindBySubject returns the user for id or an error wrapping ErrNotFound.
	FindBySubject(ctx context.Context, id string) (*User, error)

	// Upsert stores u unless a user with the same ID already exists. It
	// returns the stored user and whether this call created it. An existing
	// user is returned unchanged: the first writer wins.
	Upsert(ctx context.Context, u User) (*User, bool, error)
}

func (u User) validate() error {
	if u.ID == "" {
		return fmt.Errorf("user id is empty: %w", ErrInvalidParameter)
	}
	return nil
}
