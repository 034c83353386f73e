// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"fmt"

	"github.com/hashicorp/oidc-rp/sdk/id"
)

// NewID returns a new random session id. It has no relationship to any
// provider identifier.
func NewID() (string, error) {
	const op = "session.NewID"
	sid, err := id.New("")
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return sid, nil
}
