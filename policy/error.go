// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package policy

import "errors"

var (
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrDenied is returned when a policy refuses the user.
	ErrDenied = errors.New("access denied")

	// ErrUnexpectedStatus is returned when an external policy service answers
	// with a status other than 200, 401 or 403.
	ErrUnexpectedStatus = errors.New("unexpected response status code")

	// ErrUnavailable is returned when an external policy service can't be
	// reached.
	ErrUnavailable = errors.New("policy service unavailable")
)
