// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"errors"

	"github.com/hashicorp/oidc-rp/oidc"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNilParameter     = errors.New("nil parameter")

	// ErrNotFound is returned when there's no session or pending request for
	// a key. It is oidc.ErrNotFound, so request stores can be used as a
	// callback.RequestReader.
	ErrNotFound = oidc.ErrNotFound

	// ErrNoSession is returned by CookieCodec.SessionID when the request
	// doesn't carry a usable session cookie.
	ErrNoSession = errors.New("no session cookie")

	// ErrNoState is returned by CookieCodec.State when the request doesn't
	// carry the cookie of a pending login.
	ErrNoState = errors.New("no pending login cookie")

	// ErrInvalidCookie is returned with ErrNoSession or ErrNoState when the
	// cookie is present but fails its signature check.
	ErrInvalidCookie = errors.New("invalid session cookie")
)
