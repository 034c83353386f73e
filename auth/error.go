// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies why a request couldn't be authenticated.
type Kind int

const (
	KindUnknown Kind = iota

	// KindUnauthenticated means there's no usable session: no cookie, an
	// unknown session, an id_token that no longer verifies or an unknown
	// user.
	KindUnauthenticated

	// KindProviderUnavailable means the provider's metadata or keys couldn't
	// be retrieved, so no decision could be made.
	KindProviderUnavailable

	// KindProtocol means the provider violated the OIDC protocol.
	KindProtocol

	// KindInternal means a local failure, such as an unreachable store.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindProviderUnavailable:
		return "provider unavailable"
	case KindProtocol:
		return "protocol error"
	case KindInternal:
		return "internal error"
	default:
		return "unknown"
	}
}

// StatusCode is the http status a guarded endpoint responds with.
func (k Kind) StatusCode() int {
	switch k {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is the error returned by every Controller operation that can fail
// authentication.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the *Error in err's chain, KindUnknown when
// there isn't one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
