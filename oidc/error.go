// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
)

var (
	ErrInvalidParameter     = errors.New("invalid parameter")
	ErrNilParameter         = errors.New("nil parameter")
	ErrInvalidCACert        = errors.New("invalid CA certificate")
	ErrIdGeneratorFailed    = errors.New("id generation failed")
	ErrExpiredRequest       = errors.New("request is expired")
	ErrResponseStateInvalid = errors.New("invalid response state")
	ErrMissingIdToken       = errors.New("id_token is missing")
	ErrInvalidToken         = errors.New("invalid id_token")
	ErrInvalidNonce         = errors.New("invalid nonce")
	ErrNotFound             = errors.New("not found")
	ErrLoginFailed          = errors.New("login failed")
	ErrUserInfoFailed       = errors.New("user info failed")

	// ErrProviderUnavailable is returned when the provider could not be
	// reached or answered with something other than a protocol response.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProtocol is returned when the provider's responses violate the
	// OIDC protocol: a missing id_token, a missing subject, or userinfo for a
	// different subject.
	ErrProtocol = errors.New("protocol error")
)
