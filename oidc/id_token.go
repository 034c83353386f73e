// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"time"
)

// IdToken is an oidc id_token in its compact JWS serialization.
// See https://openid.net/specs/openid-connect-core-1_0.html#IDToken.
type IdToken string

// RedactedIdToken is the redacted string or json for an oidc id_token
const RedactedIdToken = "[REDACTED: id_token]"

// String will redact the token
func (t IdToken) String() string {
	return RedactedIdToken
}

// MarshalJSON will redact the token
func (t IdToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedIdToken)
}

// IdentityToken is an id_token whose signature and claims passed
// verification. It is only produced by a Verifier and is never modified
// after that.
type IdentityToken struct {
	// Issuer is the "iss" claim.
	Issuer string

	// Audience is the "aud" claim, normalized to a list.
	Audience []string

	// Subject is the "sub" claim.  It may be empty; callers that need a
	// subject must check for it.
	Subject string

	// Expiry is the "exp" claim.
	Expiry time.Time

	// IssuedAt is the "iat" claim, the zero time when absent.
	IssuedAt time.Time

	// Nonce is the "nonce" claim.
	Nonce string

	raw    IdToken
	claims map[string]interface{}
}

// Raw returns the token the IdentityToken was verified from.
func (t *IdentityToken) Raw() IdToken { return t.raw }

// Claims decodes a copy of all the token's claims into v.
func (t *IdentityToken) Claims(v interface{}) error {
	const op = "IdentityToken.Claims"
	if v == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	b, err := json.Marshal(t.claims)
	if err != nil {
		return fmt.Errorf("%s: unable to marshal claims: %w", op, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%s: unable to unmarshal claims: %w", op, err)
	}
	return nil
}

// StringClaim returns the named claim when it is a string, and "" otherwise.
func (t *IdentityToken) StringClaim(name string) string {
	s, _ := t.claims[name].(string)
	return s
}

// IsExpired reports whether the token's expiry is at or before now.
func (t *IdentityToken) IsExpired(now time.Time) bool {
	return !t.Expiry.After(now)
}
