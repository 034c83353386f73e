// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"time"
)

// AccessToken is an oauth access_token
type AccessToken string

// RedactedAccessToken is the redacted string or json for an oauth access_token
const RedactedAccessToken = "[REDACTED: access_token]"

// String will redact the token
func (t AccessToken) String() string {
	return RedactedAccessToken
}

// MarshalJSON will redact the token
func (t AccessToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedAccessToken)
}

// Token is the result of a successful authorization code exchange: a
// verified id_token, the access_token issued with it, and any userinfo
// claims the provider returned for the same subject.
type Token struct {
	// IdToken is the raw id_token.
	IdToken IdToken

	// Identity is the verified form of IdToken.
	Identity *IdentityToken

	// AccessToken is the access_token, which may be empty.
	AccessToken AccessToken

	// Expiry is the access_token expiry, the zero time when the provider
	// didn't send one.
	Expiry time.Time

	// UserInfo holds the userinfo claims, nil when the provider has no
	// userinfo endpoint.
	UserInfo map[string]interface{}
}

// Subject returns the id_token's subject.
func (t *Token) Subject() string {
	if t == nil || t.Identity == nil {
		return ""
	}
	return t.Identity.Subject
}

// DisplayName returns a human readable name for the token's subject, taken
// from the first of "preferred_username" and "name" that is present in the
// id_token or userinfo claims, falling back to the subject.
func (t *Token) DisplayName() string {
	if t == nil || t.Identity == nil {
		return ""
	}
	for _, claim := range []string{"preferred_username", "name"} {
		if v := t.Identity.StringClaim(claim); v != "" {
			return v
		}
		if v, ok := t.UserInfo[claim].(string); ok && v != "" {
			return v
		}
	}
	return t.Identity.Subject
}
