// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hashicorp/oidc-rp/jwt"
)

// Reason identifies which id_token check failed.
type Reason string

const (
	ReasonMalformed        Reason = "malformed-or-unsigned"
	ReasonIssuerMismatch   Reason = "issuer-mismatch"
	ReasonAudienceMismatch Reason = "audience-mismatch"
	ReasonExpired          Reason = "expired"
)

// InvalidTokenError is returned by Verifier.Verify when an id_token fails
// one of its checks. It matches ErrInvalidToken with errors.Is.
type InvalidTokenError struct {
	Reason Reason
	Err    error
}

func (e *InvalidTokenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s", ErrInvalidToken, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidToken, e.Reason)
}

func (e *InvalidTokenError) Is(target error) bool { return target == ErrInvalidToken }

func (e *InvalidTokenError) Unwrap() error { return e.Err }

// ReasonOf returns the Reason of the InvalidTokenError in err's chain, or ""
// when there isn't one.
func ReasonOf(err error) Reason {
	var ite *InvalidTokenError
	if errors.As(err, &ite) {
		return ite.Reason
	}
	return ""
}

// Verifier verifies id_tokens issued by one provider to one client.
// Every call verifies from scratch against the metadata and keys in effect at
// that moment; no verdicts are cached.
type Verifier struct {
	source   MetadataSource
	clientID string
	now      func() time.Time
}

// NewVerifier creates a Verifier for tokens issued to clientID by the provider
// described by source.
//
// Supported options: WithNow
func NewVerifier(source MetadataSource, clientID string, opt ...Option) (*Verifier, error) {
	const op = "oidc.NewVerifier"
	if source == nil {
		return nil, fmt.Errorf("%s: metadata source is nil: %w", op, ErrNilParameter)
	}
	if clientID == "" {
		return nil, fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter)
	}
	opts := getVerifierOpts(opt...)
	return &Verifier{
		source:   source,
		clientID: clientID,
		now:      opts.withNowFunc,
	}, nil
}

// Verify checks raw in order, and the first failed check decides the result:
//
//  1. the signature verifies against the provider's keys and the claims decode
//  2. "iss" equals the provider's issuer exactly
//  3. "aud" is exactly the client id, either as a string or a one element list
//  4. "exp" is after the current time, with no leeway; a missing "exp" fails
//
// A failed check returns an *InvalidTokenError. When the provider's metadata
// or keys can't be retrieved the error wraps ErrProviderUnavailable instead.
func (v *Verifier) Verify(ctx context.Context, raw IdToken) (*IdentityToken, error) {
	const op = "Verifier.Verify"
	if raw == "" {
		return nil, fmt.Errorf("%s: %w", op, &InvalidTokenError{Reason: ReasonMalformed, Err: errors.New("id_token is empty")})
	}
	md, err := v.source.Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	keys, err := v.source.SigningKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	claims, err := keys.VerifySignature(ctx, string(raw))
	if err != nil {
		if errors.Is(err, jwt.ErrKeySetUnavailable) {
			return nil, fmt.Errorf("%s: %w: %w", op, ErrProviderUnavailable, err)
		}
		return nil, fmt.Errorf("%s: %w", op, &InvalidTokenError{Reason: ReasonMalformed, Err: err})
	}
	tk, err := decodeIdentity(raw, claims)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, &InvalidTokenError{Reason: ReasonMalformed, Err: err})
	}

	if tk.Issuer != md.Issuer {
		return nil, fmt.Errorf("%s: %w", op, &InvalidTokenError{Reason: ReasonIssuerMismatch})
	}
	if len(tk.Audience) != 1 || tk.Audience[0] != v.clientID {
		return nil, fmt.Errorf("%s: %w", op, &InvalidTokenError{Reason: ReasonAudienceMismatch})
	}
	if tk.Expiry.IsZero() || tk.IsExpired(v.now()) {
		return nil, fmt.Errorf("%s: %w", op, &InvalidTokenError{Reason: ReasonExpired})
	}
	return tk, nil
}

// VerifyNonce checks the token's nonce against the one sent with the
// authentication request.
func VerifyNonce(tk *IdentityToken, nonce string) error {
	const op = "oidc.VerifyNonce"
	if tk == nil {
		return fmt.Errorf("%s: identity token is nil: %w", op, ErrNilParameter)
	}
	if nonce == "" || subtle.ConstantTimeCompare([]byte(tk.Nonce), []byte(nonce)) != 1 {
		return fmt.Errorf("%s: %w", op, ErrInvalidNonce)
	}
	return nil
}

// decodeIdentity builds an IdentityToken from verified claims. Registered
// claims of the wrong JSON type are rejected.
func decodeIdentity(raw IdToken, claims map[string]interface{}) (*IdentityToken, error) {
	tk := &IdentityToken{raw: raw, claims: claims}
	var err error
	for name, dst := range map[string]*string{"iss": &tk.Issuer, "sub": &tk.Subject, "nonce": &tk.Nonce} {
		v, ok := claims[name]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%q claim is not a string", name)
		}
		*dst = s
	}

	switch aud := claims["aud"].(type) {
	case nil:
	case string:
		tk.Audience = []string{aud}
	case []interface{}:
		for _, a := range aud {
			s, ok := a.(string)
			if !ok {
				return nil, errors.New(`"aud" claim contains a non string value`)
			}
			tk.Audience = append(tk.Audience, s)
		}
	default:
		return nil, errors.New(`"aud" claim is not a string or list`)
	}

	if tk.Expiry, err = numericDate(claims, "exp"); err != nil {
		return nil, err
	}
	if tk.IssuedAt, err = numericDate(claims, "iat"); err != nil {
		return nil, err
	}
	return tk, nil
}

// numericDate reads an RFC 7519 NumericDate claim, returning the zero time
// when it is absent.
func numericDate(claims map[string]interface{}, name string) (time.Time, error) {
	v, ok := claims[name]
	if !ok || v == nil {
		return time.Time{}, nil
	}
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, fmt.Errorf("%q claim is not a number", name)
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)), nil
}

// verifierOptions is the set of available options for Verifier
type verifierOptions struct {
	withNowFunc func() time.Time
}

func verifierDefaults() verifierOptions {
	return verifierOptions{
		withNowFunc: time.Now,
	}
}

func getVerifierOpts(opt ...Option) verifierOptions {
	opts := verifierDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
