// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package policy decides whether an authenticated user may proceed.
package policy

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/oidc-rp/oidc"
)

// Input is what a policy decides on: the user's group and role names and a
// flat set of attributes, of which "username" is always present.
type Input struct {
	Groups     []string          `json:"groups"`
	Roles      []string          `json:"roles"`
	Attributes map[string]string `json:"attributes"`
}

// Username returns the "username" attribute.
func (in Input) Username() string {
	return in.Attributes["username"]
}

// Checker decides whether a user may proceed. A nil error allows; an error
// wrapping ErrDenied refuses. Any other error means no decision was made.
type Checker interface {
	Check(ctx context.Context, in Input) error
}

// CheckerFunc adapts a function to a Checker.
type CheckerFunc func(ctx context.Context, in Input) error

// Check implements Checker.
func (f CheckerFunc) Check(ctx context.Context, in Input) error { return f(ctx, in) }

// All returns a Checker that runs checkers in order and stops at the first
// error. Nil checkers are skipped.
func All(checkers ...Checker) Checker {
	return CheckerFunc(func(ctx context.Context, in Input) error {
		for _, c := range checkers {
			if c == nil {
				continue
			}
			if err := c.Check(ctx, in); err != nil {
				return err
			}
		}
		return nil
	})
}

// DenyList refuses the usernames it holds. Names compare case-insensitively.
type DenyList struct {
	names map[string]struct{}
}

var _ Checker = (*DenyList)(nil)

// NewDenyList creates a DenyList. Empty names are ignored.
func NewDenyList(usernames ...string) *DenyList {
	d := &DenyList{names: make(map[string]struct{}, len(usernames))}
	for _, n := range usernames {
		if n = strings.TrimSpace(n); n != "" {
			d.names[strings.ToLower(n)] = struct{}{}
		}
	}
	return d
}

// Check implements Checker.
func (d *DenyList) Check(_ context.Context, in Input) error {
	const op = "DenyList.Check"
	if _, ok := d.names[strings.ToLower(in.Username())]; ok {
		return fmt.Errorf("%s: username %q is denied: %w", op, in.Username(), ErrDenied)
	}
	return nil
}

// InputFromToken builds an Input from the claims of a verified token: groups
// from "groups", roles from Keycloak's "realm_access.roles" and attributes
// from the string valued claims. The username attribute is the display name
// of the token.
func InputFromToken(t *oidc.Token) Input {
	in := Input{
		Groups:     []string{},
		Roles:      []string{},
		Attributes: map[string]string{},
	}
	if t == nil {
		return in
	}
	claims := map[string]interface{}{}
	for k, v := range t.UserInfo {
		claims[k] = v
	}
	if t.Identity != nil {
		var idClaims map[string]interface{}
		if err := t.Identity.Claims(&idClaims); err == nil {
			for k, v := range idClaims {
				claims[k] = v
			}
		}
	}
	in.Groups = append(in.Groups, stringList(claims["groups"])...)
	if ra, ok := claims["realm_access"].(map[string]interface{}); ok {
		in.Roles = append(in.Roles, stringList(ra["roles"])...)
	}
	for _, name := range []string{"sub", "email", "name", "given_name", "family_name", "preferred_username"} {
		if s, ok := claims[name].(string); ok && s != "" {
			in.Attributes[name] = s
		}
	}
	in.Attributes["username"] = t.DisplayName()
	return in
}

func stringList(v interface{}) []string {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
