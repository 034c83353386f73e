// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidcrp_test

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hashicorp/oidc-rp/auth"
	"github.com/hashicorp/oidc-rp/oidc"
	"github.com/hashicorp/oidc-rp/policy"
	"github.com/hashicorp/oidc-rp/server"
	"github.com/hashicorp/oidc-rp/session"
	"github.com/hashicorp/oidc-rp/user"
)

func Example() {
	// Create a new Config
	pc, err := oidc.NewConfig(
		"https://sso.example.com/realms/demo/.well-known/openid-configuration",
		"your_client_id",
		"your_client_secret",
		"https://app.example.com/auth-callback",
		oidc.WithScopes("profile", "email"),
	)
	if err != nil {
		// handle error
	}

	// Create a provider. Nothing is fetched until the metadata is needed.
	p, err := oidc.NewProvider(pc)
	if err != nil {
		// handle error
	}
	defer p.Done()

	// The session cookie is signed with a secret of at least
	// session.MinHashKeyLen bytes.
	cookies, err := session.NewCookieCodec([]byte("a-secret-of-at-least-thirty-two-bytes"))
	if err != nil {
		// handle error
	}

	c, err := auth.NewController(p,
		session.NewMemoryStore(),
		session.NewMemoryRequestStore(),
		user.NewMemoryDirectory(),
		cookies,
		auth.WithPolicy(policy.NewDenyList("mfa_user")),
	)
	if err != nil {
		// handle error
	}

	// Serve /login, /auth-callback, /logout, /userinfo, /external-auth,
	// /healthz and /metrics.
	srv, err := server.New(":8080", c)
	if err != nil {
		// handle error
	}
	if err := srv.Run(context.Background()); err != nil {
		// handle error
	}
}

func Example_guard() {
	var c *auth.Controller // see Example

	// Guard any handler: the session's user is in the request context.
	mux := http.NewServeMux()
	mux.Handle("/profile", c.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _ := auth.UserFromContext(r.Context())
		fmt.Fprintf(w, "hello %s", u.Name)
	})))
}
