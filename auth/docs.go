// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
auth is a package for running the OIDC authorization code login flow of a
relying party and guarding endpoints on the sessions it creates.

Primary types provided by the package

* Controller: starts logins (Login), completes them when the provider
redirects back (Callback), authenticates requests (Guard and the RequireAuth
middleware) and ends sessions (Logout).

* Error: every Guard failure is an *Error carrying a Kind. The Kind decides
the HTTP status: KindUnauthenticated is 401, KindProviderUnavailable is 503
and anything else is 500. Why a token was rejected is logged at debug and
never returned to the client.

A login moves through the States Anonymous, PendingProviderRedirect,
PendingCallback and Authenticated, and ends as LoggedOut or Expired.

Example

	c, err := auth.NewController(p, sessions, requests, users, cookies,
		auth.WithPolicy(policy.NewDenyList("mfa_user")),
	)
	if err != nil {
		// handle error
	}
	r := chi.NewRouter()
	r.Get("/login", c.Login)
	r.Get("/auth-callback", c.Callback)
	r.With(c.RequireAuth).Get("/logout", c.Logout)
*/
package auth
