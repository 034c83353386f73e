// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// oidcrp is an OpenID Connect relying party for Keycloak compatible
// providers. It logs browsers in with the authorization code flow, keeps a
// server side session holding the verified id_token, re-verifies that token
// on every guarded request and records each subject in a user directory the
// first time it logs in.
//
// Packages:
//
//	oidc      provider metadata cache, id_token verifier, code exchange
//	session   session and pending request stores, signed session cookie
//	user      user directory (memory, redis, sqlite, postgres)
//	policy    post-login and external-auth policy checks
//	auth      the login, callback, guard and logout flow
//	config    layered configuration
//	server    the HTTP routes
//
// See cmd/oidc-rp for a complete wiring.
package oidcrp
