// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
oidc is a package for acting as an OIDC relying party of a single provider
(Keycloak or any other provider publishing a discovery document) using the
3-legged authorization code flow.

Primary types provided by the package

* Request: represents one OIDC authentication attempt for a user.  It carries
the state, nonce and PKCE code verifier needed to complete the attempt when the
provider redirects back, and it expires.

* Token: represents a verified OIDC id_token, the Oauth2 access_token and the
userinfo claims returned with them.

* Config: provides the configuration for a typical 3-legged OIDC
authorization code flow (for example: client Id/Secret, discovery URL,
redirectUrl, additional scopes requested, provider CA, provider timeout)

* MetadataCache: fetches the provider's discovery document once and keeps it,
with the provider's remote JSON Web Key Set, for the life of the process.

* Verifier: verifies an id_token's signature, issuer, audience and expiry, in
that order, reporting the first failed check as an InvalidTokenError.

* Provider: provides integration with a provider using the typical
3-legged OIDC authorization code flow. The provider provides capabilities
like: generating an auth URL, exchanging codes for tokens, verifying tokens,
making user info requests, etc.

The oidc.callback package

The callback package includes the ability to create a http.HandlerFunc which can be used
for the 3rd leg of the OIDC flow where the authorization code is exchanged for
tokens.
*/
package oidc
