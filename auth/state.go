// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package auth

// State is where a browser stands in the login lifecycle. It is only
// reported in logs; nothing is kept per browser besides the pending request
// and the session.
type State string

const (
	StateAnonymous               State = "anonymous"
	StatePendingProviderRedirect State = "pending-provider-redirect"
	StatePendingCallback         State = "pending-callback"
	StateAuthenticated           State = "authenticated"
	StateLoggedOut               State = "logged-out"
	StateExpired                 State = "expired"
)
