// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package auth

import (
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/hashicorp/oidc-rp/oidc"
)

// sweepThreshold is the number of cached tokens above which a put first
// drops expired entries.
const sweepThreshold = 1024

// verifiedCache remembers id_tokens that passed verification until they
// expire.
type verifiedCache struct {
	clock clockwork.Clock

	mu     sync.RWMutex
	tokens map[oidc.IdToken]*oidc.IdentityToken
}

func newVerifiedCache(clock clockwork.Clock) *verifiedCache {
	return &verifiedCache{
		clock:  clock,
		tokens: map[oidc.IdToken]*oidc.IdentityToken{},
	}
}

func (c *verifiedCache) get(raw oidc.IdToken) (*oidc.IdentityToken, bool) {
	c.mu.RLock()
	tk, ok := c.tokens[raw]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if tk.IsExpired(c.clock.Now()) {
		c.mu.Lock()
		delete(c.tokens, raw)
		c.mu.Unlock()
		return nil, false
	}
	return tk, true
}

func (c *verifiedCache) put(tk *oidc.IdentityToken) {
	now := c.clock.Now()
	if tk.IsExpired(now) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tokens) >= sweepThreshold {
		for raw, cached := range c.tokens {
			if cached.IsExpired(now) {
				delete(c.tokens, raw)
			}
		}
	}
	c.tokens[tk.Raw()] = tk
}

func (c *verifiedCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tokens)
}
