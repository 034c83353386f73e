// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package auth

import (
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hashicorp/oidc-rp/policy"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// DefaultRequestTTL is how long a login attempt may take between the
// redirect to the provider and its callback.
const DefaultRequestTTL = 10 * time.Minute

// DefaultLandingPath is where the browser is sent after login and logout.
const DefaultLandingPath = "/"

type controllerOptions struct {
	withLogger             hclog.Logger
	withRegisterer         prometheus.Registerer
	withClock              clockwork.Clock
	withPolicy             policy.Checker
	withVerifier           TokenVerifier
	withRequestTTL         time.Duration
	withLandingPath        string
	withVerifiedTokenCache bool
}

func controllerDefaults() controllerOptions {
	return controllerOptions{
		withLogger:      hclog.NewNullLogger(),
		withClock:       clockwork.NewRealClock(),
		withRequestTTL:  DefaultRequestTTL,
		withLandingPath: DefaultLandingPath,
	}
}

func getControllerOpts(opt ...Option) controllerOptions {
	opts := controllerDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger for: Controller
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*controllerOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithRegisterer provides an optional prometheus registerer for the guard and
// callback counters of: Controller
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o interface{}) {
		if o, ok := o.(*controllerOptions); ok {
			o.withRegisterer = r
		}
	}
}

// WithClock provides an optional clock for: Controller. It dates new login
// requests and expires cached verifications.
func WithClock(c clockwork.Clock) Option {
	return func(o interface{}) {
		if o, ok := o.(*controllerOptions); ok && c != nil {
			o.withClock = c
		}
	}
}

// WithPolicy provides an optional post-login policy check for: Controller.
// A user the policy denies gets no session.
func WithPolicy(c policy.Checker) Option {
	return func(o interface{}) {
		if o, ok := o.(*controllerOptions); ok {
			o.withPolicy = c
		}
	}
}

// WithVerifier replaces the provider's id_token verifier used by the guard
// for: Controller
func WithVerifier(v TokenVerifier) Option {
	return func(o interface{}) {
		if o, ok := o.(*controllerOptions); ok && v != nil {
			o.withVerifier = v
		}
	}
}

// WithRequestTTL provides an optional lifetime of login attempts for:
// Controller
func WithRequestTTL(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*controllerOptions); ok && d > 0 {
			o.withRequestTTL = d
		}
	}
}

// WithLandingPath provides an optional path the browser is redirected to
// after login and logout for: Controller
func WithLandingPath(path string) Option {
	return func(o interface{}) {
		if o, ok := o.(*controllerOptions); ok && path != "" {
			o.withLandingPath = path
		}
	}
}

// WithVerifiedTokenCache enables caching of successful id_token
// verifications by the guard, for: Controller. A cached verification is
// used until the token's own expiry and never after it. It is disabled by
// default, so every guarded request verifies the token again.
func WithVerifiedTokenCache(enabled bool) Option {
	return func(o interface{}) {
		if o, ok := o.(*controllerOptions); ok {
			o.withVerifiedTokenCache = enabled
		}
	}
}
