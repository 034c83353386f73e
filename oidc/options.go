// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
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

// WithNow provides an optional func for determining what the current time it
// is for: Verifier, Provider, Request
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if now == nil {
			return
		}
		switch v := o.(type) {
		case *verifierOptions:
			v.withNowFunc = now
		case *providerOptions:
			v.withNowFunc = now
		case *reqOptions:
			v.withNowFunc = now
		}
	}
}

// WithLogger provides an optional logger for: MetadataCache, Provider
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if l == nil {
			return
		}
		switch v := o.(type) {
		case *metadataOptions:
			v.withLogger = l
		case *providerOptions:
			v.withLogger = l
		}
	}
}

// WithRegisterer provides an optional prometheus registerer for the
// metadata fetch counter of: MetadataCache, Provider
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *metadataOptions:
			v.withRegisterer = r
		case *providerOptions:
			v.withRegisterer = r
		}
	}
}

// WithHTTPClient provides an optional http client used to reach the
// provider for: MetadataCache
func WithHTTPClient(c *http.Client) Option {
	return func(o interface{}) {
		if v, ok := o.(*metadataOptions); ok {
			v.withHTTPClient = c
		}
	}
}

// WithExpirySkew provides an optional expiry skew duration for: Request
func WithExpirySkew(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *reqOptions:
			v.withExpirySkew = d
		}
	}
}
