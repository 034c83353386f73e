// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package policy

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
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

// DefaultTimeout bounds a call to an external policy service.
const DefaultTimeout = 30 * time.Second

type httpCheckerOptions struct {
	withTimeout    time.Duration
	withHTTPClient *http.Client
	withLogger     hclog.Logger
}

func httpCheckerDefaults() httpCheckerOptions {
	return httpCheckerOptions{
		withTimeout: DefaultTimeout,
		withLogger:  hclog.NewNullLogger(),
	}
}

func getHTTPCheckerOpts(opt ...Option) httpCheckerOptions {
	opts := httpCheckerDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithTimeout provides an optional request timeout for: HTTPChecker. A
// non-positive duration keeps DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*httpCheckerOptions); ok && d > 0 {
			o.withTimeout = d
		}
	}
}

// WithHTTPClient provides an optional http client for: HTTPChecker. The
// client's own timeout is left as is; WithTimeout still bounds each check.
func WithHTTPClient(c *http.Client) Option {
	return func(o interface{}) {
		if o, ok := o.(*httpCheckerOptions); ok && c != nil {
			o.withHTTPClient = c
		}
	}
}

// WithLogger provides an optional logger for: HTTPChecker
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*httpCheckerOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}
