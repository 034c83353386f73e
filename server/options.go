// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package server

import (
	"context"
	"io"
	"time"

	"github.com/hashicorp/go-hclog"
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

// DefaultShutdownTimeout bounds how long in-flight requests are given to
// finish once the server is asked to stop.
const DefaultShutdownTimeout = 10 * time.Second

// HealthCheck reports whether a dependency of the server is usable.
type HealthCheck func(ctx context.Context) error

type serverOptions struct {
	withLogger          hclog.Logger
	withGatherer        prometheus.Gatherer
	withExternalChecker policy.Checker
	withHealthChecks    map[string]HealthCheck
	withClosers         []io.Closer
	withShutdownTimeout time.Duration
}

func serverDefaults() serverOptions {
	return serverOptions{
		withLogger:          hclog.NewNullLogger(),
		withGatherer:        prometheus.DefaultGatherer,
		withHealthChecks:    map[string]HealthCheck{},
		withShutdownTimeout: DefaultShutdownTimeout,
	}
}

func getServerOpts(opt ...Option) serverOptions {
	opts := serverDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger for: Server
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*serverOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithGatherer provides the optional metrics source served at /metrics. The
// default is prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(o interface{}) {
		if o, ok := o.(*serverOptions); ok && g != nil {
			o.withGatherer = g
		}
	}
}

// WithExternalAuthChecker provides the policy run by POST /external-auth.
// Without one every well formed request is allowed.
func WithExternalAuthChecker(c policy.Checker) Option {
	return func(o interface{}) {
		if o, ok := o.(*serverOptions); ok {
			o.withExternalChecker = c
		}
	}
}

// WithHealthCheck adds a named dependency check to /healthz.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(o interface{}) {
		if o, ok := o.(*serverOptions); ok && check != nil {
			o.withHealthChecks[name] = check
		}
	}
}

// WithCloser provides resources closed, in order, after the server shuts
// down.
func WithCloser(c ...io.Closer) Option {
	return func(o interface{}) {
		if o, ok := o.(*serverOptions); ok {
			o.withClosers = append(o.withClosers, c...)
		}
	}
}

// WithShutdownTimeout provides an optional graceful shutdown timeout.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*serverOptions); ok && d > 0 {
			o.withShutdownTimeout = d
		}
	}
}
