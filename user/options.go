// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package user

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

const (
	// DefaultKeyPrefix is the default prefix of redis keys written by
	// RedisDirectory.
	DefaultKeyPrefix = "oidc-rp:"

	// DefaultTable is the default table used by SQLDirectory.
	DefaultTable = "users"
)

type directoryOptions struct {
	withKeyPrefix string
	withTable     string
}

func directoryDefaults() directoryOptions {
	return directoryOptions{
		withKeyPrefix: DefaultKeyPrefix,
		withTable:     DefaultTable,
	}
}

func getDirectoryOpts(opt ...Option) directoryOptions {
	opts := directoryDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithKeyPrefix provides an optional redis key prefix for: RedisDirectory
func WithKeyPrefix(prefix string) Option {
	return func(o interface{}) {
		if o, ok := o.(*directoryOptions); ok {
			o.withKeyPrefix = prefix
		}
	}
}

// WithTable provides an optional table name for: SQLDirectory. The name is
// used verbatim in statements and must come from configuration, never from
// user input.
func WithTable(name string) Option {
	return func(o interface{}) {
		if o, ok := o.(*directoryOptions); ok && name != "" {
			o.withTable = name
		}
	}
}
