// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package auth

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultAllowed             = "allowed"
	resultSuccess             = "success"
	resultUnauthenticated     = "unauthenticated"
	resultDenied              = "denied"
	resultProviderError       = "provider_error"
	resultProviderUnavailable = "provider_unavailable"
	resultProtocolError       = "protocol_error"
	resultError               = "error"
)

type metrics struct {
	guard    *prometheus.CounterVec
	callback *prometheus.CounterVec
}

func newMetrics(r prometheus.Registerer) (*metrics, error) {
	guard, err := registerCounterVec(r, prometheus.CounterOpts{
		Name: "oidc_rp_guard_total",
		Help: "Guarded requests by result.",
	})
	if err != nil {
		return nil, err
	}
	callback, err := registerCounterVec(r, prometheus.CounterOpts{
		Name: "oidc_rp_callback_total",
		Help: "Provider callbacks by result.",
	})
	if err != nil {
		return nil, err
	}
	return &metrics{guard: guard, callback: callback}, nil
}

// registerCounterVec registers a counter with a single "result" label,
// reusing a counter registered earlier under the same name.
func registerCounterVec(r prometheus.Registerer, opts prometheus.CounterOpts) (*prometheus.CounterVec, error) {
	cv := prometheus.NewCounterVec(opts, []string{"result"})
	if r == nil {
		return cv, nil
	}
	if err := r.Register(cv); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("unable to register %s: %w", opts.Name, err)
	}
	return cv, nil
}
