// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-hclog"

	rphttp "github.com/hashicorp/oidc-rp/sdk/http"
)

// HTTPChecker delegates the decision to an external service. It POSTs the
// Input as JSON to a URL: 200 allows, 401 and 403 deny, and any other status
// is an error wrapping ErrUnexpectedStatus.
//
// An HTTPChecker without a URL allows every user; the check is only
// attempted.
type HTTPChecker struct {
	url     string
	timeout time.Duration
	client  *http.Client
	logger  hclog.Logger
}

var _ Checker = (*HTTPChecker)(nil)

// NewHTTPChecker creates an HTTPChecker posting to rawURL, which may be
// empty.
//
// Supported options: WithTimeout, WithHTTPClient, WithLogger
func NewHTTPChecker(rawURL string, opt ...Option) (*HTTPChecker, error) {
	const op = "policy.NewHTTPChecker"
	if rawURL != "" {
		u, err := url.Parse(rawURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("%s: %q is not an http(s) URL: %w", op, rawURL, ErrInvalidParameter)
		}
	}
	opts := getHTTPCheckerOpts(opt...)
	client := opts.withHTTPClient
	if client == nil {
		var err error
		if client, err = rphttp.NewClient("", opts.withTimeout); err != nil {
			return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
		}
	}
	return &HTTPChecker{
		url:     rawURL,
		timeout: opts.withTimeout,
		client:  client,
		logger:  opts.withLogger,
	}, nil
}

// Check implements Checker.
func (c *HTTPChecker) Check(ctx context.Context, in Input) error {
	const op = "HTTPChecker.Check"
	if c.url == "" {
		c.logger.Warn("URL is empty, skipping")
		return nil
	}
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: unable to marshal input: %w", op, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: unable to create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("policy service unreachable", "url", c.url, "error", err)
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, ErrDenied)
	default:
		c.logger.Error("unexpected response status code", "status", resp.StatusCode, "url", c.url)
		return fmt.Errorf("%s: %d from %s: %w", op, resp.StatusCode, c.url, ErrUnexpectedStatus)
	}
}
