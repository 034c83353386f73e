// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Command oidc-rp runs an OpenID Connect relying party in front of a
// Keycloak compatible provider.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hashicorp/oidc-rp/auth"
	"github.com/hashicorp/oidc-rp/config"
	"github.com/hashicorp/oidc-rp/oidc"
	"github.com/hashicorp/oidc-rp/policy"
	"github.com/hashicorp/oidc-rp/server"
	"github.com/hashicorp/oidc-rp/session"
)

func main() {
	configPath := flag.String("config", os.Getenv("OIDC_RP_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:       "oidc-rp",
		Level:      cfg.LogLevel(),
		JSONFormat: cfg.Log.JSON,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("exiting", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger hclog.Logger) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pc, err := oidc.NewConfig(cfg.OIDC.DiscoveryURL, cfg.OIDC.ClientID, cfg.OIDC.ClientSecret, cfg.OIDC.RedirectURL,
		oidc.WithScopes(cfg.OIDC.Scopes...),
		oidc.WithProviderCA(cfg.OIDC.ProviderCA),
		oidc.WithProviderTimeout(cfg.OIDC.ProviderTimeout),
	)
	if err != nil {
		return err
	}
	p, err := oidc.NewProvider(pc,
		oidc.WithLogger(logger.Named("oidc")),
		oidc.WithRegisterer(registry),
	)
	if err != nil {
		return err
	}
	defer p.Done()

	b, err := newBackends(ctx, cfg, logger)
	if err != nil {
		return err
	}

	cookies, err := session.NewCookieCodec([]byte(cfg.Session.Secret),
		session.WithCookieName(cfg.Session.CookieName),
		session.WithCookieSecure(cfg.Session.CookieSecure),
		session.WithCookieMaxAge(cfg.Session.TTL),
	)
	if err != nil {
		b.close(logger)
		return err
	}

	external, err := policy.NewHTTPChecker(cfg.Policy.ExternalURL,
		policy.WithTimeout(cfg.Policy.ExternalTimeout),
		policy.WithLogger(logger.Named("policy")),
	)
	if err != nil {
		b.close(logger)
		return err
	}
	denyList := policy.NewDenyList(cfg.Policy.DenyUsernames...)

	controller, err := auth.NewController(p, b.sessions, b.requests, b.users, cookies,
		auth.WithLogger(logger.Named("auth")),
		auth.WithRegisterer(registry),
		auth.WithPolicy(policy.All(denyList, external)),
	)
	if err != nil {
		b.close(logger)
		return err
	}

	opts := []server.Option{
		server.WithLogger(logger.Named("server")),
		server.WithGatherer(registry),
		server.WithExternalAuthChecker(denyList),
		server.WithCloser(b.closers...),
	}
	for name, check := range b.healthChecks {
		opts = append(opts, server.WithHealthCheck(name, check))
	}
	srv, err := server.New(cfg.Server.Addr, controller, opts...)
	if err != nil {
		b.close(logger)
		return err
	}
	return srv.Run(ctx)
}
