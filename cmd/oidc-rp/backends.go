// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"

	"github.com/hashicorp/oidc-rp/config"
	"github.com/hashicorp/oidc-rp/server"
	"github.com/hashicorp/oidc-rp/session"
	"github.com/hashicorp/oidc-rp/user"
)

// backends are the stores selected by the configuration, along with their
// health checks and what must be closed on shutdown.
type backends struct {
	sessions     session.Store
	requests     session.RequestStore
	users        user.Directory
	healthChecks map[string]server.HealthCheck
	closers      []io.Closer
}

func newBackends(ctx context.Context, cfg *config.Config, logger hclog.Logger) (*backends, error) {
	const op = "newBackends"
	b := &backends{healthChecks: map[string]server.HealthCheck{}}

	var client redis.UniversalClient
	if cfg.Session.Backend == config.BackendRedis || cfg.Users.Backend == config.BackendRedis {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, client)
		b.healthChecks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	var err error
	switch cfg.Session.Backend {
	case config.BackendRedis:
		if b.sessions, err = session.NewRedisStore(client,
			session.WithKeyPrefix(cfg.Redis.KeyPrefix),
			session.WithTTL(cfg.Session.TTL),
		); err != nil {
			b.close(logger)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if b.requests, err = session.NewRedisRequestStore(client, session.WithKeyPrefix(cfg.Redis.KeyPrefix)); err != nil {
			b.close(logger)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	default:
		b.sessions = session.NewMemoryStore()
		b.requests = session.NewMemoryRequestStore()
	}

	switch cfg.Users.Backend {
	case config.BackendRedis:
		if b.users, err = user.NewRedisDirectory(client, user.WithKeyPrefix(cfg.Redis.KeyPrefix)); err != nil {
			b.close(logger)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	case config.BackendSQLite, config.BackendPostgres:
		d, err := user.OpenSQLDirectory(ctx, cfg.Users.Backend, cfg.Users.DSN)
		if err != nil {
			b.close(logger)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		b.users = d
		b.closers = append(b.closers, d)
		b.healthChecks["users"] = d.Ping
	default:
		b.users = user.NewMemoryDirectory()
	}

	logger.Info("storage configured", "sessions", cfg.Session.Backend, "users", cfg.Users.Backend)
	return b, nil
}

// close releases the backends when startup fails before the server owns
// them.
func (b *backends) close(logger hclog.Logger) {
	for _, c := range b.closers {
		if err := c.Close(); err != nil {
			logger.Warn("unable to close backend", "error", err)
		}
	}
}
