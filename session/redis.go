// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/hashicorp/oidc-rp/oidc"
)

const (
	keyTypeSession = "session"
	keyTypeRequest = "request"
)

func redisKey(prefix, keyType, id string) string {
	return fmt.Sprintf("%s%s:%s", prefix, keyType, id)
}

// RedisStore is a Store backed by redis, so sessions survive restarts and
// are shared between replicas.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore using client, which may be a miniredis
// backed client in tests.
//
// Supported options: WithKeyPrefix, WithTTL
func NewRedisStore(client redis.UniversalClient, opt ...Option) (*RedisStore, error) {
	const op = "session.NewRedisStore"
	if client == nil {
		return nil, fmt.Errorf("%s: redis client is nil: %w", op, ErrNilParameter)
	}
	opts := getStoreOpts(opt...)
	if opts.withTTL < 0 {
		return nil, fmt.Errorf("%s: ttl is negative: %w", op, ErrInvalidParameter)
	}
	return &RedisStore{
		client:    client,
		keyPrefix: opts.withKeyPrefix,
		ttl:       opts.withTTL,
	}, nil
}

// Put implements Store.
func (s *RedisStore) Put(ctx context.Context, id string, token oidc.IdToken) error {
	const op = "RedisStore.Put"
	if err := validatePut(id, token); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.client.Set(ctx, redisKey(s.keyPrefix, keyTypeSession, id), string(token), s.ttl).Err(); err != nil {
		return fmt.Errorf("%s: failed to store session: %w", op, err)
	}
	return nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, id string) (oidc.IdToken, error) {
	const op = "RedisStore.Get"
	token, err := s.client.Get(ctx, redisKey(s.keyPrefix, keyTypeSession, id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return "", fmt.Errorf("%s: failed to get session: %w", op, err)
	}
	return oidc.IdToken(token), nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	const op = "RedisStore.Delete"
	if err := s.client.Del(ctx, redisKey(s.keyPrefix, keyTypeSession, id)).Err(); err != nil {
		return fmt.Errorf("%s: failed to delete session: %w", op, err)
	}
	return nil
}

// Ping checks redis connectivity (health check).
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// RedisRequestStore is a RequestStore backed by redis. Each request is
// written with a TTL matching its Expiration and read with GETDEL.
type RedisRequestStore struct {
	client    redis.UniversalClient
	keyPrefix string
	clock     clockwork.Clock
}

var _ RequestStore = (*RedisRequestStore)(nil)

// NewRedisRequestStore creates a RedisRequestStore using client.
//
// Supported options: WithKeyPrefix, WithClock
func NewRedisRequestStore(client redis.UniversalClient, opt ...Option) (*RedisRequestStore, error) {
	const op = "session.NewRedisRequestStore"
	if client == nil {
		return nil, fmt.Errorf("%s: redis client is nil: %w", op, ErrNilParameter)
	}
	opts := getStoreOpts(opt...)
	return &RedisRequestStore{
		client:    client,
		keyPrefix: opts.withKeyPrefix,
		clock:     opts.withClock,
	}, nil
}

// Write implements RequestStore.
func (s *RedisRequestStore) Write(ctx context.Context, req *oidc.Request) error {
	const op = "RedisRequestStore.Write"
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	ttl := req.Expiration.Sub(s.clock.Now())
	if ttl <= 0 {
		return fmt.Errorf("%s: request is expired: %w", op, oidc.ErrExpiredRequest)
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%s: failed to marshal request: %w", op, err)
	}
	if err := s.client.Set(ctx, redisKey(s.keyPrefix, keyTypeRequest, req.State), data, ttl).Err(); err != nil {
		return fmt.Errorf("%s: failed to store request: %w", op, err)
	}
	return nil
}

// Read implements RequestStore.
func (s *RedisRequestStore) Read(ctx context.Context, state string) (*oidc.Request, error) {
	const op = "RedisRequestStore.Read"
	data, err := s.client.GetDel(ctx, redisKey(s.keyPrefix, keyTypeRequest, state)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: failed to get request: %w", op, err)
	}
	var req oidc.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%s: failed to unmarshal request: %w", op, err)
	}
	if !req.Expiration.After(s.clock.Now()) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return &req, nil
}
