// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisDirectory is a Directory backed by redis. Each user is one key
// holding its JSON encoding, written with SETNX so concurrent first logins
// for the same subject create a single record.
type RedisDirectory struct {
	client    redis.UniversalClient
	keyPrefix string
}

var _ Directory = (*RedisDirectory)(nil)

// NewRedisDirectory creates a RedisDirectory using client.
//
// Supported options: WithKeyPrefix
func NewRedisDirectory(client redis.UniversalClient, opt ...Option) (*RedisDirectory, error) {
	const op = "user.NewRedisDirectory"
	if client == nil {
		return nil, fmt.Errorf("%s: redis client is nil: %w", op, ErrNilParameter)
	}
	opts := getDirectoryOpts(opt...)
	return &RedisDirectory{client: client, keyPrefix: opts.withKeyPrefix}, nil
}

func (d *RedisDirectory) key(id string) string {
	return d.keyPrefix + "user:" + id
}

// FindBySubject implements Directory.
func (d *RedisDirectory) FindBySubject(ctx context.Context, id string) (*User, error) {
	const op = "RedisDirectory.FindBySubject"
	data, err := d.client.Get(ctx, d.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: failed to get user: %w", op, err)
	}
	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("%s: failed to unmarshal user: %w", op, err)
	}
	return &u, nil
}

// Upsert implements Directory.
func (d *RedisDirectory) Upsert(ctx context.Context, u User) (*User, bool, error) {
	const op = "RedisDirectory.Upsert"
	if err := u.validate(); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	data, err := json.Marshal(u)
	if err != nil {
		return nil, false, fmt.Errorf("%s: failed to marshal user: %w", op, err)
	}
	created, err := d.client.SetNX(ctx, d.key(u.ID), data, 0).Result()
	if err != nil {
		return nil, false, fmt.Errorf("%s: failed to store user: %w", op, err)
	}
	if created {
		return &u, true, nil
	}
	existing, err := d.FindBySubject(ctx, u.ID)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return existing, false, nil
}

// Ping checks redis connectivity (health check).
func (d *RedisDirectory) Ping(ctx context.Context) error {
	return d.client.Ping(ctx).Err()
}
