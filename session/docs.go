// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package session stores relying party sessions and pending authentication
// requests, and carries the session id in a signed cookie.
//
// A session maps an opaque id to the raw id_token obtained at login. Stores
// never decide whether a session is still valid: that's the verifier's job
// on every read. RedisStore may expire keys after a configured TTL, which
// only bounds storage.
package session
