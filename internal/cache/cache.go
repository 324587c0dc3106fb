// Copyright (c) 2026 Bitlabs
// SPDX-License-Identifier: GPL-3.0-or-later

// Package cache provides the caching layer used for per-user unread counts:
// an in-memory default and an optional Redis backend behind one interface.
package cache

import (
	"context"
	"time"
)

// Cache is the interface implemented by all cache backends.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get retrieves a value. Returns ErrCacheMiss if not found or expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the specified TTL. A zero TTL uses the
	// backend's default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key from the cache.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}

// Error represents an error type for cache operations.
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	// ErrCacheMiss indicates the key was not found in cache or has expired.
	ErrCacheMiss Error = "cache miss"

	// ErrCacheClosed indicates the cache has been closed.
	ErrCacheClosed Error = "cache closed"
)
