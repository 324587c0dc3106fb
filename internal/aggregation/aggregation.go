// Copyright (c) 2026 Bitlabs
// SPDX-License-Identifier: GPL-3.0-or-later

// Package aggregation defines the pluggable capability that maps a
// notification interval to the set of subscribed users. The embedding
// application injects its own Strategy at construction time; the digest
// batch never depends on a concrete implementation.
package aggregation

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitlabs-dev/objevents/internal/model"
	"github.com/bitlabs-dev/objevents/internal/store"
)

// ErrNotConfigured is returned when no Strategy has been supplied. An
// unconfigured system must fail loudly rather than look like a system with
// zero subscribers.
var ErrNotConfigured = errors.New("no user aggregation strategy configured")

// ErrUnsupportedInterval is returned when a Strategy does not support the
// requested interval.
var ErrUnsupportedInterval = errors.New("aggregation strategy does not support interval")

// Strategy resolves the set of users subscribed at a given cadence.
//
// An interval with no subscribers yields an empty slice and a nil error;
// only configuration problems are errors.
type Strategy interface {
	GetUsers(ctx context.Context, interval model.Interval) ([]int64, error)
}

// ProfileStrategy is the default Strategy: it reads the interval preference
// from the profiles table.
type ProfileStrategy struct {
	queries *store.Queries
}

// NewProfileStrategy creates a ProfileStrategy on top of the store.
func NewProfileStrategy(queries *store.Queries) *ProfileStrategy {
	return &ProfileStrategy{queries: queries}
}

// GetUsers returns the ids of users whose profile prefers the interval.
func (s *ProfileStrategy) GetUsers(ctx context.Context, interval model.Interval) ([]int64, error) {
	if _, err := model.ParseInterval(string(interval)); err != nil {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedInterval, interval)
	}
	ids, err := s.queries.ListUserIDsByInterval(ctx, string(interval))
	if err != nil {
		return nil, fmt.Errorf("listing users for interval %q: %w", interval, err)
	}
	return ids, nil
}
