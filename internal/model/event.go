// Copyright (c) 2026 Bitlabs
// SPDX-License-Identifier: GPL-3.0-or-later

// Package model defines domain types shared across the application:
// notification intervals, object references and event helpers.
package model

import (
	"fmt"
	"time"
)

// Interval is the cadence at which a user receives digest emails.
//
// For each interval your deployment uses, make sure a cron entry invokes
// "objevents send-digests <interval>" at that cadence, e.g.
//
//	realtime -> minute-by-minute
//	daily    -> every day at midnight
//	weekly   -> every sunday at 3 a.m.
//	monthly  -> first day of the month at 5 a.m.
type Interval string

// Notification intervals.
const (
	IntervalRealtime Interval = "realtime"
	IntervalDaily    Interval = "daily"
	IntervalWeekly   Interval = "weekly"
	IntervalMonthly  Interval = "monthly"
)

// Intervals returns all valid notification intervals in a fixed order.
func Intervals() []Interval {
	return []Interval{IntervalRealtime, IntervalDaily, IntervalWeekly, IntervalMonthly}
}

// ParseInterval validates an interval token.
func ParseInterval(s string) (Interval, error) {
	switch Interval(s) {
	case IntervalRealtime, IntervalDaily, IntervalWeekly, IntervalMonthly:
		return Interval(s), nil
	}
	return "", fmt.Errorf("invalid interval %q (valid: realtime, daily, weekly, monthly)", s)
}

// ObjectRef is an explicit (kind, id) reference to an entity owned by the
// embedding application. The zero value means "no reference": a global
// event has no subject object, and most events produce no object.
type ObjectRef struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
}

// IsZero reports whether the reference points at nothing.
func (r ObjectRef) IsZero() bool {
	return r.Kind == "" && r.ID == 0
}

func (r ObjectRef) String() string {
	if r.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// TimeSince renders a creation timestamp the way the notification feed
// displays it: a relative time for the last day, a short date within the
// current year, and a full date otherwise.
func TimeSince(created, now time.Time) string {
	delta := now.Sub(created)
	switch {
	case delta < time.Minute:
		return "just now"
	case delta < time.Hour:
		return fmt.Sprintf("%dm ago", int(delta.Minutes()))
	case delta < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(delta.Hours()))
	}
	if created.Year() != now.Year() {
		return created.Format("2 January 2006")
	}
	return created.Format("2 January")
}
