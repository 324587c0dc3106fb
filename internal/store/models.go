// Copyright (c) 2026 Bitlabs
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"database/sql"
	"time"
)

// User is an account in the embedding application's directory.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Name         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile holds a user's notification preferences: the digest interval and
// an optional delivery address override.
type Profile struct {
	UserID      int64
	Interval    string
	NotifyEmail string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// EventType is a master-data row classifying events. The title is a unique
// slug used both as the digest grouping key and to pick display templates.
type EventType struct {
	ID        int64
	Title     string
	CreatedAt time.Time
}

// Event is a recorded occurrence tied to an optional user, an optional
// subject object and an optional produced object. Rows are immutable after
// creation except for the email_sent and read_by_user flags.
type Event struct {
	ID             int64
	UserID         sql.NullInt64
	EventTypeID    int64
	EmailSent      bool
	ReadByUser     bool
	ObjectKind     string
	ObjectID       int64
	ProducedKind   string
	ProducedID     int64
	AdditionalText string
	CreatedAt      time.Time
}
