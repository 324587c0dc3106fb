// Copyright (c) 2026 Bitlabs
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"time"
)

const createUser = `
INSERT INTO users (email, password_hash, name, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
RETURNING id, email, password_hash, name, created_at, updated_at
`

// CreateUserParams holds the parameters for CreateUser.
type CreateUserParams struct {
	Email        string
	PasswordHash string
	Name         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateUser inserts a new user account.
func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRowContext(ctx, createUser,
		arg.Email, arg.PasswordHash, arg.Name, arg.CreatedAt, arg.UpdatedAt)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

const getUserByID = `
SELECT id, email, password_hash, name, created_at, updated_at
FROM users WHERE id = ?
`

// GetUserByID returns the user with the given id.
func (q *Queries) GetUserByID(ctx context.Context, id int64) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByID, id)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

const getUserByEmail = `
SELECT id, email, password_hash, name, created_at, updated_at
FROM users WHERE email = ?
`

// GetUserByEmail returns the user with the given email.
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRowContext(ctx, getUserByEmail, email)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

const upsertProfile = `
INSERT INTO profiles (user_id, interval, notify_email, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
    interval = excluded.interval,
    notify_email = excluded.notify_email,
    updated_at = excluded.updated_at
RETURNING user_id, interval, notify_email, created_at, updated_at
`

// UpsertProfileParams holds the parameters for UpsertProfile.
type UpsertProfileParams struct {
	UserID      int64
	Interval    string
	NotifyEmail string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UpsertProfile creates or replaces a user's notification preferences.
func (q *Queries) UpsertProfile(ctx context.Context, arg UpsertProfileParams) (Profile, error) {
	row := q.db.QueryRowContext(ctx, upsertProfile,
		arg.UserID, arg.Interval, arg.NotifyEmail, arg.CreatedAt, arg.UpdatedAt)
	var p Profile
	err := row.Scan(&p.UserID, &p.Interval, &p.NotifyEmail, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

const getProfileByUserID = `
SELECT user_id, interval, notify_email, created_at, updated_at
FROM profiles WHERE user_id = ?
`

// GetProfileByUserID returns the profile of the given user.
func (q *Queries) GetProfileByUserID(ctx context.Context, userID int64) (Profile, error) {
	row := q.db.QueryRowContext(ctx, getProfileByUserID, userID)
	var p Profile
	err := row.Scan(&p.UserID, &p.Interval, &p.NotifyEmail, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

const listUserIDsByInterval = `
SELECT user_id FROM profiles WHERE interval = ? ORDER BY user_id
`

// ListUserIDsByInterval returns the ids of all users whose profile prefers
// the given notification interval.
func (q *Queries) ListUserIDsByInterval(ctx context.Context, interval string) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, listUserIDsByInterval, interval)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
