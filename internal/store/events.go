// Copyright (c) 2026 Bitlabs
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

const createEventType = `
INSERT INTO event_types (title, created_at)
VALUES (?, ?)
RETURNING id, title, created_at
`

// CreateEventTypeParams holds the parameters for CreateEventType.
type CreateEventTypeParams struct {
	Title     string
	CreatedAt time.Time
}

// CreateEventType inserts a new event type. The unique constraint on title
// makes concurrent first-use race-safe: the loser gets a constraint error
// and retries as a lookup.
func (q *Queries) CreateEventType(ctx context.Context, arg CreateEventTypeParams) (EventType, error) {
	row := q.db.QueryRowContext(ctx, createEventType, arg.Title, arg.CreatedAt)
	var t EventType
	err := row.Scan(&t.ID, &t.Title, &t.CreatedAt)
	return t, err
}

const getEventTypeByTitle = `
SELECT id, title, created_at FROM event_types WHERE title = ?
`

// GetEventTypeByTitle returns the event type with the given title.
func (q *Queries) GetEventTypeByTitle(ctx context.Context, title string) (EventType, error) {
	row := q.db.QueryRowContext(ctx, getEventTypeByTitle, title)
	var t EventType
	err := row.Scan(&t.ID, &t.Title, &t.CreatedAt)
	return t, err
}

const listEventTypes = `
SELECT id, title, created_at FROM event_types ORDER BY title
`

// ListEventTypes returns all event types ordered by title.
func (q *Queries) ListEventTypes(ctx context.Context) ([]EventType, error) {
	rows, err := q.db.QueryContext(ctx, listEventTypes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var types []EventType
	for rows.Next() {
		var t EventType
		if err := rows.Scan(&t.ID, &t.Title, &t.CreatedAt); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

const createEvent = `
INSERT INTO events (
    user_id, event_type_id, object_kind, object_id,
    produced_kind, produced_id, additional_text, created_at
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id, user_id, event_type_id, email_sent, read_by_user,
    object_kind, object_id, produced_kind, produced_id,
    additional_text, created_at
`

// CreateEventParams holds the parameters for CreateEvent.
type CreateEventParams struct {
	UserID         sql.NullInt64
	EventTypeID    int64
	ObjectKind     string
	ObjectID       int64
	ProducedKind   string
	ProducedID     int64
	AdditionalText string
	CreatedAt      time.Time
}

// CreateEvent inserts a new event with both flags unset.
func (q *Queries) CreateEvent(ctx context.Context, arg CreateEventParams) (Event, error) {
	row := q.db.QueryRowContext(ctx, createEvent,
		arg.UserID, arg.EventTypeID, arg.ObjectKind, arg.ObjectID,
		arg.ProducedKind, arg.ProducedID, arg.AdditionalText, arg.CreatedAt)
	return scanEvent(row)
}

const getEventForUser = `
SELECT id, user_id, event_type_id, email_sent, read_by_user,
    object_kind, object_id, produced_kind, produced_id,
    additional_text, created_at
FROM events WHERE id = ? AND user_id = ?
`

// GetEventForUser returns an event only if it is owned by the given user.
// A foreign or missing id both yield sql.ErrNoRows so callers cannot tell
// the two apart.
func (q *Queries) GetEventForUser(ctx context.Context, id, userID int64) (Event, error) {
	row := q.db.QueryRowContext(ctx, getEventForUser, id, userID)
	return scanEvent(row)
}

// ListEventsForUserRow is an event joined with its type title.
type ListEventsForUserRow struct {
	Event
	TypeTitle string
}

const listEventsForUser = `
SELECT e.id, e.user_id, e.event_type_id, e.email_sent, e.read_by_user,
    e.object_kind, e.object_id, e.produced_kind, e.produced_id,
    e.additional_text, e.created_at, t.title
FROM events e
JOIN event_types t ON t.id = e.event_type_id
WHERE e.user_id = ?
ORDER BY e.created_at DESC, e.id DESC
LIMIT ? OFFSET ?
`

// ListEventsForUserParams holds the parameters for ListEventsForUser.
type ListEventsForUserParams struct {
	UserID int64
	Limit  int64
	Offset int64
}

// ListEventsForUser returns a user's events newest-first, ties broken by id.
func (q *Queries) ListEventsForUser(ctx context.Context, arg ListEventsForUserParams) ([]ListEventsForUserRow, error) {
	rows, err := q.db.QueryContext(ctx, listEventsForUser, arg.UserID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListEventsForUserRow
	for rows.Next() {
		var r ListEventsForUserRow
		if err := rows.Scan(
			&r.ID, &r.UserID, &r.EventTypeID, &r.EmailSent, &r.ReadByUser,
			&r.ObjectKind, &r.ObjectID, &r.ProducedKind, &r.ProducedID,
			&r.AdditionalText, &r.CreatedAt, &r.TypeTitle,
		); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const countEventsForUser = `
SELECT COUNT(*) FROM events WHERE user_id = ?
`

// CountEventsForUser returns the total number of events owned by a user.
func (q *Queries) CountEventsForUser(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countEventsForUser, userID).Scan(&n)
	return n, err
}

const countUnreadEventsForUser = `
SELECT COUNT(*) FROM events WHERE user_id = ? AND read_by_user = 0
`

// CountUnreadEventsForUser returns the number of unread events for a user.
func (q *Queries) CountUnreadEventsForUser(ctx context.Context, userID int64) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countUnreadEventsForUser, userID).Scan(&n)
	return n, err
}

// ListUnsentEventsForUsersRow is an unsent event joined with its type title
// and the owning user's account details, as consumed by the digest batch.
type ListUnsentEventsForUsersRow struct {
	Event
	TypeTitle string
	UserEmail string
	UserName  string
}

// ListUnsentEventsForUsers returns every event with email_sent = 0 owned by
// one of the given users, ordered by user then by insertion order so the
// digest can stream-group in a single pass.
func (q *Queries) ListUnsentEventsForUsers(ctx context.Context, userIDs []int64) ([]ListUnsentEventsForUsersRow, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	query := `
SELECT e.id, e.user_id, e.event_type_id, e.email_sent, e.read_by_user,
    e.object_kind, e.object_id, e.produced_kind, e.produced_id,
    e.additional_text, e.created_at, t.title, u.email, u.name
FROM events e
JOIN event_types t ON t.id = e.event_type_id
JOIN users u ON u.id = e.user_id
WHERE e.email_sent = 0 AND e.user_id IN (` + placeholders(len(userIDs)) + `)
ORDER BY e.user_id, e.id
`
	args := make([]any, len(userIDs))
	for i, id := range userIDs {
		args[i] = id
	}
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListUnsentEventsForUsersRow
	for rows.Next() {
		var r ListUnsentEventsForUsersRow
		if err := rows.Scan(
			&r.ID, &r.UserID, &r.EventTypeID, &r.EmailSent, &r.ReadByUser,
			&r.ObjectKind, &r.ObjectID, &r.ProducedKind, &r.ProducedID,
			&r.AdditionalText, &r.CreatedAt, &r.TypeTitle, &r.UserEmail, &r.UserName,
		); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const claimEventSent = `
UPDATE events SET email_sent = 1 WHERE id = ? AND email_sent = 0
`

// ClaimEventSent flips email_sent for a single event and reports whether
// this call won the claim. A concurrent digest run that already claimed the
// row sees email_sent = 1 and gets zero rows affected.
func (q *Queries) ClaimEventSent(ctx context.Context, id int64) (bool, error) {
	res, err := q.db.ExecContext(ctx, claimEventSent, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkEventsRead flips read_by_user for the given ids, restricted to rows
// owned by the user. Ids that do not exist or belong to someone else are
// silently ignored. Returns the number of rows updated.
func (q *Queries) MarkEventsRead(ctx context.Context, userID int64, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `UPDATE events SET read_by_user = 1 WHERE user_id = ? AND read_by_user = 0 AND id IN (` +
		placeholders(len(ids)) + `)`
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const markAllEventsRead = `
UPDATE events SET read_by_user = 1 WHERE user_id = ? AND read_by_user = 0
`

// MarkAllEventsRead flips read_by_user on every unread event of a user.
// Returns the number of rows updated.
func (q *Queries) MarkAllEventsRead(ctx context.Context, userID int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, markAllEventsRead, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// placeholders returns "?, ?, ..." with n placeholders.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func scanEvent(row *sql.Row) (Event, error) {
	var e Event
	err := row.Scan(
		&e.ID, &e.UserID, &e.EventTypeID, &e.EmailSent, &e.ReadByUser,
		&e.ObjectKind, &e.ObjectID, &e.ProducedKind, &e.ProducedID,
		&e.AdditionalText, &e.CreatedAt,
	)
	return e, err
}
