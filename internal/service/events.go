// Copyright (c) 2026 Bitlabs
// SPDX-License-Identifier: GPL-3.0-or-later

// Package service provides the business logic on top of the store: event
// creation with lazy type registration, the notification feed reads and the
// read-flag updates.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/bitlabs-dev/objevents/internal/cache"
	"github.com/bitlabs-dev/objevents/internal/model"
	"github.com/bitlabs-dev/objevents/internal/store"
	"github.com/bitlabs-dev/objevents/internal/util"
)

// ErrNotFound is returned when a requested event does not exist or is not
// owned by the caller. The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("event not found")

// EventService provides event creation and feed functionality.
type EventService struct {
	queries   *store.Queries
	sanitizer *bluemonday.Policy
	cache     cache.Cache
	cacheTTL  time.Duration
}

// NewEventService creates a new EventService. The cache is optional; pass
// nil to disable unread-count caching.
func NewEventService(db *sql.DB, c cache.Cache, cacheTTL time.Duration) *EventService {
	return &EventService{
		queries:   store.New(db),
		sanitizer: bluemonday.StrictPolicy(),
		cache:     c,
		cacheTTL:  cacheTTL,
	}
}

// CreateEventParams holds the parameters for CreateEvent.
type CreateEventParams struct {
	// UserID is the user the event belongs to. Nil means a system event
	// that never appears in any feed or digest.
	UserID *int64

	// TypeTitle classifies the event. Non-slug titles are slugified, so
	// "Student News" and "student-news" resolve to the same type.
	TypeTitle string

	// Object is the entity the event is about. Zero means a global event.
	Object model.ObjectRef

	// Produced is the entity the event created, if any.
	Produced model.ObjectRef

	// AdditionalText is a short annotation. HTML is stripped before
	// storage since the text ends up in email bodies.
	AdditionalText string
}

// CreateEvent resolves or creates the event type by title and inserts one
// event row with both flags unset.
func (s *EventService) CreateEvent(ctx context.Context, p CreateEventParams) (store.Event, error) {
	title := p.TypeTitle
	if !util.IsValidSlug(title) {
		title = util.Slugify(title)
	}
	if title == "" {
		return store.Event{}, fmt.Errorf("event type title must not be empty")
	}

	eventType, err := s.getOrCreateEventType(ctx, title)
	if err != nil {
		return store.Event{}, err
	}

	var userID sql.NullInt64
	if p.UserID != nil {
		userID = sql.NullInt64{Int64: *p.UserID, Valid: true}
	}

	event, err := s.queries.CreateEvent(ctx, store.CreateEventParams{
		UserID:         userID,
		EventTypeID:    eventType.ID,
		ObjectKind:     p.Object.Kind,
		ObjectID:       p.Object.ID,
		ProducedKind:   p.Produced.Kind,
		ProducedID:     p.Produced.ID,
		AdditionalText: s.sanitizer.Sanitize(p.AdditionalText),
		CreatedAt:      time.Now(),
	})
	if err != nil {
		return store.Event{}, fmt.Errorf("creating event: %w", err)
	}

	if p.UserID != nil {
		s.invalidateUnread(ctx, *p.UserID)
	}

	return event, nil
}

// getOrCreateEventType resolves an event type by title, creating it on
// first use. Two concurrent first-uses of the same title race on the unique
// constraint; the loser retries as a lookup and returns the winner's row.
func (s *EventService) getOrCreateEventType(ctx context.Context, title string) (store.EventType, error) {
	eventType, err := s.queries.GetEventTypeByTitle(ctx, title)
	if err == nil {
		return eventType, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.EventType{}, fmt.Errorf("looking up event type %q: %w", title, err)
	}

	eventType, createErr := s.queries.CreateEventType(ctx, store.CreateEventTypeParams{
		Title:     title,
		CreatedAt: time.Now(),
	})
	if createErr == nil {
		return eventType, nil
	}

	// Lost the insert race: the unique constraint rejected us, so the row
	// must exist now.
	eventType, err = s.queries.GetEventTypeByTitle(ctx, title)
	if err != nil {
		return store.EventType{}, fmt.Errorf("creating event type %q: %w", title, createErr)
	}
	return eventType, nil
}

// EventsForUser returns a page of a user's events, newest first.
func (s *EventService) EventsForUser(ctx context.Context, userID int64, limit, offset int64) ([]store.ListEventsForUserRow, error) {
	return s.queries.ListEventsForUser(ctx, store.ListEventsForUserParams{
		UserID: userID,
		Limit:  limit,
		Offset: offset,
	})
}

// CountEventsForUser returns the total number of events owned by a user.
func (s *EventService) CountEventsForUser(ctx context.Context, userID int64) (int64, error) {
	return s.queries.CountEventsForUser(ctx, userID)
}

// UnreadCount returns the number of unread events for a user, served from
// the cache when possible.
func (s *EventService) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	key := unreadKey(userID)
	if s.cache != nil {
		if b, err := s.cache.Get(ctx, key); err == nil {
			if n, err := strconv.ParseInt(string(b), 10, 64); err == nil {
				return n, nil
			}
		}
	}

	n, err := s.queries.CountUnreadEventsForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, []byte(strconv.FormatInt(n, 10)), s.cacheTTL); err != nil {
			slog.Warn("failed to cache unread count", "user_id", userID, "error", err)
		}
	}
	return n, nil
}

// MarkRead flips read_by_user for the given ids in one bulk update,
// restricted to events owned by the user. Marking an already-read or
// foreign id is not an error; the update simply skips it.
func (s *EventService) MarkRead(ctx context.Context, userID int64, ids []int64) (int64, error) {
	n, err := s.queries.MarkEventsRead(ctx, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("marking events read: %w", err)
	}
	if n > 0 {
		s.invalidateUnread(ctx, userID)
	}
	return n, nil
}

// MarkAllRead flips read_by_user on every unread event of a user.
func (s *EventService) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	n, err := s.queries.MarkAllEventsRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("marking all events read: %w", err)
	}
	if n > 0 {
		s.invalidateUnread(ctx, userID)
	}
	return n, nil
}

// GetEventForUser returns an event only if owned by the user; a missing or
// foreign id yields ErrNotFound either way.
func (s *EventService) GetEventForUser(ctx context.Context, id, userID int64) (store.Event, error) {
	event, err := s.queries.GetEventForUser(ctx, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Event{}, ErrNotFound
	}
	if err != nil {
		return store.Event{}, err
	}
	return event, nil
}

// RecordSystemEvent creates an event with no user. Used by the logging
// handler to persist warnings and errors.
func (s *EventService) RecordSystemEvent(ctx context.Context, typeTitle, text string) error {
	_, err := s.CreateEvent(ctx, CreateEventParams{
		TypeTitle:      typeTitle,
		AdditionalText: text,
	})
	return err
}

func (s *EventService) invalidateUnread(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, unreadKey(userID)); err != nil {
		slog.Warn("failed to invalidate unread count", "user_id", userID, "error", err)
	}
}

func unreadKey(userID int64) string {
	return "unread:" + strconv.FormatInt(userID, 10)
}
