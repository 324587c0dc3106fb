// Copyright (c) 2026 Bitlabs
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bitlabs-dev/objevents/internal/middleware"
	"github.com/bitlabs-dev/objevents/internal/model"
	"github.com/bitlabs-dev/objevents/internal/service"
)

// FeedHandler serves the notification feed: listing a user's events and
// marking them read.
type FeedHandler struct {
	events  *service.EventService
	perPage int
}

// NewFeedHandler creates a new FeedHandler.
func NewFeedHandler(events *service.EventService, perPage int) *FeedHandler {
	return &FeedHandler{events: events, perPage: perPage}
}

// FeedEvent is one event as returned by the list endpoint.
type FeedEvent struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Object    *model.ObjectRef `json:"object,omitempty"`
	Produced  *model.ObjectRef `json:"produced,omitempty"`
	Read      bool            `json:"read"`
	CreatedAt time.Time       `json:"created_at"`
	TimeSince string          `json:"time_since"`
}

// FeedResponse is the list endpoint's response body.
type FeedResponse struct {
	Events      []FeedEvent `json:"events"`
	UnreadCount int64       `json:"unread_count"`
	Pagination  Pagination  `json:"pagination"`
}

// List handles GET /events - returns the authenticated user's events
// newest-first, paginated.
func (h *FeedHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	total, err := h.events.CountEventsForUser(r.Context(), user.ID)
	if err != nil {
		logAndInternalError(w, "failed to count events", "error", err)
		return
	}

	pagination := BuildPagination(ParsePageParam(r), total, h.perPage)
	offset := int64((pagination.Page - 1) * h.perPage)

	rows, err := h.events.EventsForUser(r.Context(), user.ID, int64(h.perPage), offset)
	if err != nil {
		logAndInternalError(w, "failed to list events", "error", err)
		return
	}

	unread, err := h.events.UnreadCount(r.Context(), user.ID)
	if err != nil {
		logAndInternalError(w, "failed to count unread events", "error", err)
		return
	}

	now := time.Now()
	events := make([]FeedEvent, len(rows))
	for i, row := range rows {
		events[i] = FeedEvent{
			ID:        row.ID,
			Type:      row.TypeTitle,
			Text:      row.AdditionalText,
			Read:      row.ReadByUser,
			CreatedAt: row.CreatedAt,
			TimeSince: model.TimeSince(row.CreatedAt, now),
		}
		if obj := (model.ObjectRef{Kind: row.ObjectKind, ID: row.ObjectID}); !obj.IsZero() {
			events[i].Object = &obj
		}
		if prod := (model.ObjectRef{Kind: row.ProducedKind, ID: row.ProducedID}); !prod.IsZero() {
			events[i].Produced = &prod
		}
	}

	writeJSON(w, http.StatusOK, FeedResponse{
		Events:      events,
		UnreadCount: unread,
		Pagination:  pagination,
	})
}

// Mark handles POST /events/mark. The form accepts either a single id
// (single_mark=42), a comma-separated bulk list (mark_ids=1,2,3) or
// all=true. Programmatic callers get a short "ok" body, browsers a
// redirect back to the feed.
func (h *FeedHandler) Mark(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	switch {
	case r.PostForm.Get("single_mark") != "":
		id, err := strconv.ParseInt(r.PostForm.Get("single_mark"), 10, 64)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		// Foreign and missing ids both read as not-found so callers
		// cannot probe for other users' events.
		if _, err := h.events.GetEventForUser(r.Context(), id, user.ID); err != nil {
			if errors.Is(err, service.ErrNotFound) {
				http.NotFound(w, r)
				return
			}
			logAndInternalError(w, "failed to load event", "error", err, "event_id", id)
			return
		}
		if _, err := h.events.MarkRead(r.Context(), user.ID, []int64{id}); err != nil {
			logAndInternalError(w, "failed to mark event read", "error", err, "event_id", id)
			return
		}

	case r.PostForm.Get("mark_ids") != "":
		ids, err := parseIDList(r.PostForm.Get("mark_ids"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		// Bulk marking ignores foreign and missing ids; only the valid
		// owned subset is updated, in one statement.
		if _, err := h.events.MarkRead(r.Context(), user.ID, ids); err != nil {
			logAndInternalError(w, "failed to mark events read", "error", err)
			return
		}

	case r.PostForm.Get("all") != "":
		if _, err := h.events.MarkAllRead(r.Context(), user.ID); err != nil {
			logAndInternalError(w, "failed to mark all events read", "error", err)
			return
		}

	default:
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if wantsAck(r) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
		return
	}
	http.Redirect(w, r, "/events", http.StatusSeeOther)
}

// parseIDList parses a comma-separated list of event ids.
func parseIDList(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
