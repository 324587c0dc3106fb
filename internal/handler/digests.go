// Copyright (c) 2026 Bitlabs
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bitlabs-dev/objevents/internal/model"
	"github.com/bitlabs-dev/objevents/internal/scheduler"
)

// DigestHandler exposes the manual digest trigger.
type DigestHandler struct {
	scheduler *scheduler.Scheduler
}

// NewDigestHandler creates a new DigestHandler.
func NewDigestHandler(s *scheduler.Scheduler) *DigestHandler {
	return &DigestHandler{scheduler: s}
}

// Trigger handles POST /digests/{interval} - runs a digest for the interval
// outside its schedule.
func (h *DigestHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	interval, err := model.ParseInterval(chi.URLParam(r, "interval"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	summary, err := h.scheduler.Trigger(r.Context(), interval)
	if err != nil {
		if errors.Is(err, scheduler.ErrRateLimited) {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		logAndInternalError(w, "manual digest run failed", "interval", interval, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":           summary.RunID,
		"interval":         summary.Interval,
		"emails_sent":      summary.EmailsSent,
		"events_processed": summary.EventsProcessed,
		"skipped_users":    summary.SkippedUsers,
		"failed_sends":     summary.FailedSends,
		"elapsed_seconds":  summary.Elapsed.Seconds(),
	})
}
