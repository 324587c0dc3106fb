// Copyright (c) 2026 Bitlabs
// SPDX-License-Identifier: GPL-3.0-or-later

// Package digest implements the batch job that aggregates unsent events
// into one email per user, grouped by event type.
package digest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bitlabs-dev/objevents/internal/aggregation"
	"github.com/bitlabs-dev/objevents/internal/mailer"
	"github.com/bitlabs-dev/objevents/internal/model"
	"github.com/bitlabs-dev/objevents/internal/store"
)

// Runner executes digest runs. It is safe to reuse across runs but a single
// run performs no internal parallelism: the whole batch is one linear pass
// over a result set already ordered by user.
type Runner struct {
	queries  *store.Queries
	strategy aggregation.Strategy
	mailer   mailer.Mailer
	logger   *slog.Logger
}

// NewRunner creates a digest runner. The strategy and mailer are injected;
// a nil strategy makes every run fail with a configuration error.
func NewRunner(db *sql.DB, strategy aggregation.Strategy, m mailer.Mailer, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		queries:  store.New(db),
		strategy: strategy,
		mailer:   m,
		logger:   logger,
	}
}

// Summary reports the outcome of one digest run.
type Summary struct {
	RunID           string
	Interval        model.Interval
	EmailsSent      int
	EventsProcessed int
	SkippedUsers    int // users with no deliverable address
	FailedSends     int // transport errors, events stay marked sent
	NoUsers         bool
	NoEvents        bool
	Elapsed         time.Duration
}

// String renders the summary the way the command prints it.
func (s Summary) String() string {
	switch {
	case s.NoUsers:
		return fmt.Sprintf("No users to send a %s email.", s.Interval)
	case s.NoEvents:
		return "No events to send."
	}
	return fmt.Sprintf("The run took %.1f seconds to finish. Sent %d emails for %d events.",
		s.Elapsed.Seconds(), s.EmailsSent, s.EventsProcessed)
}

// userDigest accumulates one user's events grouped by type title while the
// stream is positioned on that user. Bucket order is first-seen order.
type userDigest struct {
	userID int64
	email  string
	name   string
	groups map[string][]mailer.Item
	order  []string
}

func (d *userDigest) add(row store.ListUnsentEventsForUsersRow, now time.Time) {
	if _, ok := d.groups[row.TypeTitle]; !ok {
		d.order = append(d.order, row.TypeTitle)
	}
	d.groups[row.TypeTitle] = append(d.groups[row.TypeTitle], mailer.Item{
		TypeTitle: row.TypeTitle,
		Text:      row.AdditionalText,
		Object:    model.ObjectRef{Kind: row.ObjectKind, ID: row.ObjectID},
		Produced:  model.ObjectRef{Kind: row.ProducedKind, ID: row.ProducedID},
		CreatedAt: row.CreatedAt,
		TimeSince: model.TimeSince(row.CreatedAt, now),
	})
}

func (d *userDigest) empty() bool {
	return d == nil || len(d.order) == 0
}

// Run executes one digest run for one interval.
//
// Configuration problems (invalid interval, missing or unsupported
// strategy) abort before any event is touched. Once processing starts, a
// user without a deliverable address or a failed send is counted and the
// run continues; the affected events stay marked sent, which trades a
// possible lost notification for never double-sending.
func (r *Runner) Run(ctx context.Context, interval model.Interval) (Summary, error) {
	start := time.Now()
	summary := Summary{
		RunID:    uuid.NewString(),
		Interval: interval,
	}
	logger := r.logger.With("run_id", summary.RunID, "interval", interval)

	if _, err := model.ParseInterval(string(interval)); err != nil {
		return summary, err
	}
	if r.strategy == nil {
		return summary, aggregation.ErrNotConfigured
	}

	userIDs, err := r.strategy.GetUsers(ctx, interval)
	if err != nil {
		return summary, fmt.Errorf("aggregating users: %w", err)
	}
	if len(userIDs) == 0 {
		summary.NoUsers = true
		summary.Elapsed = time.Since(start)
		logger.Info("digest run finished", "outcome", "no users")
		return summary, nil
	}

	rows, err := r.queries.ListUnsentEventsForUsers(ctx, userIDs)
	if err != nil {
		return summary, fmt.Errorf("listing unsent events: %w", err)
	}
	if len(rows) == 0 {
		summary.NoEvents = true
		summary.Elapsed = time.Since(start)
		logger.Info("digest run finished", "outcome", "no events")
		return summary, nil
	}

	now := time.Now()
	var current *userDigest
	for _, row := range rows {
		if !row.UserID.Valid {
			// System events never reach a digest; the user filter in the
			// query guarantees this, so treat it as data corruption.
			return summary, fmt.Errorf("unsent event %d has no user", row.ID)
		}

		if current != nil && current.userID != row.UserID.Int64 {
			r.flush(ctx, logger, current, &summary)
			current = nil
		}
		if current == nil {
			current = &userDigest{
				userID: row.UserID.Int64,
				email:  row.UserEmail,
				name:   row.UserName,
				groups: make(map[string][]mailer.Item),
			}
		}

		// Claim the row before it goes into the digest. A row already
		// claimed by an overlapping run is simply dropped here, which
		// keeps the two runs from double-sending the same event.
		claimed, err := r.queries.ClaimEventSent(ctx, row.ID)
		if err != nil {
			return summary, fmt.Errorf("marking event %d sent: %w", row.ID, err)
		}
		if !claimed {
			continue
		}

		current.add(row, now)
		summary.EventsProcessed++
	}

	// The last user in the stream has no following user-change row, so
	// flush explicitly.
	r.flush(ctx, logger, current, &summary)

	summary.Elapsed = time.Since(start)
	logger.Info("digest run finished",
		"emails_sent", summary.EmailsSent,
		"events_processed", summary.EventsProcessed,
		"skipped_users", summary.SkippedUsers,
		"failed_sends", summary.FailedSends,
		"elapsed", summary.Elapsed,
	)
	return summary, nil
}

// flush sends the accumulated digest for one user. Address resolution and
// transport failures are per-user: they are counted and the run moves on.
func (r *Runner) flush(ctx context.Context, logger *slog.Logger, d *userDigest, summary *Summary) {
	if d.empty() {
		return
	}

	address, err := r.resolveAddress(ctx, d.userID, d.email)
	if err != nil {
		logger.Warn("failed to resolve profile, using account email",
			"user_id", d.userID, "error", err)
		address = d.email
	}
	if address == "" {
		summary.SkippedUsers++
		logger.Warn("no deliverable address, skipping user", "user_id", d.userID)
		return
	}

	err = r.mailer.SendDigest(ctx, mailer.Digest{
		RecipientName:  d.name,
		RecipientEmail: address,
		Interval:       summary.Interval,
		EventTypes:     d.groups,
		TypeOrder:      d.order,
	})
	if err != nil {
		// The events are already marked sent. Deliberate trade-off: a
		// flaky transport must not cause double-sends on the next run.
		summary.FailedSends++
		logger.Error("failed to send digest", "user_id", d.userID, "error", err)
		return
	}
	summary.EmailsSent++
}

// resolveAddress applies the profile's notify-email override when present.
func (r *Runner) resolveAddress(ctx context.Context, userID int64, accountEmail string) (string, error) {
	profile, err := r.queries.GetProfileByUserID(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return accountEmail, nil
	}
	if err != nil {
		return "", err
	}
	return model.NotifyEmail(accountEmail, profile.NotifyEmail), nil
}
