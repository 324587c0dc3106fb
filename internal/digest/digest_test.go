// Copyright (c) 2026 Bitlabs
// SPDX-License-Identifier: GPL-3.0-or-later

package digest

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitlabs-dev/objevents/internal/aggregation"
	"github.com/bitlabs-dev/objevents/internal/mailer"
	"github.com/bitlabs-dev/objevents/internal/model"
	"github.com/bitlabs-dev/objevents/internal/store"
	"github.com/bitlabs-dev/objevents/internal/testutil"
)

type fixture struct {
	db       *sql.DB
	queries  *store.Queries
	recorder *mailer.Recorder
	runner   *Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, cleanup := testutil.TestDB(t)
	t.Cleanup(cleanup)

	queries := store.New(db)
	recorder := mailer.NewRecorder()
	strategy := aggregation.NewProfileStrategy(queries)
	return &fixture{
		db:       db,
		queries:  queries,
		recorder: recorder,
		runner:   NewRunner(db, strategy, recorder, testutil.TestLogger()),
	}
}

func (f *fixture) addUser(t *testing.T, email, interval, notifyEmail string) store.User {
	t.Helper()
	ctx := context.Background()
	now := time.Now()
	user, err := f.queries.CreateUser(ctx, store.CreateUserParams{
		Email:        email,
		PasswordHash: "x",
		Name:         "User " + email,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	require.NoError(t, err)
	_, err = f.queries.UpsertProfile(ctx, store.UpsertProfileParams{
		UserID:      user.ID,
		Interval:    interval,
		NotifyEmail: notifyEmail,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	require.NoError(t, err)
	return user
}

func (f *fixture) addEvent(t *testing.T, userID int64, typeTitle string) store.Event {
	t.Helper()
	ctx := context.Background()
	eventType, err := f.queries.GetEventTypeByTitle(ctx, typeTitle)
	if errors.Is(err, sql.ErrNoRows) {
		eventType, err = f.queries.CreateEventType(ctx, store.CreateEventTypeParams{
			Title:     typeTitle,
			CreatedAt: time.Now(),
		})
	}
	require.NoError(t, err)

	event, err := f.queries.CreateEvent(ctx, store.CreateEventParams{
		UserID:      sql.NullInt64{Int64: userID, Valid: true},
		EventTypeID: eventType.ID,
		CreatedAt:   time.Now(),
	})
	require.NoError(t, err)
	return event
}

func TestRunGroupsByUserAndType(t *testing.T) {
	f := newFixture(t)
	userA := f.addUser(t, "a@example.com", "daily", "")
	userB := f.addUser(t, "b@example.com", "daily", "")

	// Interleaved creation: grouping must come from the query order, not
	// from insertion order.
	f.addEvent(t, userA.ID, "comment")
	f.addEvent(t, userB.ID, "comment")
	f.addEvent(t, userA.ID, "like")
	f.addEvent(t, userA.ID, "comment")

	summary, err := f.runner.Run(context.Background(), model.IntervalDaily)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.EmailsSent)
	assert.Equal(t, 4, summary.EventsProcessed)
	assert.Zero(t, summary.SkippedUsers)
	assert.Zero(t, summary.FailedSends)
	assert.NotEmpty(t, summary.RunID)

	sent := f.recorder.Sent()
	require.Len(t, sent, 2)

	digestA := sent[0]
	assert.Equal(t, "a@example.com", digestA.RecipientEmail)
	assert.Equal(t, []string{"comment", "like"}, digestA.TypeOrder)
	assert.Len(t, digestA.EventTypes["comment"], 2)
	assert.Len(t, digestA.EventTypes["like"], 1)
	assert.Equal(t, 3, digestA.Total())

	digestB := sent[1]
	assert.Equal(t, "b@example.com", digestB.RecipientEmail)
	assert.Equal(t, 1, digestB.Total())
}

func TestRunFlushesLastUser(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "only@example.com", "daily", "")
	f.addEvent(t, user.ID, "comment")

	summary, err := f.runner.Run(context.Background(), model.IntervalDaily)
	require.NoError(t, err)

	// A single user never triggers a user-change in the stream; the
	// trailing flush must still deliver.
	assert.Equal(t, 1, summary.EmailsSent)
	require.Len(t, f.recorder.Sent(), 1)
}

func TestRunSecondRunIsNoop(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "a@example.com", "daily", "")
	f.addEvent(t, user.ID, "comment")

	_, err := f.runner.Run(context.Background(), model.IntervalDaily)
	require.NoError(t, err)

	summary, err := f.runner.Run(context.Background(), model.IntervalDaily)
	require.NoError(t, err)

	assert.True(t, summary.NoEvents)
	assert.Zero(t, summary.EmailsSent)
	assert.Equal(t, "No events to send.", summary.String())
	require.Len(t, f.recorder.Sent(), 1, "no second email may go out")
}

func TestRunMarksEventsSent(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "a@example.com", "daily", "")
	event := f.addEvent(t, user.ID, "comment")

	_, err := f.runner.Run(context.Background(), model.IntervalDaily)
	require.NoError(t, err)

	got, err := f.queries.GetEventForUser(context.Background(), event.ID, user.ID)
	require.NoError(t, err)
	assert.True(t, got.EmailSent)
	assert.False(t, got.ReadByUser, "sending must not touch the read flag")
}

func TestRunNoUsers(t *testing.T) {
	f := newFixture(t)

	summary, err := f.runner.Run(context.Background(), model.IntervalWeekly)
	require.NoError(t, err)

	assert.True(t, summary.NoUsers)
	assert.Equal(t, "No users to send a weekly email.", summary.String())
}

func TestRunOnlyMatchingInterval(t *testing.T) {
	f := newFixture(t)
	daily := f.addUser(t, "daily@example.com", "daily", "")
	weekly := f.addUser(t, "weekly@example.com", "weekly", "")
	f.addEvent(t, daily.ID, "comment")
	f.addEvent(t, weekly.ID, "comment")

	summary, err := f.runner.Run(context.Background(), model.IntervalDaily)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.EmailsSent)
	sent := f.recorder.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "daily@example.com", sent[0].RecipientEmail)

	// The weekly user's event is untouched and goes out on its own run.
	summary, err = f.runner.Run(context.Background(), model.IntervalWeekly)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.EmailsSent)
}

func TestRunInvalidInterval(t *testing.T) {
	f := newFixture(t)

	_, err := f.runner.Run(context.Background(), model.Interval("hourly"))
	require.Error(t, err)
}

func TestRunNilStrategy(t *testing.T) {
	db, cleanup := testutil.TestDB(t)
	t.Cleanup(cleanup)
	runner := NewRunner(db, nil, mailer.NewRecorder(), testutil.TestLogger())

	_, err := runner.Run(context.Background(), model.IntervalDaily)
	require.ErrorIs(t, err, aggregation.ErrNotConfigured)
}

func TestRunNotifyEmailOverride(t *testing.T) {
	f := newFixture(t)
	user := f.addUser(t, "account@example.com", "daily", "override@example.com")
	f.addEvent(t, user.ID, "comment")

	_, err := f.runner.Run(context.Background(), model.IntervalDaily)
	require.NoError(t, err)

	sent := f.recorder.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "override@example.com", sent[0].RecipientEmail)
}

func TestRunSkipsUserWithoutAddress(t *testing.T) {
	f := newFixture(t)
	blank := f.addUser(t, "", "daily", "")
	other := f.addUser(t, "b@example.com", "daily", "")
	f.addEvent(t, blank.ID, "comment")
	f.addEvent(t, other.ID, "comment")

	summary, err := f.runner.Run(context.Background(), model.IntervalDaily)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.SkippedUsers)
	assert.Equal(t, 1, summary.EmailsSent)
	sent := f.recorder.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "b@example.com", sent[0].RecipientEmail)
}

func TestRunTransportFailureContinues(t *testing.T) {
	f := newFixture(t)
	userA := f.addUser(t, "a@example.com", "daily", "")
	userB := f.addUser(t, "b@example.com", "daily", "")
	f.addEvent(t, userA.ID, "comment")
	f.addEvent(t, userB.ID, "comment")

	f.recorder.Err = errors.New("relay down")

	summary, err := f.runner.Run(context.Background(), model.IntervalDaily)
	require.NoError(t, err, "a transport error is not a run error")

	assert.Equal(t, 2, summary.FailedSends)
	assert.Zero(t, summary.EmailsSent)
	assert.Equal(t, 2, summary.EventsProcessed)

	// The events stay claimed: flaky transports must not produce
	// double-sends on the next run.
	summary, err = f.runner.Run(context.Background(), model.IntervalDaily)
	require.NoError(t, err)
	assert.True(t, summary.NoEvents)
}

func TestSummaryString(t *testing.T) {
	s := Summary{EmailsSent: 2, EventsProcessed: 5, Elapsed: 1500 * time.Millisecond}
	assert.Equal(t, "The run took 1.5 seconds to finish. Sent 2 emails for 5 events.", s.String())
}
