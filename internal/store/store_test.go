package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"
)

// testDB creates a temporary test database.
func testDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	f, err := os.CreateTemp(t.TempDir(), "objevents-test-*.db")
	if err != nil {
		t.Fatalf("creating temp file: %v", err)
	}
	dbPath := f.Name()
	f.Close()

	db, err := NewDB(dbPath)
	if err != nil {
		os.Remove(dbPath)
		t.Fatalf("NewDB: %v", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		os.Remove(dbPath)
		t.Fatalf("Migrate: %v", err)
	}

	return db, func() {
		db.Close()
		os.Remove(dbPath)
	}
}

func createTestUser(t *testing.T, q *Queries, email string) User {
	t.Helper()
	now := time.Now()
	user, err := q.CreateUser(context.Background(), CreateUserParams{
		Email:        email,
		PasswordHash: "hashed-password",
		Name:         "Test User",
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return user
}

func createTestEvent(t *testing.T, q *Queries, userID int64, typeID int64, createdAt time.Time) Event {
	t.Helper()
	event, err := q.CreateEvent(context.Background(), CreateEventParams{
		UserID:      sql.NullInt64{Int64: userID, Valid: true},
		EventTypeID: typeID,
		CreatedAt:   createdAt,
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	return event
}

func createTestType(t *testing.T, q *Queries, title string) EventType {
	t.Helper()
	eventType, err := q.CreateEventType(context.Background(), CreateEventTypeParams{
		Title:     title,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateEventType: %v", err)
	}
	return eventType
}

func TestCreateEventTypeUniqueTitle(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	q := New(db)
	first := createTestType(t, q, "comment")

	_, err := q.CreateEventType(context.Background(), CreateEventTypeParams{
		Title:     "comment",
		CreatedAt: time.Now(),
	})
	if err == nil {
		t.Fatal("expected unique constraint error for duplicate title")
	}

	got, err := q.GetEventTypeByTitle(context.Background(), "comment")
	if err != nil {
		t.Fatalf("GetEventTypeByTitle: %v", err)
	}
	if got.ID != first.ID {
		t.Errorf("ID = %d, want %d", got.ID, first.ID)
	}
}

func TestCreateEventDefaults(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	q := New(db)
	user := createTestUser(t, q, "a@example.com")
	eventType := createTestType(t, q, "comment")

	event := createTestEvent(t, q, user.ID, eventType.ID, time.Now())
	if event.ID == 0 {
		t.Error("event.ID should not be 0")
	}
	if event.EmailSent {
		t.Error("EmailSent should default to false")
	}
	if event.ReadByUser {
		t.Error("ReadByUser should default to false")
	}
}

func TestCreateSystemEventNoUser(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	q := New(db)
	eventType := createTestType(t, q, "system-log")

	event, err := q.CreateEvent(context.Background(), CreateEventParams{
		EventTypeID: eventType.ID,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if event.UserID.Valid {
		t.Error("system event should have no user")
	}
}

func TestListEventsForUserOrder(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	q := New(db)
	user := createTestUser(t, q, "a@example.com")
	eventType := createTestType(t, q, "comment")

	base := time.Now().Add(-time.Hour)
	e1 := createTestEvent(t, q, user.ID, eventType.ID, base)
	e2 := createTestEvent(t, q, user.ID, eventType.ID, base.Add(time.Minute))
	e3 := createTestEvent(t, q, user.ID, eventType.ID, base.Add(2*time.Minute))

	rows, err := q.ListEventsForUser(context.Background(), ListEventsForUserParams{
		UserID: user.ID,
		Limit:  10,
	})
	if err != nil {
		t.Fatalf("ListEventsForUser: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	want := []int64{e3.ID, e2.ID, e1.ID}
	for i, row := range rows {
		if row.ID != want[i] {
			t.Errorf("rows[%d].ID = %d, want %d", i, row.ID, want[i])
		}
	}
}

func TestListEventsForUserTieBreakByID(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	q := New(db)
	user := createTestUser(t, q, "a@example.com")
	eventType := createTestType(t, q, "comment")

	// Same timestamp: newer insertion wins.
	at := time.Now()
	e1 := createTestEvent(t, q, user.ID, eventType.ID, at)
	e2 := createTestEvent(t, q, user.ID, eventType.ID, at)

	rows, err := q.ListEventsForUser(context.Background(), ListEventsForUserParams{
		UserID: user.ID,
		Limit:  10,
	})
	if err != nil {
		t.Fatalf("ListEventsForUser: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[0].ID != e2.ID || rows[1].ID != e1.ID {
		t.Errorf("order = [%d %d], want [%d %d]", rows[0].ID, rows[1].ID, e2.ID, e1.ID)
	}
}

func TestListUnsentEventsForUsersGroupedOrder(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	q := New(db)
	userA := createTestUser(t, q, "a@example.com")
	userB := createTestUser(t, q, "b@example.com")
	eventType := createTestType(t, q, "comment")

	// Interleave creation across users; the query must still return all of
	// A's events before B's.
	createTestEvent(t, q, userA.ID, eventType.ID, time.Now())
	createTestEvent(t, q, userB.ID, eventType.ID, time.Now())
	createTestEvent(t, q, userA.ID, eventType.ID, time.Now())

	rows, err := q.ListUnsentEventsForUsers(context.Background(), []int64{userA.ID, userB.ID})
	if err != nil {
		t.Fatalf("ListUnsentEventsForUsers: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len(rows) = %d, want 3", len(rows))
	}
	if rows[0].UserID.Int64 != userA.ID || rows[1].UserID.Int64 != userA.ID || rows[2].UserID.Int64 != userB.ID {
		t.Errorf("user order = [%d %d %d], want [%d %d %d]",
			rows[0].UserID.Int64, rows[1].UserID.Int64, rows[2].UserID.Int64,
			userA.ID, userA.ID, userB.ID)
	}
	if rows[0].UserEmail != "a@example.com" {
		t.Errorf("UserEmail = %q, want %q", rows[0].UserEmail, "a@example.com")
	}
	if rows[0].TypeTitle != "comment" {
		t.Errorf("TypeTitle = %q, want %q", rows[0].TypeTitle, "comment")
	}
}

func TestListUnsentEventsSkipsSent(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	q := New(db)
	user := createTestUser(t, q, "a@example.com")
	eventType := createTestType(t, q, "comment")

	event := createTestEvent(t, q, user.ID, eventType.ID, time.Now())
	if _, err := q.ClaimEventSent(context.Background(), event.ID); err != nil {
		t.Fatalf("ClaimEventSent: %v", err)
	}

	rows, err := q.ListUnsentEventsForUsers(context.Background(), []int64{user.ID})
	if err != nil {
		t.Fatalf("ListUnsentEventsForUsers: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("len(rows) = %d, want 0", len(rows))
	}
}

func TestClaimEventSentOnce(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	q := New(db)
	user := createTestUser(t, q, "a@example.com")
	eventType := createTestType(t, q, "comment")
	event := createTestEvent(t, q, user.ID, eventType.ID, time.Now())

	claimed, err := q.ClaimEventSent(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("ClaimEventSent: %v", err)
	}
	if !claimed {
		t.Error("first claim should succeed")
	}

	claimed, err = q.ClaimEventSent(context.Background(), event.ID)
	if err != nil {
		t.Fatalf("ClaimEventSent: %v", err)
	}
	if claimed {
		t.Error("second claim should fail, row already sent")
	}
}

func TestMarkEventsReadScopedToOwner(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	q := New(db)
	userA := createTestUser(t, q, "a@example.com")
	userB := createTestUser(t, q, "b@example.com")
	eventType := createTestType(t, q, "comment")
	eventB := createTestEvent(t, q, userB.ID, eventType.ID, time.Now())

	n, err := q.MarkEventsRead(context.Background(), userA.ID, []int64{eventB.ID})
	if err != nil {
		t.Fatalf("MarkEventsRead: %v", err)
	}
	if n != 0 {
		t.Errorf("n = %d, want 0: user A must not mark user B's event", n)
	}

	got, err := q.GetEventForUser(context.Background(), eventB.ID, userB.ID)
	if err != nil {
		t.Fatalf("GetEventForUser: %v", err)
	}
	if got.ReadByUser {
		t.Error("user B's event must remain unread")
	}
}

func TestMarkEventsReadMixedSet(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	q := New(db)
	userA := createTestUser(t, q, "a@example.com")
	userB := createTestUser(t, q, "b@example.com")
	eventType := createTestType(t, q, "comment")

	mine1 := createTestEvent(t, q, userA.ID, eventType.ID, time.Now())
	mine2 := createTestEvent(t, q, userA.ID, eventType.ID, time.Now())
	theirs := createTestEvent(t, q, userB.ID, eventType.ID, time.Now())

	n, err := q.MarkEventsRead(context.Background(), userA.ID, []int64{mine1.ID, mine2.ID, theirs.ID, 99999})
	if err != nil {
		t.Fatalf("MarkEventsRead: %v", err)
	}
	if n != 2 {
		t.Errorf("n = %d, want 2: only the valid owned subset updates", n)
	}
}

func TestMarkAllEventsRead(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	q := New(db)
	user := createTestUser(t, q, "a@example.com")
	eventType := createTestType(t, q, "comment")
	for range 3 {
		createTestEvent(t, q, user.ID, eventType.ID, time.Now())
	}

	n, err := q.MarkAllEventsRead(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("MarkAllEventsRead: %v", err)
	}
	if n != 3 {
		t.Errorf("n = %d, want 3", n)
	}

	unread, err := q.CountUnreadEventsForUser(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("CountUnreadEventsForUser: %v", err)
	}
	if unread != 0 {
		t.Errorf("unread = %d, want 0", unread)
	}
}

func TestGetEventForUserNotOwned(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	q := New(db)
	userA := createTestUser(t, q, "a@example.com")
	userB := createTestUser(t, q, "b@example.com")
	eventType := createTestType(t, q, "comment")
	eventB := createTestEvent(t, q, userB.ID, eventType.ID, time.Now())

	_, err := q.GetEventForUser(context.Background(), eventB.ID, userA.ID)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err = %v, want sql.ErrNoRows", err)
	}

	_, err = q.GetEventForUser(context.Background(), 99999, userA.ID)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("err = %v, want sql.ErrNoRows for missing id", err)
	}
}

func TestListUserIDsByInterval(t *testing.T) {
	db, cleanup := testDB(t)
	defer cleanup()

	q := New(db)
	ctx := context.Background()
	userA := createTestUser(t, q, "a@example.com")
	userB := createTestUser(t, q, "b@example.com")
	userC := createTestUser(t, q, "c@example.com")

	now := time.Now()
	for _, p := range []UpsertProfileParams{
		{UserID: userA.ID, Interval: "daily", CreatedAt: now, UpdatedAt: now},
		{UserID: userB.ID, Interval: "daily", CreatedAt: now, UpdatedAt: now},
		{UserID: userC.ID, Interval: "weekly", CreatedAt: now, UpdatedAt: now},
	} {
		if _, err := q.UpsertProfile(ctx, p); err != nil {
			t.Fatalf("UpsertProfile: %v", err)
		}
	}

	daily, err := q.ListUserIDsByInterval(ctx, "daily")
	if err != nil {
		t.Fatalf("ListUserIDsByInterval: %v", err)
	}
	if len(daily) != 2 {
		t.Fatalf("len(daily) = %d, want 2", len(daily))
	}
	if daily[0] != userA.ID || daily[1] != userB.ID {
		t.Errorf("daily = %v, want [%d %d]", daily, userA.ID, userB.ID)
	}

	monthly, err := q.ListUserIDsByInterval(ctx, "monthly")
	if err != nil {
		t.Fatalf("ListUserIDsByInterval: %v", err)
	}
	if len(monthly) != 0 {
		t.Errorf("len(monthly) = %d, want 0", len(monthly))
	}
}
