package repo

import (
	"context"
	"testing"
	"time"
)

func TestSubjectsStats_CountError_NoTable(t *testing.T) {
	db := newBareDB(t)
	if _, _, err := SubjectsStats(context.Background(), db, "c1"); err == nil {
		t.Fatalf("expected error due to missing subjects table")
	}
}

func TestSubjectsStats_ZeroRows(t *testing.T) {
	db := newTestDB(t)
	count, maxAt, err := SubjectsStats(context.Background(), db, "c1")
	if err != nil {
		t.Fatalf("SubjectsStats error: %v", err)
	}
	if count != 0 || maxAt != nil {
		t.Fatalf("expected (0, nil), got (%d, %v)", count, maxAt)
	}
}

func TestSubjectsStats_Success_FilterAndMax(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	t1 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC) // max for c1
	t3 := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)   // other channel

	seedSubject(t, db, "c1", t1)
	seedSubject(t, db, "c1", t2)
	seedSubject(t, db, "c2", t3)

	count, maxAt, err := SubjectsStats(ctx, db, "c1")
	if err != nil {
		t.Fatalf("SubjectsStats error: %v", err)
	}
	if count != 2 || maxAt == nil || !maxAt.Equal(t2) {
		t.Fatalf("expected (2, %v), got (%d, %v)", t2, count, maxAt)
	}
}

func TestMessagesStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	t0 := time.Date(2025, 1, 2, 15, 0, 0, 0, time.UTC)
	s := seedSubject(t, db, "c1", t0)

	count, maxAt, err := MessagesStats(ctx, db, s.ID)
	if err != nil || count != 0 || maxAt != nil {
		t.Fatalf("expected (0, nil, nil), got (%d, %v, %v)", count, maxAt, err)
	}

	seedMessage(t, db, s.ID, "a", t0)
	seedMessage(t, db, s.ID, "b", t0.Add(time.Minute))

	count, maxAt, err = MessagesStats(ctx, db, s.ID)
	if err != nil {
		t.Fatalf("MessagesStats: %v", err)
	}
	if count != 2 || maxAt == nil || !maxAt.Equal(t0.Add(time.Minute)) {
		t.Fatalf("unexpected stats: %d, %v", count, maxAt)
	}
}
