package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-subject-engine/internal/domain"
	"github.com/tbourn/go-subject-engine/internal/repo"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:subjsvc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// testClock is a settable clock shared by the service and its jobs.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func newTestService(t *testing.T, gen Generator, edit func(*Settings)) (*SubjectService, *testClock) {
	t.Helper()
	set := DefaultSettings()
	if edit != nil {
		edit(&set)
	}
	store, err := NewSettingsStore(set)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	clock := &testClock{t: time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)}
	svc := NewSubjectService(newSvcDB(t), store, gen, zerolog.Nop())
	svc.Now = clock.Now
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc, clock
}

// record ingests content at clock time plus offset and waits for the
// background jobs it started.
func record(t *testing.T, svc *SubjectService, clock *testClock, channel, content string, at time.Time) *Ingested {
	t.Helper()
	clock.Set(at)
	res, err := svc.RecordMessage(context.Background(), channel, "u1", content, at)
	if err != nil {
		t.Fatalf("RecordMessage(%q): %v", content, err)
	}
	svc.WaitIdle()
	return res
}

// assertInvariants checks timestamp ordering, message counts and ownership
// for every subject in the database.
func assertInvariants(t *testing.T, db *gorm.DB) {
	t.Helper()
	ctx := context.Background()
	var subs []domain.Subject
	if err := db.Find(&subs).Error; err != nil {
		t.Fatalf("load subjects: %v", err)
	}
	for _, s := range subs {
		if s.LastMessageAt.Before(s.CreatedAt) || s.UpdatedAt.Before(s.LastMessageAt) {
			t.Fatalf("timestamp order violated for %s: %+v", s.ID, s)
		}
		n, err := repo.CountMessages(ctx, db, s.ID)
		if err != nil {
			t.Fatalf("count messages: %v", err)
		}
		if int64(s.MessageCount) != n {
			t.Fatalf("message_count %d != %d rows for %s", s.MessageCount, n, s.ID)
		}
	}
	var orphans int64
	db.Raw(`SELECT COUNT(*) FROM subject_messages m LEFT JOIN subjects s ON s.id = m.subject_id WHERE s.id IS NULL`).Scan(&orphans)
	if orphans != 0 {
		t.Fatalf("%d orphaned messages", orphans)
	}
}

func ptr[T any](v T) *T { return &v }
