package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBackground_OneJobPerChannel(t *testing.T) {
	bg := newBackground()
	release := make(chan struct{})
	started := make(chan struct{})

	if !bg.Go("meta", "c", func(context.Context) {
		close(started)
		<-release
	}) {
		t.Fatalf("first job not started")
	}
	<-started

	before := testutil.ToFloat64(subjectBackgroundDropped.WithLabelValues("meta"))
	if bg.Go("meta", "c", func(context.Context) {}) {
		t.Fatalf("second job for the same channel must be dropped")
	}
	if got := testutil.ToFloat64(subjectBackgroundDropped.WithLabelValues("meta")); got != before+1 {
		t.Fatalf("dropped counter = %v, want %v", got, before+1)
	}

	done := make(chan struct{})
	if !bg.Go("meta", "other", func(context.Context) { close(done) }) {
		t.Fatalf("job for another channel dropped")
	}
	if !bg.Go("merge", "c", func(context.Context) {}) {
		t.Fatalf("job of another kind dropped")
	}
	<-done

	close(release)
	bg.Wait()
	if !bg.Go("meta", "c", func(context.Context) {}) {
		t.Fatalf("job not started after the previous one finished")
	}
	bg.Wait()

	bg.mu.Lock()
	left := len(bg.sems)
	bg.mu.Unlock()
	if left != 0 {
		t.Fatalf("%d idle semaphores kept", left)
	}
}

func TestBackground_CloseCancelsOnDeadline(t *testing.T) {
	bg := newBackground()
	sawCancel := make(chan struct{})
	started := make(chan struct{})

	bg.Go("merge", "c", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(sawCancel)
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := bg.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Close = %v, want deadline exceeded", err)
	}
	select {
	case <-sawCancel:
	default:
		t.Fatalf("job returned without observing cancellation")
	}
	if bg.Go("merge", "c", func(context.Context) {}) {
		t.Fatalf("job started after Close")
	}
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	unlockA := k.Lock("a")

	acquired := make(chan struct{})
	go func() {
		unlock := k.Lock("a")
		close(acquired)
		unlock()
	}()

	// other keys are independent
	unlockB := k.Lock("b")
	unlockB()

	select {
	case <-acquired:
		t.Fatalf("second holder entered while the lock was held")
	case <-time.After(20 * time.Millisecond):
	}
	unlockA()
	<-acquired

	// wait for the goroutine's unlock to drop the entry
	deadline := time.Now().Add(time.Second)
	for {
		k.mu.Lock()
		n := len(k.locks)
		k.mu.Unlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("%d lock entries left", n)
		}
		time.Sleep(time.Millisecond)
	}
}
