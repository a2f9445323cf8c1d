package services

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// keyedMutex serializes work per key while letting distinct keys proceed
// concurrently. Entries are reference counted and dropped when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock acquires the lock for key and returns its release function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e := k.locks[key]
	if e == nil {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// background runs fire-and-forget jobs with at most one job of a given kind
// in flight per channel. Extra triggers are dropped, never queued.
type background struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	sems   map[string]*semaphore.Weighted
	closed bool
	wg     sync.WaitGroup
}

func newBackground() *background {
	ctx, cancel := context.WithCancel(context.Background())
	return &background{ctx: ctx, cancel: cancel, sems: make(map[string]*semaphore.Weighted)}
}

// Go starts fn unless a job of the same kind is already running for the
// channel or the runner is closed. It reports whether fn was started.
func (b *background) Go(job, channelID string, fn func(ctx context.Context)) bool {
	key := job + "\x00" + channelID

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	sem := b.sems[key]
	if sem == nil {
		sem = semaphore.NewWeighted(1)
		b.sems[key] = sem
	}
	if !sem.TryAcquire(1) {
		b.mu.Unlock()
		subjectBackgroundDropped.WithLabelValues(job).Inc()
		return false
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		defer b.release(key, sem)
		fn(b.ctx)
	}()
	return true
}

func (b *background) release(key string, sem *semaphore.Weighted) {
	b.mu.Lock()
	sem.Release(1)
	// Idle semaphores are discarded so the map tracks only active channels.
	if sem.TryAcquire(1) {
		delete(b.sems, key)
	}
	b.mu.Unlock()
}

// Wait blocks until every started job returned.
func (b *background) Wait() { b.wg.Wait() }

// Close stops accepting jobs and waits for running ones. If ctx expires
// first, running jobs see their context cancelled and Close still waits for
// them to return.
func (b *background) Close(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.cancel()
		return nil
	case <-ctx.Done():
		b.cancel()
		<-done
		return ctx.Err()
	}
}
