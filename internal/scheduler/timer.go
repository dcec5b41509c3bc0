// Package scheduler provides the scheduled publication engine for PostFarm.
//
// It schedules one-shot publish jobs keyed by post and retry generation,
// fires them at their scheduled times, and applies the retry/backoff policy
// on failure.
package scheduler

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// jobEntry tracks information about a pending timer.
type jobEntry struct {
	timer       *time.Timer
	scheduledAt time.Time
	fireAt      time.Time
}

// JobTimer holds a collection of one-shot timers keyed by job key. Scheduling
// under an existing key replaces the pending job rather than duplicating it.
// State is memory-only; it is rebuilt from the store at startup.
type JobTimer struct {
	mu   sync.RWMutex
	jobs map[string]*jobEntry
}

// NewJobTimer creates an empty JobTimer.
func NewJobTimer() *JobTimer {
	return &JobTimer{jobs: make(map[string]*jobEntry)}
}

// ScheduleAt registers fn to run once at the given time under key, replacing
// any pending job with the same key. Fire times in the past fire immediately.
func (t *JobTimer) ScheduleAt(key string, when time.Time, fn func()) {
	delay := time.Until(when)
	if delay < 0 {
		slog.Warn("JobTimer ScheduleAt: fire time is in the past, firing immediately", "key", key, "when", when)
		delay = 0
	}

	t.mu.Lock()
	if existing, ok := t.jobs[key]; ok {
		existing.timer.Stop()
		slog.Debug("JobTimer ScheduleAt: replacing existing job", "key", key)
	}
	entry := &jobEntry{scheduledAt: time.Now(), fireAt: when}
	entry.timer = time.AfterFunc(delay, func() {
		t.run(key, entry, fn)
	})
	t.jobs[key] = entry
	t.mu.Unlock()

	slog.Debug("JobTimer ScheduleAt succeeded", "key", key, "delay", delay)
}

// run executes a fired job exactly once. Panics in the callback are recovered
// so a misbehaving job cannot take down the timer loop.
func (t *JobTimer) run(key string, entry *jobEntry, fn func()) {
	defer func() {
		t.mu.Lock()
		// A replacement may have been registered while fn ran; only remove
		// the entry this firing belongs to.
		if current, ok := t.jobs[key]; ok && current == entry {
			delete(t.jobs, key)
		}
		t.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("JobTimer run: job callback panicked", "key", key, "panic", r)
		}
	}()

	slog.Debug("JobTimer run: firing job", "key", key)
	fn()
}

// Cancel removes a pending job. Cancelling an unknown key is a no-op.
func (t *JobTimer) Cancel(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, ok := t.jobs[key]; ok {
		entry.timer.Stop()
		delete(t.jobs, key)
		slog.Debug("JobTimer Cancel succeeded", "key", key)
		return
	}
	slog.Debug("JobTimer Cancel: job not found", "key", key)
}

// Stop cancels all pending jobs without running them.
func (t *JobTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	slog.Debug("JobTimer stopping all jobs", "count", len(t.jobs))
	for _, entry := range t.jobs {
		entry.timer.Stop()
	}
	t.jobs = make(map[string]*jobEntry)
}

// Pending returns the keys of all pending jobs, sorted.
func (t *JobTimer) Pending() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	keys := make([]string, 0, len(t.jobs))
	for key := range t.jobs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
