package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/postfarm/postfarm/internal/models"
	"github.com/postfarm/postfarm/internal/store"
)

// mockPublisher records publish calls and fails while failures > 0.
type mockPublisher struct {
	mu       sync.Mutex
	calls    int
	failures int
}

func (m *mockPublisher) PublishPost(ctx context.Context, platform models.PlatformType, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failures > 0 {
		m.failures--
		return errors.New("boom")
	}
	return nil
}

func (m *mockPublisher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time { return c.now }

// failingStore wraps a Store and fails ListScheduledAfter.
type failingStore struct {
	store.Store
}

func (f *failingStore) ListScheduledAfter(now time.Time) ([]models.ScheduledPost, error) {
	return nil, errors.New("storage down")
}

func newScheduledPost(t *testing.T, st store.Store, when time.Time) *models.ScheduledPost {
	t.Helper()
	post := &models.ScheduledPost{
		UserID:        "local",
		DraftID:       "d1",
		Platform:      models.PlatformTwitter,
		Content:       "hello world",
		ScheduledTime: when,
		Status:        models.PostStatusScheduled,
	}
	if err := st.CreateScheduledPost(post); err != nil {
		t.Fatalf("CreateScheduledPost: %v", err)
	}
	return post
}

func waitForStatus(t *testing.T, st store.Store, id string, want models.PostStatus) *models.ScheduledPost {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		post, err := st.GetScheduledPost(id)
		if err != nil {
			t.Fatalf("GetScheduledPost: %v", err)
		}
		if post != nil && post.Status == want {
			return post
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("post %s never reached status %s", id, want)
	return nil
}

func TestJobKeyFormat(t *testing.T) {
	if got := jobKey("42", 1); got != "post_42_1" {
		t.Errorf("jobKey = %q, want post_42_1", got)
	}
}

func TestPublishSuccess(t *testing.T) {
	st := store.NewInMemoryStore()
	pub := &mockPublisher{}
	svc := NewService(st, pub)
	defer svc.Stop()

	post := newScheduledPost(t, st, time.Now().UTC().Add(-time.Second))
	svc.SchedulePost(post, 0)

	updated := waitForStatus(t, st, post.ID, models.PostStatusPosted)
	if updated.PostedAt == nil {
		t.Error("PostedAt not set on published post")
	}
	if updated.ErrorMessage != "" {
		t.Errorf("ErrorMessage = %q, want empty", updated.ErrorMessage)
	}
	if pub.callCount() != 1 {
		t.Errorf("publish calls = %d, want 1", pub.callCount())
	}
}

func TestPublishFailureSchedulesRetryWithBackoff(t *testing.T) {
	st := store.NewInMemoryStore()
	pub := &mockPublisher{failures: 1}
	clock := &fixedClock{now: time.Now().UTC().Truncate(time.Second)}
	svc := NewService(st, pub, WithClock(clock))
	defer svc.Stop()

	post := newScheduledPost(t, st, time.Now().UTC().Add(-time.Second))
	svc.SchedulePost(post, 0)

	deadline := time.Now().Add(2 * time.Second)
	var updated *models.ScheduledPost
	for time.Now().Before(deadline) {
		p, _ := st.GetScheduledPost(post.ID)
		if p != nil && p.ErrorMessage != "" {
			updated = p
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if updated == nil {
		t.Fatal("retry state never persisted")
	}

	if updated.Status != models.PostStatusScheduled {
		t.Errorf("Status = %s, want scheduled", updated.Status)
	}
	want := "Attempt 1 failed: boom. Retrying in 300s"
	if updated.ErrorMessage != want {
		t.Errorf("ErrorMessage = %q, want %q", updated.ErrorMessage, want)
	}
	wantTime := clock.now.Add(5 * time.Minute)
	if !updated.ScheduledTime.Equal(wantTime) {
		t.Errorf("ScheduledTime = %v, want %v", updated.ScheduledTime, wantTime)
	}

	found := false
	for _, key := range svc.Pending() {
		if key == jobKey(post.ID, 1) {
			found = true
		}
	}
	if !found {
		t.Errorf("Pending() = %v, missing retry generation key", svc.Pending())
	}
}

func TestPermanentFailureAfterMaxRetries(t *testing.T) {
	st := store.NewInMemoryStore()
	pub := &mockPublisher{failures: 10}
	clock := &fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewService(st, pub, WithClock(clock))
	defer svc.Stop()

	post := newScheduledPost(t, st, clock.now)
	svc.handlePublishFailure(post, svc.maxRetries, errors.New("boom"))

	updated, err := st.GetScheduledPost(post.ID)
	if err != nil || updated == nil {
		t.Fatalf("GetScheduledPost: %v", err)
	}
	if updated.Status != models.PostStatusFailed {
		t.Errorf("Status = %s, want failed", updated.Status)
	}
	want := fmt.Sprintf("Failed after %d retry attempts. Last error: boom", svc.maxRetries)
	if updated.ErrorMessage != want {
		t.Errorf("ErrorMessage = %q, want %q", updated.ErrorMessage, want)
	}
}

func TestRetryDelayClampedToLastEntry(t *testing.T) {
	svc := NewService(store.NewInMemoryStore(), &mockPublisher{})

	cases := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, 5 * time.Minute},
		{1, 15 * time.Minute},
		{2, time.Hour},
		{3, time.Hour},
		{10, time.Hour},
	}
	for _, c := range cases {
		if got := svc.retryDelay(c.retryCount); got != c.want {
			t.Errorf("retryDelay(%d) = %v, want %v", c.retryCount, got, c.want)
		}
	}
}

func TestResolvedPostIsNotRepublished(t *testing.T) {
	for _, status := range []models.PostStatus{models.PostStatusPosted, models.PostStatusCancelled} {
		st := store.NewInMemoryStore()
		pub := &mockPublisher{}
		svc := NewService(st, pub)

		post := newScheduledPost(t, st, time.Now().UTC())
		post.Status = status
		if err := st.UpdateScheduledPost(post); err != nil {
			t.Fatalf("UpdateScheduledPost: %v", err)
		}

		svc.publishPost(context.Background(), post.ID, 0)
		if pub.callCount() != 0 {
			t.Errorf("status %s: publish calls = %d, want 0", status, pub.callCount())
		}
	}
}

func TestPublishMissingPostIsSkipped(t *testing.T) {
	st := store.NewInMemoryStore()
	pub := &mockPublisher{}
	svc := NewService(st, pub)

	svc.publishPost(context.Background(), "999", 0)
	if pub.callCount() != 0 {
		t.Errorf("publish calls = %d, want 0", pub.callCount())
	}
}

func TestStartReconcilesFuturePostsOnly(t *testing.T) {
	st := store.NewInMemoryStore()
	clock := &fixedClock{now: time.Now().UTC()}
	svc := NewService(st, &mockPublisher{}, WithClock(clock))
	defer svc.Stop()

	future := newScheduledPost(t, st, clock.now.Add(time.Hour))
	past := newScheduledPost(t, st, clock.now.Add(-time.Hour))
	posted := newScheduledPost(t, st, clock.now.Add(2*time.Hour))
	posted.Status = models.PostStatusPosted
	if err := st.UpdateScheduledPost(posted); err != nil {
		t.Fatalf("UpdateScheduledPost: %v", err)
	}

	svc.Start(context.Background())

	pending := svc.Pending()
	if len(pending) != 1 || pending[0] != jobKey(future.ID, 0) {
		t.Errorf("Pending() = %v, want only %s", pending, jobKey(future.ID, 0))
	}

	// The missed post stays dormant rather than firing at startup.
	p, _ := st.GetScheduledPost(past.ID)
	if p.Status != models.PostStatusScheduled {
		t.Errorf("missed post status = %s, want scheduled", p.Status)
	}
}

func TestStartWithFailingStoreLeavesScheduleEmpty(t *testing.T) {
	st := store.NewInMemoryStore()
	newScheduledPost(t, st, time.Now().UTC().Add(time.Hour))

	svc := NewService(&failingStore{Store: st}, &mockPublisher{})
	defer svc.Stop()

	svc.Start(context.Background())
	if got := svc.Pending(); len(got) != 0 {
		t.Errorf("Pending() = %v, want empty on storage failure", got)
	}
}

func TestUnschedulePostCancelsCurrentGeneration(t *testing.T) {
	st := store.NewInMemoryStore()
	svc := NewService(st, &mockPublisher{})
	defer svc.Stop()

	post := newScheduledPost(t, st, time.Now().UTC().Add(time.Hour))
	svc.SchedulePost(post, 2)
	svc.UnschedulePost(post.ID)

	if got := svc.Pending(); len(got) != 0 {
		t.Errorf("Pending() = %v, want empty after unschedule", got)
	}
}

func TestSchedulePostReplacesSameGeneration(t *testing.T) {
	st := store.NewInMemoryStore()
	svc := NewService(st, &mockPublisher{})
	defer svc.Stop()

	post := newScheduledPost(t, st, time.Now().UTC().Add(time.Hour))
	svc.SchedulePost(post, 0)
	svc.SchedulePost(post, 0)

	if got := svc.Pending(); len(got) != 1 {
		t.Errorf("Pending() = %v, want a single job", got)
	}
}
