package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/postfarm/postfarm/internal/models"
	"github.com/postfarm/postfarm/internal/store"
)

// Publisher publishes content to an external platform. Any returned error is
// treated uniformly as a failed attempt; the service does not inspect error
// types.
type Publisher interface {
	PublishPost(ctx context.Context, platform models.PlatformType, content string) error
}

// Clock supplies the current UTC time. Injectable for tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// Retry policy defaults.
const (
	// DefaultMaxRetries bounds how many times a failed publish is retried
	// before the post is marked permanently failed.
	DefaultMaxRetries = 3
)

// DefaultRetryDelays is the backoff table indexed by retry count. The delay
// stops growing past the last entry.
var DefaultRetryDelays = []time.Duration{5 * time.Minute, 15 * time.Minute, time.Hour}

// Service is the scheduled publication engine. It owns an in-memory JobTimer
// whose state is a disposable cache of fire times; the persisted post record
// is the single source of truth and is re-read on every firing.
type Service struct {
	timer       *JobTimer
	store       store.Store
	publisher   Publisher
	clock       Clock
	maxRetries  int
	retryDelays []time.Duration

	mu          sync.Mutex
	running     bool
	generations map[string]int // latest scheduled retry generation per post id
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock overrides the wall clock, for tests.
func WithClock(c Clock) ServiceOption {
	return func(s *Service) { s.clock = c }
}

// WithRetryPolicy overrides the retry bound and backoff table.
func WithRetryPolicy(maxRetries int, delays []time.Duration) ServiceOption {
	return func(s *Service) {
		s.maxRetries = maxRetries
		s.retryDelays = delays
	}
}

// NewService creates a scheduler service. The caller owns its lifecycle via
// Start and Stop.
func NewService(st store.Store, publisher Publisher, opts ...ServiceOption) *Service {
	s := &Service{
		timer:       NewJobTimer(),
		store:       st,
		publisher:   publisher,
		clock:       SystemClock(),
		maxRetries:  DefaultMaxRetries,
		retryDelays: DefaultRetryDelays,
		generations: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// jobKey builds the timer key for one (post, retry generation) pair.
func jobKey(postID string, retryCount int) string {
	return fmt.Sprintf("post_%s_%d", postID, retryCount)
}

// Start begins scheduling and re-registers persisted posts that are still
// waiting for a future fire time. Safe to call once per process.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		slog.Warn("Service.Start: scheduler already running")
		return
	}
	s.running = true
	s.mu.Unlock()

	slog.Info("Service.Start: scheduler started")
	s.loadScheduledPosts(ctx)
}

// Stop halts the scheduler and cancels pending timers without mutating any
// post state.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.timer.Stop()
	slog.Info("Service.Stop: scheduler stopped")
}

// loadScheduledPosts re-registers jobs for posts persisted in scheduled
// status with a future fire time. Posts whose fire time passed while the
// process was down are left untouched for manual rescheduling. A storage
// failure leaves the schedule empty rather than crashing startup.
func (s *Service) loadScheduledPosts(ctx context.Context) {
	posts, err := s.store.ListScheduledAfter(s.clock.Now())
	if err != nil {
		slog.Error("Service.loadScheduledPosts: failed to load scheduled posts, starting with empty schedule", "error", err)
		return
	}

	for i := range posts {
		s.SchedulePost(&posts[i], 0)
	}
	slog.Info("Service.loadScheduledPosts: loaded scheduled posts", "count", len(posts))
}

// SchedulePost registers a publish job for the post's scheduled time at the
// given retry generation, replacing any pending job with the same key.
func (s *Service) SchedulePost(post *models.ScheduledPost, retryCount int) {
	postID := post.ID
	key := jobKey(postID, retryCount)

	s.mu.Lock()
	s.generations[postID] = retryCount
	s.mu.Unlock()

	s.timer.ScheduleAt(key, post.ScheduledTime, func() {
		s.publishPost(context.Background(), postID, retryCount)
	})
	slog.Info("Service.SchedulePost: scheduled post", "id", postID, "fireAt", post.ScheduledTime, "retryCount", retryCount)
}

// UnschedulePost cancels the pending job for the post's current retry
// generation. If a retry advanced the generation after the caller decided to
// cancel, the newer job may survive; the persisted status guard still
// prevents a cancelled post from publishing.
func (s *Service) UnschedulePost(postID string) {
	s.mu.Lock()
	retryCount, ok := s.generations[postID]
	delete(s.generations, postID)
	s.mu.Unlock()
	if !ok {
		retryCount = 0
	}

	s.timer.Cancel(jobKey(postID, retryCount))
	slog.Info("Service.UnschedulePost: unscheduled post", "id", postID, "retryCount", retryCount)
}

// Pending returns the keys of all pending publish jobs.
func (s *Service) Pending() []string {
	return s.timer.Pending()
}

// publishPost executes one publish attempt for (postID, retryCount) and
// persists the resulting state transition.
func (s *Service) publishPost(ctx context.Context, postID string, retryCount int) {
	post, err := s.store.GetScheduledPost(postID)
	if err != nil {
		// Job loss on storage failure is accepted; the startup reconciler
		// picks the post up again if its record still shows a future fire time.
		slog.Error("Service.publishPost: failed to load post", "error", err, "id", postID, "retryCount", retryCount)
		return
	}
	if post == nil {
		slog.Error("Service.publishPost: post not found", "id", postID, "retryCount", retryCount)
		return
	}

	// Idempotency guard: a late or duplicate firing must not re-publish a
	// post that is already resolved.
	if post.Status != models.PostStatusScheduled && post.Status != models.PostStatusFailed {
		slog.Warn("Service.publishPost: post not in publishable status, skipping", "id", postID, "status", post.Status)
		return
	}

	if err := s.publisher.PublishPost(ctx, post.Platform, post.Content); err != nil {
		slog.Error("Service.publishPost: publish failed", "error", err, "id", postID, "platform", post.Platform, "retryCount", retryCount)
		s.handlePublishFailure(post, retryCount, err)
		return
	}

	now := s.clock.Now()
	post.Status = models.PostStatusPosted
	post.PostedAt = &now
	post.ErrorMessage = ""
	if err := s.store.UpdateScheduledPost(post); err != nil {
		slog.Error("Service.publishPost: failed to persist posted status", "error", err, "id", postID)
		return
	}

	s.mu.Lock()
	delete(s.generations, postID)
	s.mu.Unlock()

	slog.Info("Service.publishPost: post published", "id", postID, "platform", post.Platform, "retryCount", retryCount)
}

// retryDelay returns the backoff delay for the given retry count, clamped to
// the last table entry.
func (s *Service) retryDelay(retryCount int) time.Duration {
	idx := retryCount
	if idx > len(s.retryDelays)-1 {
		idx = len(s.retryDelays) - 1
	}
	return s.retryDelays[idx]
}

// handlePublishFailure applies the retry policy: reschedule with backoff
// while attempts remain, otherwise mark the post permanently failed.
func (s *Service) handlePublishFailure(post *models.ScheduledPost, retryCount int, pubErr error) {
	if retryCount >= s.maxRetries {
		post.Status = models.PostStatusFailed
		post.ErrorMessage = fmt.Sprintf("Failed after %d retry attempts. Last error: %s", s.maxRetries, pubErr)
		if err := s.store.UpdateScheduledPost(post); err != nil {
			slog.Error("Service.handlePublishFailure: failed to persist failed status", "error", err, "id", post.ID)
			return
		}

		s.mu.Lock()
		delete(s.generations, post.ID)
		s.mu.Unlock()

		slog.Error("Service.handlePublishFailure: post permanently failed", "id", post.ID, "retryCount", retryCount)
		return
	}

	delay := s.retryDelay(retryCount)
	retryTime := s.clock.Now().Add(delay)

	post.Status = models.PostStatusScheduled
	post.ScheduledTime = retryTime
	post.ErrorMessage = fmt.Sprintf("Attempt %d failed: %s. Retrying in %ds", retryCount+1, pubErr, int(delay.Seconds()))
	if err := s.store.UpdateScheduledPost(post); err != nil {
		slog.Error("Service.handlePublishFailure: failed to persist retry state", "error", err, "id", post.ID)
		return
	}

	s.SchedulePost(post, retryCount+1)
	slog.Warn("Service.handlePublishFailure: retry scheduled", "id", post.ID, "attempt", retryCount+1, "retryAt", retryTime, "delay", delay)
}
