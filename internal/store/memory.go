package store

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/postfarm/postfarm/internal/models"
)

// InMemoryStore is a simple in-memory Store used in tests and ephemeral runs.
type InMemoryStore struct {
	mu        sync.RWMutex
	nextID    int64
	posts     map[string]models.ScheduledPost
	drafts    map[string]models.Draft
	platforms map[models.PlatformType]models.PlatformConfig
	states    map[string]models.OAuthState
	providers map[string]models.ProviderConfig
	deletions []models.Deletion
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		posts:     make(map[string]models.ScheduledPost),
		drafts:    make(map[string]models.Draft),
		platforms: make(map[models.PlatformType]models.PlatformConfig),
		states:    make(map[string]models.OAuthState),
		providers: make(map[string]models.ProviderConfig),
	}
}

func (s *InMemoryStore) allocID() string {
	s.nextID++
	return strconv.FormatInt(s.nextID, 10)
}

func (s *InMemoryStore) CreateScheduledPost(post *models.ScheduledPost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if post.ID == "" {
		post.ID = s.allocID()
	}
	post.CreatedAt = now
	post.UpdatedAt = now
	s.posts[post.ID] = *post
	return nil
}

func (s *InMemoryStore) GetScheduledPost(id string) (*models.ScheduledPost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *InMemoryStore) UpdateScheduledPost(post *models.ScheduledPost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[post.ID]; !ok {
		return fmt.Errorf("scheduled post %s not found", post.ID)
	}
	post.UpdatedAt = time.Now().UTC()
	s.posts[post.ID] = *post
	return nil
}

func (s *InMemoryStore) ListScheduledPosts(filter PostFilter) ([]models.ScheduledPost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var posts []models.ScheduledPost
	for _, p := range s.posts {
		if filter.UserID != "" && p.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.Platform != "" && p.Platform != filter.Platform {
			continue
		}
		if filter.After != nil && p.ScheduledTime.Before(*filter.After) {
			continue
		}
		if filter.Before != nil && p.ScheduledTime.After(*filter.Before) {
			continue
		}
		posts = append(posts, p)
	}
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].ScheduledTime.After(posts[j].ScheduledTime)
	})
	if filter.Skip > 0 {
		if filter.Skip >= len(posts) {
			return nil, nil
		}
		posts = posts[filter.Skip:]
	}
	if filter.Limit > 0 && len(posts) > filter.Limit {
		posts = posts[:filter.Limit]
	}
	return posts, nil
}

func (s *InMemoryStore) ListScheduledAfter(now time.Time) ([]models.ScheduledPost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var posts []models.ScheduledPost
	for _, p := range s.posts {
		if p.Status == models.PostStatusScheduled && p.ScheduledTime.After(now) {
			posts = append(posts, p)
		}
	}
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].ScheduledTime.Before(posts[j].ScheduledTime)
	})
	return posts, nil
}

func (s *InMemoryStore) ListScheduledPostsChangedSince(userID string, since time.Time) ([]models.ScheduledPost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var posts []models.ScheduledPost
	for _, p := range s.posts {
		if (userID == "" || p.UserID == userID) && p.UpdatedAt.After(since) {
			posts = append(posts, p)
		}
	}
	return posts, nil
}

func (s *InMemoryStore) CreateDraft(draft *models.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if draft.ID == "" {
		draft.ID = s.allocID()
	}
	draft.CreatedAt = now
	draft.UpdatedAt = now
	s.drafts[draft.ID] = *draft
	return nil
}

func (s *InMemoryStore) GetDraft(id, userID string) (*models.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.drafts[id]
	if !ok {
		return nil, nil
	}
	if userID != "" && d.UserID != "" && d.UserID != userID {
		return nil, nil
	}
	return &d, nil
}

func (s *InMemoryStore) UpdateDraft(draft *models.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drafts[draft.ID]; !ok {
		return fmt.Errorf("draft %s not found", draft.ID)
	}
	draft.UpdatedAt = time.Now().UTC()
	s.drafts[draft.ID] = *draft
	return nil
}

func (s *InMemoryStore) DeleteDraft(id, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.drafts[id]; !ok {
		return false, nil
	}
	delete(s.drafts, id)
	return true, nil
}

func (s *InMemoryStore) ListDrafts(userID string, skip, limit int) ([]models.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var drafts []models.Draft
	for _, d := range s.drafts {
		if userID != "" && d.UserID != "" && d.UserID != userID {
			continue
		}
		drafts = append(drafts, d)
	}
	sort.Slice(drafts, func(i, j int) bool {
		return drafts[i].CreatedAt.After(drafts[j].CreatedAt)
	})
	if skip > 0 {
		if skip >= len(drafts) {
			return nil, nil
		}
		drafts = drafts[skip:]
	}
	if limit > 0 && len(drafts) > limit {
		drafts = drafts[:limit]
	}
	return drafts, nil
}

func (s *InMemoryStore) ListDraftsChangedSince(userID string, since time.Time) ([]models.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var drafts []models.Draft
	for _, d := range s.drafts {
		if (userID == "" || d.UserID == userID) && d.UpdatedAt.After(since) {
			drafts = append(drafts, d)
		}
	}
	return drafts, nil
}

func (s *InMemoryStore) GetPlatformConfig(platform models.PlatformType) (*models.PlatformConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.platforms[platform]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *InMemoryStore) SavePlatformConfig(cfg *models.PlatformConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.ID == "" {
		cfg.ID = s.allocID()
	}
	cfg.UpdatedAt = time.Now().UTC()
	s.platforms[cfg.Platform] = *cfg
	return nil
}

func (s *InMemoryStore) ListPlatformConfigs() ([]models.PlatformConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var configs []models.PlatformConfig
	for _, c := range s.platforms {
		configs = append(configs, c)
	}
	sort.Slice(configs, func(i, j int) bool {
		return configs[i].Platform < configs[j].Platform
	})
	return configs, nil
}

func (s *InMemoryStore) SaveOAuthState(state models.OAuthState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.State] = state
	return nil
}

func (s *InMemoryStore) ConsumeOAuthState(state string) (*models.OAuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[state]
	if !ok {
		return nil, nil
	}
	delete(s.states, state)
	return &st, nil
}

func (s *InMemoryStore) PurgeExpiredOAuthStates(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, st := range s.states {
		if st.Expired(now) {
			delete(s.states, k)
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) GetProviderConfig(name string) (*models.ProviderConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.providers[name]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *InMemoryStore) GetActiveProviderConfig() (*models.ProviderConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.providers {
		if c.IsActive {
			cp := c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) SaveProviderConfig(cfg *models.ProviderConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg.UpdatedAt = time.Now().UTC()
	s.providers[cfg.ProviderName] = *cfg
	return nil
}

func (s *InMemoryStore) SetActiveProvider(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for key, c := range s.providers {
		c.IsActive = false
		s.providers[key] = c
	}
	c, ok := s.providers[name]
	if !ok {
		c = models.ProviderConfig{ProviderName: name}
	}
	c.IsActive = true
	c.UpdatedAt = now
	s.providers[name] = c
	return nil
}

func (s *InMemoryStore) RecordDeletion(d models.Deletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletions = append(s.deletions, d)
	return nil
}

func (s *InMemoryStore) ListDeletionsSince(userID string, since time.Time) ([]models.Deletion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Deletion
	for _, d := range s.deletions {
		if (userID == "" || d.UserID == userID) && d.DeletedAt.After(since) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
