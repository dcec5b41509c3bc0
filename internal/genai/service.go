package genai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/postfarm/postfarm/internal/store"
)

// Cache tuning
const (
	cacheTTL     = 24 * time.Hour
	maxCacheSize = 1000
)

type cacheEntry struct {
	content string
	expires time.Time
}

// Service routes generation requests to the active provider and caches
// responses in memory.
type Service struct {
	store       store.Store
	defaultName string

	mu       sync.Mutex
	provider Provider
	cache    map[string]cacheEntry
}

// NewService creates an LLM service. defaultName is the provider used when
// none has been activated in the store; empty means llamacpp.
func NewService(st store.Store, defaultName string) *Service {
	if defaultName == "" {
		defaultName = DefaultProviderName
	}
	return &Service{
		store:       st,
		defaultName: defaultName,
		cache:       make(map[string]cacheEntry),
	}
}

// ActiveProviderName returns the provider that requests will be routed to.
func (s *Service) ActiveProviderName() (string, bool) {
	cfg, err := s.store.GetActiveProviderConfig()
	if err == nil && cfg != nil {
		return cfg.ProviderName, true
	}
	return s.defaultName, false
}

// ResetProvider drops the cached provider instance so the next request
// rebuilds it from the store. Call after switching or reconfiguring
// providers.
func (s *Service) ResetProvider() {
	s.mu.Lock()
	s.provider = nil
	s.mu.Unlock()
}

func (s *Service) currentProvider() (Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.provider != nil {
		return s.provider, nil
	}
	name, _ := s.ActiveProviderName()
	p, err := LoadProvider(s.store, name)
	if err != nil {
		return nil, err
	}
	s.provider = p
	return p, nil
}

// cacheKey hashes the canonical JSON of the request parameters. Temperature
// is rounded to two decimals so near-identical requests share an entry.
func cacheKey(req GenerateRequest) string {
	platform := req.Platform
	if platform == "" {
		platform = "general"
	}
	payload, _ := json.Marshal(map[string]any{
		"prompt":        req.Prompt,
		"system_prompt": req.SystemPrompt,
		"max_tokens":    req.MaxTokens,
		"temperature":   math.Round(req.Temperature*100) / 100,
		"platform":      platform,
	})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func (s *Service) cachedContent(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[key]
	if !ok {
		return "", false
	}
	if time.Now().After(entry.expires) {
		delete(s.cache, key)
		return "", false
	}
	return entry.content, true
}

func (s *Service) setCachedContent(key, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.cache) >= maxCacheSize {
		s.evictOldestLocked()
	}
	s.cache[key] = cacheEntry{content: content, expires: time.Now().Add(cacheTTL)}
}

// evictOldestLocked drops the 10% of entries closest to expiry. Caller holds mu.
func (s *Service) evictOldestLocked() {
	type keyed struct {
		key     string
		expires time.Time
	}
	entries := make([]keyed, 0, len(s.cache))
	for k, e := range s.cache {
		entries = append(entries, keyed{k, e.expires})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].expires.Before(entries[j].expires) })
	for _, e := range entries[:len(entries)/10] {
		delete(s.cache, e.key)
	}
}

// GenerateContent generates content via the active provider, serving
// repeated requests from the cache.
func (s *Service) GenerateContent(ctx context.Context, req GenerateRequest) (string, error) {
	req = req.withDefaults()

	key := cacheKey(req)
	if content, ok := s.cachedContent(key); ok {
		slog.Debug("Service.GenerateContent: cache hit", "key", key[:12])
		return content, nil
	}

	provider, err := s.currentProvider()
	if err != nil {
		return "", err
	}
	content, err := provider.GenerateContent(ctx, req)
	if err != nil {
		return "", fmt.Errorf("content generation failed: %w", err)
	}

	s.setCachedContent(key, content)
	return content, nil
}

// EditContent rewrites content via the active provider. Edits are not cached.
func (s *Service) EditContent(ctx context.Context, original, instruction string, temperature float64) (string, error) {
	provider, err := s.currentProvider()
	if err != nil {
		return "", err
	}
	content, err := provider.EditContent(ctx, original, instruction, temperature)
	if err != nil {
		return "", fmt.Errorf("content edit failed: %w", err)
	}
	return content, nil
}

// CheckHealth reports whether the active provider is reachable.
func (s *Service) CheckHealth(ctx context.Context) bool {
	provider, err := s.currentProvider()
	if err != nil {
		slog.Warn("Service.CheckHealth: provider unavailable", "error", err)
		return false
	}
	return provider.CheckHealth(ctx)
}
