package genai

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/postfarm/postfarm/internal/models"
	"github.com/postfarm/postfarm/internal/store"
)

// stubProvider counts calls and returns canned content.
type stubProvider struct {
	mu      sync.Mutex
	calls   int
	content string
	err     error
}

func (p *stubProvider) GenerateContent(ctx context.Context, req GenerateRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.content, p.err
}

func (p *stubProvider) EditContent(ctx context.Context, original, instruction string, temperature float64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.content, p.err
}

func (p *stubProvider) CheckHealth(ctx context.Context) bool { return p.err == nil }
func (p *stubProvider) Name() string                         { return "stub" }
func (p *stubProvider) DisplayName() string                  { return "Stub" }

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func serviceWithStub(st store.Store, stub *stubProvider) *Service {
	svc := NewService(st, "llamacpp")
	svc.provider = stub
	return svc
}

func TestGenerateContentCachesByRequest(t *testing.T) {
	stub := &stubProvider{content: "generated text"}
	svc := serviceWithStub(store.NewInMemoryStore(), stub)

	req := GenerateRequest{Prompt: "a tweet about soil"}
	for i := 0; i < 3; i++ {
		got, err := svc.GenerateContent(context.Background(), req)
		if err != nil {
			t.Fatalf("GenerateContent: %v", err)
		}
		if got != "generated text" {
			t.Errorf("content = %q", got)
		}
	}
	if stub.callCount() != 1 {
		t.Errorf("provider calls = %d, want 1 with cache hits", stub.callCount())
	}

	// A different prompt misses the cache.
	if _, err := svc.GenerateContent(context.Background(), GenerateRequest{Prompt: "something else"}); err != nil {
		t.Fatalf("GenerateContent: %v", err)
	}
	if stub.callCount() != 2 {
		t.Errorf("provider calls = %d, want 2 after distinct prompt", stub.callCount())
	}
}

func TestGenerateContentFailureNotCached(t *testing.T) {
	stub := &stubProvider{err: errors.New("provider down")}
	svc := serviceWithStub(store.NewInMemoryStore(), stub)

	req := GenerateRequest{Prompt: "x"}
	if _, err := svc.GenerateContent(context.Background(), req); err == nil {
		t.Fatal("expected error")
	}

	stub.mu.Lock()
	stub.err = nil
	stub.content = "recovered"
	stub.mu.Unlock()

	got, err := svc.GenerateContent(context.Background(), req)
	if err != nil {
		t.Fatalf("GenerateContent after recovery: %v", err)
	}
	if got != "recovered" {
		t.Errorf("content = %q, want fresh result after failure", got)
	}
}

func TestCacheKeyDistinguishesParameters(t *testing.T) {
	base := GenerateRequest{Prompt: "p", MaxTokens: 500, Temperature: 0.7}

	same := base
	same.Temperature = 0.701 // rounds to the same two decimals
	if cacheKey(base) != cacheKey(same) {
		t.Error("near-identical temperatures should share a cache key")
	}

	diff := base
	diff.Temperature = 0.9
	if cacheKey(base) == cacheKey(diff) {
		t.Error("different temperatures should not share a cache key")
	}

	plat := base
	plat.Platform = "twitter"
	if cacheKey(base) == cacheKey(plat) {
		t.Error("platform should be part of the cache key")
	}
}

func TestExpiredCacheEntryIsEvicted(t *testing.T) {
	stub := &stubProvider{content: "v1"}
	svc := serviceWithStub(store.NewInMemoryStore(), stub)

	req := GenerateRequest{Prompt: "x"}
	if _, err := svc.GenerateContent(context.Background(), req); err != nil {
		t.Fatalf("GenerateContent: %v", err)
	}

	// Back-date the entry past its TTL.
	key := cacheKey(req.withDefaults())
	svc.mu.Lock()
	entry := svc.cache[key]
	entry.expires = time.Now().Add(-time.Minute)
	svc.cache[key] = entry
	svc.mu.Unlock()

	stub.mu.Lock()
	stub.content = "v2"
	stub.mu.Unlock()

	got, err := svc.GenerateContent(context.Background(), req)
	if err != nil {
		t.Fatalf("GenerateContent: %v", err)
	}
	if got != "v2" {
		t.Errorf("content = %q, want regenerated value after expiry", got)
	}
}

func TestEvictOldestDropsTenPercent(t *testing.T) {
	svc := NewService(store.NewInMemoryStore(), "llamacpp")

	svc.mu.Lock()
	now := time.Now()
	for i := 0; i < maxCacheSize; i++ {
		svc.cache[cacheKey(GenerateRequest{Prompt: string(rune('a' + i%26)), MaxTokens: i})] = cacheEntry{
			content: "x",
			expires: now.Add(time.Duration(i) * time.Second),
		}
	}
	size := len(svc.cache)
	svc.evictOldestLocked()
	after := len(svc.cache)
	svc.mu.Unlock()

	if after != size-size/10 {
		t.Errorf("cache size after eviction = %d, want %d", after, size-size/10)
	}
}

func TestActiveProviderName(t *testing.T) {
	st := store.NewInMemoryStore()
	svc := NewService(st, "llamacpp")

	name, active := svc.ActiveProviderName()
	if name != "llamacpp" || active {
		t.Errorf("ActiveProviderName = %q, %v; want default llamacpp, false", name, active)
	}

	if err := st.SetActiveProvider("openai"); err != nil {
		t.Fatalf("SetActiveProvider: %v", err)
	}
	name, active = svc.ActiveProviderName()
	if name != "openai" || !active {
		t.Errorf("ActiveProviderName = %q, %v; want openai, true", name, active)
	}
}

func TestResetProviderDropsCachedInstance(t *testing.T) {
	stub := &stubProvider{content: "x"}
	svc := serviceWithStub(store.NewInMemoryStore(), stub)

	svc.ResetProvider()
	svc.mu.Lock()
	p := svc.provider
	svc.mu.Unlock()
	if p != nil {
		t.Error("provider instance survived ResetProvider")
	}
}

func TestLoadProviderRequiresKeyForOpenAI(t *testing.T) {
	st := store.NewInMemoryStore()
	if _, err := LoadProvider(st, "openai"); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestLoadProviderDefaultsToLlamaCpp(t *testing.T) {
	st := store.NewInMemoryStore()
	p, err := LoadProvider(st, "")
	if err != nil {
		t.Fatalf("LoadProvider: %v", err)
	}
	if p.Name() != "llamacpp" {
		t.Errorf("provider = %q, want llamacpp", p.Name())
	}
}

func TestLoadProviderUnknownName(t *testing.T) {
	if _, err := LoadProvider(store.NewInMemoryStore(), "grok"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("err = %v, want ErrUnknownProvider", err)
	}
}

func TestLoadProviderReadsStoredConfig(t *testing.T) {
	st := store.NewInMemoryStore()
	if err := st.SaveProviderConfig(&models.ProviderConfig{
		ProviderName: "llamacpp",
		ConfigJSON:   `{"server_url":"http://example.com:9999","model_name":"test.gguf"}`,
	}); err != nil {
		t.Fatalf("SaveProviderConfig: %v", err)
	}

	p, err := LoadProvider(st, "llamacpp")
	if err != nil {
		t.Fatalf("LoadProvider: %v", err)
	}
	llama, ok := p.(*LlamaCppProvider)
	if !ok {
		t.Fatalf("provider type = %T", p)
	}
	if llama.baseURL != "http://example.com:9999" {
		t.Errorf("baseURL = %q", llama.baseURL)
	}
	if llama.modelName != "test.gguf" {
		t.Errorf("modelName = %q", llama.modelName)
	}
}
