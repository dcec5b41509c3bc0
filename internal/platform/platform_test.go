package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/postfarm/postfarm/internal/models"
	"github.com/postfarm/postfarm/internal/store"
)

func storeWithTwitter(t *testing.T, bearer string) *store.InMemoryStore {
	t.Helper()
	st := store.NewInMemoryStore()
	if err := st.SavePlatformConfig(&models.PlatformConfig{
		Platform:    models.PlatformTwitter,
		BearerToken: bearer,
		IsActive:    true,
	}); err != nil {
		t.Fatalf("SavePlatformConfig: %v", err)
	}
	return st
}

func storeWithLinkedIn(t *testing.T, token, orgID string) *store.InMemoryStore {
	t.Helper()
	st := store.NewInMemoryStore()
	if err := st.SavePlatformConfig(&models.PlatformConfig{
		Platform:      models.PlatformLinkedIn,
		AccessToken:   token,
		LinkedInOrgID: orgID,
		IsActive:      true,
	}); err != nil {
		t.Fatalf("SavePlatformConfig: %v", err)
	}
	return st
}

func TestPublishPostTwitter(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"12345"}}`))
	}))
	defer srv.Close()

	svc := NewService(storeWithTwitter(t, "bearer-tok"), WithTwitterBaseURL(srv.URL))
	if err := svc.PublishPost(context.Background(), models.PlatformTwitter, "hello"); err != nil {
		t.Fatalf("PublishPost: %v", err)
	}

	if gotPath != "/2/tweets" {
		t.Errorf("path = %q, want /2/tweets", gotPath)
	}
	if gotAuth != "Bearer bearer-tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody["text"] != "hello" {
		t.Errorf("tweet text = %q, want hello", gotBody["text"])
	}
}

func TestPublishPostTwitterTruncatesLongContent(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"data":{"id":"1"}}`))
	}))
	defer srv.Close()

	svc := NewService(storeWithTwitter(t, "tok"), WithTwitterBaseURL(srv.URL))
	long := strings.Repeat("a", 500)
	if err := svc.PublishPost(context.Background(), models.PlatformTwitter, long); err != nil {
		t.Fatalf("PublishPost: %v", err)
	}

	if len([]rune(gotBody["text"])) != models.MaxTweetLength {
		t.Errorf("tweet length = %d, want %d", len([]rune(gotBody["text"])), models.MaxTweetLength)
	}
	if !strings.HasSuffix(gotBody["text"], "...") {
		t.Error("truncated tweet missing ellipsis")
	}
}

func TestPublishPostTwitterAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	svc := NewService(storeWithTwitter(t, "tok"), WithTwitterBaseURL(srv.URL))
	err := svc.PublishPost(context.Background(), models.PlatformTwitter, "hi")
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Errorf("err = %v, want status 429 error", err)
	}
}

func TestPublishPostTwitterNotConfigured(t *testing.T) {
	svc := NewService(store.NewInMemoryStore())
	err := svc.PublishPost(context.Background(), models.PlatformTwitter, "hi")
	if !errors.Is(err, ErrTwitterNotConfigured) {
		t.Errorf("err = %v, want ErrTwitterNotConfigured", err)
	}
}

func TestPublishPostInactiveConfigRejected(t *testing.T) {
	st := store.NewInMemoryStore()
	if err := st.SavePlatformConfig(&models.PlatformConfig{
		Platform:    models.PlatformTwitter,
		BearerToken: "tok",
		IsActive:    false,
	}); err != nil {
		t.Fatalf("SavePlatformConfig: %v", err)
	}

	svc := NewService(st)
	err := svc.PublishPost(context.Background(), models.PlatformTwitter, "hi")
	if !errors.Is(err, ErrTwitterNotConfigured) {
		t.Errorf("err = %v, want ErrTwitterNotConfigured for inactive config", err)
	}
}

func TestPublishPostLinkedIn(t *testing.T) {
	var gotPath, gotAuth, gotRestli string
	var share linkedinShare
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotRestli = r.Header.Get("X-Restli-Protocol-Version")
		json.NewDecoder(r.Body).Decode(&share)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"urn:li:share:1"}`))
	}))
	defer srv.Close()

	svc := NewService(storeWithLinkedIn(t, "li-tok", "789"), WithLinkedInBaseURL(srv.URL))
	if err := svc.PublishPost(context.Background(), models.PlatformLinkedIn, "an update"); err != nil {
		t.Fatalf("PublishPost: %v", err)
	}

	if gotPath != "/v2/ugcPosts" {
		t.Errorf("path = %q, want /v2/ugcPosts", gotPath)
	}
	if gotAuth != "Bearer li-tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotRestli != "2.0.0" {
		t.Errorf("X-Restli-Protocol-Version = %q", gotRestli)
	}
	if share.Author != "urn:li:organization:789" {
		t.Errorf("author = %q", share.Author)
	}
	if share.SpecificContent.ShareContent.ShareCommentary.Text != "an update" {
		t.Errorf("commentary = %q", share.SpecificContent.ShareContent.ShareCommentary.Text)
	}
	if share.LifecycleState != "PUBLISHED" {
		t.Errorf("lifecycleState = %q", share.LifecycleState)
	}
}

func TestPublishPostLinkedInMissingOrg(t *testing.T) {
	svc := NewService(storeWithLinkedIn(t, "li-tok", ""))
	err := svc.PublishPost(context.Background(), models.PlatformLinkedIn, "hi")
	if !errors.Is(err, ErrLinkedInOrgNotConfigured) {
		t.Errorf("err = %v, want ErrLinkedInOrgNotConfigured", err)
	}
}

func TestPublishPostUnsupportedPlatform(t *testing.T) {
	svc := NewService(store.NewInMemoryStore())
	err := svc.PublishPost(context.Background(), "myspace", "hi")
	if !errors.Is(err, ErrUnsupportedPlatform) {
		t.Errorf("err = %v, want ErrUnsupportedPlatform", err)
	}
}

func TestTruncateForTwitter(t *testing.T) {
	short := "short tweet"
	if got := TruncateForTwitter(short); got != short {
		t.Errorf("short content modified: %q", got)
	}

	exact := strings.Repeat("x", models.MaxTweetLength)
	if got := TruncateForTwitter(exact); got != exact {
		t.Error("content at the limit should not be truncated")
	}

	long := strings.Repeat("日", models.MaxTweetLength+10)
	got := TruncateForTwitter(long)
	if len([]rune(got)) != models.MaxTweetLength {
		t.Errorf("truncated length = %d, want %d", len([]rune(got)), models.MaxTweetLength)
	}
}

func TestTestConnectionTwitter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/2/users/me" {
			t.Errorf("path = %q, want /2/users/me", r.URL.Path)
		}
		w.Write([]byte(`{"data":{"id":"1","username":"farmer"}}`))
	}))
	defer srv.Close()

	svc := NewService(storeWithTwitter(t, "tok"), WithTwitterBaseURL(srv.URL))
	ok, msg := svc.TestConnection(context.Background(), models.PlatformTwitter)
	if !ok {
		t.Errorf("TestConnection failed: %s", msg)
	}

	svc = NewService(store.NewInMemoryStore())
	ok, _ = svc.TestConnection(context.Background(), models.PlatformTwitter)
	if ok {
		t.Error("TestConnection succeeded without credentials")
	}
}
