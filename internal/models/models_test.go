package models

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIsValidPlatform(t *testing.T) {
	if !IsValidPlatform(PlatformTwitter) || !IsValidPlatform(PlatformLinkedIn) {
		t.Error("known platforms rejected")
	}
	if IsValidPlatform("facebook") || IsValidPlatform("") {
		t.Error("unknown platform accepted")
	}
}

func TestIsValidPostStatus(t *testing.T) {
	for _, s := range []PostStatus{PostStatusScheduled, PostStatusPosted, PostStatusFailed, PostStatusCancelled} {
		if !IsValidPostStatus(s) {
			t.Errorf("IsValidPostStatus(%q) = false", s)
		}
	}
	if IsValidPostStatus("queued") {
		t.Error("unknown status accepted")
	}
}

func TestScheduledPostValidate(t *testing.T) {
	valid := ScheduledPost{
		Platform:      PlatformTwitter,
		Content:       "hello",
		Status:        PostStatusScheduled,
		ScheduledTime: time.Now().Add(time.Hour),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*ScheduledPost)
		want   error
	}{
		{"empty content", func(p *ScheduledPost) { p.Content = "" }, ErrEmptyContent},
		{"content too long", func(p *ScheduledPost) { p.Content = strings.Repeat("a", MaxContentLength+1) }, ErrContentTooLong},
		{"bad platform", func(p *ScheduledPost) { p.Platform = "myspace" }, ErrInvalidPlatform},
		{"bad status", func(p *ScheduledPost) { p.Status = "queued" }, ErrInvalidPostStatus},
		{"zero time", func(p *ScheduledPost) { p.ScheduledTime = time.Time{} }, ErrMissingScheduledAt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			post := valid
			tt.mutate(&post)
			if err := post.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDraftValidate(t *testing.T) {
	d := Draft{Content: "some text"}
	if err := d.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	d.Content = ""
	if err := d.Validate(); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("empty content: %v", err)
	}
	d.Content = "ok"
	d.Title = strings.Repeat("t", MaxDraftTitleLength+1)
	if err := d.Validate(); !errors.Is(err, ErrDraftTitleTooLong) {
		t.Errorf("long title: %v", err)
	}
}

func TestPlatformConfigHasCredentials(t *testing.T) {
	tests := []struct {
		name string
		cfg  PlatformConfig
		want bool
	}{
		{"empty", PlatformConfig{Platform: PlatformTwitter}, false},
		{"bearer only", PlatformConfig{Platform: PlatformTwitter, BearerToken: "b"}, true},
		{"twitter oauth1 pair", PlatformConfig{Platform: PlatformTwitter, APIKey: "k", AccessToken: "t"}, true},
		{"twitter token without key", PlatformConfig{Platform: PlatformTwitter, AccessToken: "t"}, false},
		{"linkedin access token", PlatformConfig{Platform: PlatformLinkedIn, AccessToken: "t"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.HasCredentials(); got != tt.want {
				t.Errorf("HasCredentials() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOAuthStateExpired(t *testing.T) {
	now := time.Now()
	s := OAuthState{ExpiresAt: now.Add(time.Minute)}
	if s.Expired(now) {
		t.Error("state reported expired before its expiry")
	}
	if !s.Expired(now.Add(2 * time.Minute)) {
		t.Error("state not expired past its expiry")
	}
}
