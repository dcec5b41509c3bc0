// Package platform publishes content to social media platforms.
//
// It implements the Twitter/X API v2 tweet endpoint and the LinkedIn UGC
// Posts API, with credentials loaded from the store's platform configs.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/postfarm/postfarm/internal/models"
	"github.com/postfarm/postfarm/internal/store"
)

// Default endpoint and client configuration
const (
	DefaultTwitterBaseURL  = "https://api.twitter.com"
	DefaultLinkedInBaseURL = "https://api.linkedin.com"
	// DefaultTimeout bounds a single publish attempt end to end.
	DefaultTimeout = 30 * time.Second
	// maxErrorBodyBytes limits how much of an API error body is kept for logs.
	maxErrorBodyBytes = 2048
)

// Error variables for credential and platform validation
var (
	ErrUnsupportedPlatform       = errors.New("unsupported platform")
	ErrTwitterNotConfigured      = errors.New("twitter API credentials not configured")
	ErrLinkedInNotConfigured     = errors.New("linkedin API credentials not configured")
	ErrLinkedInOrgNotConfigured  = errors.New("linkedin organization ID not configured")
)

// Service publishes posts using credentials persisted in the store.
type Service struct {
	store        store.Store
	client       *http.Client
	twitterBase  string
	linkedinBase string
}

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.client = c }
}

// WithTwitterBaseURL overrides the Twitter API base URL, for tests.
func WithTwitterBaseURL(u string) Option {
	return func(s *Service) { s.twitterBase = u }
}

// WithLinkedInBaseURL overrides the LinkedIn API base URL, for tests.
func WithLinkedInBaseURL(u string) Option {
	return func(s *Service) { s.linkedinBase = u }
}

// NewService creates a platform publishing service.
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:        st,
		client:       &http.Client{Timeout: DefaultTimeout},
		twitterBase:  DefaultTwitterBaseURL,
		linkedinBase: DefaultLinkedInBaseURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PublishPost publishes content to the given platform. Any failure (missing
// credentials, auth, rate limit, network) is returned as an error.
func (s *Service) PublishPost(ctx context.Context, platform models.PlatformType, content string) error {
	switch platform {
	case models.PlatformTwitter:
		return s.postToTwitter(ctx, content)
	case models.PlatformLinkedIn:
		return s.postToLinkedIn(ctx, content)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
	}
}

// TruncateForTwitter clamps content to the Twitter character limit, keeping
// room for a trailing ellipsis.
func TruncateForTwitter(content string) string {
	runes := []rune(content)
	if len(runes) <= models.MaxTweetLength {
		return content
	}
	return string(runes[:models.MaxTweetLength-3]) + "..."
}

func (s *Service) activeConfig(platform models.PlatformType) (*models.PlatformConfig, error) {
	cfg, err := s.store.GetPlatformConfig(platform)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s config: %w", platform, err)
	}
	if cfg == nil || !cfg.IsActive {
		return nil, nil
	}
	return cfg, nil
}

func (s *Service) postToTwitter(ctx context.Context, content string) error {
	cfg, err := s.activeConfig(models.PlatformTwitter)
	if err != nil {
		return err
	}
	if cfg == nil || cfg.BearerToken == "" {
		return ErrTwitterNotConfigured
	}

	content = TruncateForTwitter(content)
	payload, err := json.Marshal(map[string]string{"text": content})
	if err != nil {
		return fmt.Errorf("failed to encode tweet payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.twitterBase+"/2/tweets", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build tweet request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.BearerToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("twitter request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		slog.Error("Service.postToTwitter: API error", "status", resp.StatusCode, "body", string(body))
		return fmt.Errorf("twitter API error: status %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		// The tweet went out; a malformed body only costs us the tweet ID.
		slog.Warn("Service.postToTwitter: failed to decode response", "error", err)
	}

	slog.Info("Service.postToTwitter: tweet published", "tweetID", result.Data.ID)
	return nil
}

// linkedinShare is the UGC Post payload shape required by the LinkedIn v2 API.
type linkedinShare struct {
	Author          string `json:"author"`
	LifecycleState  string `json:"lifecycleState"`
	SpecificContent struct {
		ShareContent struct {
			ShareCommentary struct {
				Text string `json:"text"`
			} `json:"shareCommentary"`
			ShareMediaCategory string `json:"shareMediaCategory"`
		} `json:"com.linkedin.ugc.ShareContent"`
	} `json:"specificContent"`
	Visibility struct {
		MemberNetworkVisibility string `json:"com.linkedin.ugc.MemberNetworkVisibility"`
	} `json:"visibility"`
}

func (s *Service) postToLinkedIn(ctx context.Context, content string) error {
	cfg, err := s.activeConfig(models.PlatformLinkedIn)
	if err != nil {
		return err
	}
	if cfg == nil || cfg.AccessToken == "" {
		return ErrLinkedInNotConfigured
	}
	if cfg.LinkedInOrgID == "" {
		return ErrLinkedInOrgNotConfigured
	}

	var share linkedinShare
	share.Author = "urn:li:organization:" + cfg.LinkedInOrgID
	share.LifecycleState = "PUBLISHED"
	share.SpecificContent.ShareContent.ShareCommentary.Text = content
	share.SpecificContent.ShareContent.ShareMediaCategory = "NONE"
	share.Visibility.MemberNetworkVisibility = "PUBLIC"

	payload, err := json.Marshal(share)
	if err != nil {
		return fmt.Errorf("failed to encode linkedin payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.linkedinBase+"/v2/ugcPosts", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build linkedin request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("linkedin request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		slog.Error("Service.postToLinkedIn: API error", "status", resp.StatusCode, "body", string(body))
		return fmt.Errorf("linkedin API error: status %d", resp.StatusCode)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Warn("Service.postToLinkedIn: failed to decode response", "error", err)
	}

	slog.Info("Service.postToLinkedIn: share published", "shareID", result.ID)
	return nil
}

// TestConnection checks whether credentials for the platform work without
// publishing anything. It returns a human-readable message alongside the
// success flag.
func (s *Service) TestConnection(ctx context.Context, platform models.PlatformType) (bool, string) {
	switch platform {
	case models.PlatformTwitter:
		cfg, err := s.activeConfig(models.PlatformTwitter)
		if err != nil {
			return false, err.Error()
		}
		if cfg == nil || cfg.BearerToken == "" {
			return false, "Credentials not configured"
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.twitterBase+"/2/users/me", nil)
		if err != nil {
			return false, err.Error()
		}
		req.Header.Set("Authorization", "Bearer "+cfg.BearerToken)

		resp, err := s.client.Do(req)
		if err != nil {
			return false, err.Error()
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return true, "Connection successful"
		}
		return false, fmt.Sprintf("API error: %d", resp.StatusCode)

	case models.PlatformLinkedIn:
		cfg, err := s.activeConfig(models.PlatformLinkedIn)
		if err != nil {
			return false, err.Error()
		}
		if cfg == nil || cfg.AccessToken == "" {
			return false, "Credentials not configured"
		}
		return true, "Credentials present"

	default:
		return false, "Unknown platform"
	}
}
