package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/postfarm/postfarm/internal/models"
	"github.com/postfarm/postfarm/internal/store"
)

// Authorization endpoints and flow tuning
const (
	defaultTwitterAuthURL   = "https://twitter.com/i/oauth2/authorize"
	defaultTwitterTokenURL  = "https://api.twitter.com/2/oauth2/token"
	defaultLinkedInAuthURL  = "https://www.linkedin.com/oauth/v2/authorization"
	defaultLinkedInTokenURL = "https://www.linkedin.com/oauth/v2/accessToken"

	twitterScopes  = "tweet.read tweet.write users.read offline.access"
	linkedinScopes = "w_member_social r_liteprofile"

	// StateExpiry bounds how long an authorization flow may stay open.
	StateExpiry = 10 * time.Minute
	// statePurgeSchedule drives the periodic cleanup of abandoned flows.
	statePurgeSchedule = "@every 10m"

	defaultTokenExpiry = 7200 // seconds, when the provider omits expires_in
)

var (
	ErrInvalidState       = errors.New("invalid or expired state")
	ErrStateMismatch      = errors.New("state belongs to a different user")
	ErrStateExpired       = errors.New("state expired")
	ErrPlatformMismatch   = errors.New("state was issued for a different platform")
	ErrNoRefreshToken     = errors.New("no refresh token available")
	ErrRefreshUnsupported = errors.New("platform tokens cannot be refreshed")
)

// Config holds the OAuth application credentials for both platforms.
type Config struct {
	TwitterClientID      string
	TwitterClientSecret  string
	TwitterRedirectURI   string
	LinkedInClientID     string
	LinkedInClientSecret string
	LinkedInRedirectURI  string
}

// Authorization is the result of initiating a flow.
type Authorization struct {
	State   string `json:"state"`
	AuthURL string `json:"auth_url"`
}

// TokenResponse is the provider's token endpoint payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
}

// Service drives the OAuth connection flows and persists tokens as platform
// credentials.
type Service struct {
	store store.Store
	cfg   Config

	client           *http.Client
	now              func() time.Time
	twitterAuthURL   string
	twitterTokenURL  string
	linkedinAuthURL  string
	linkedinTokenURL string
}

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.client = c }
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTwitterEndpoints overrides the Twitter authorize and token URLs.
func WithTwitterEndpoints(authURL, tokenURL string) Option {
	return func(s *Service) {
		s.twitterAuthURL = authURL
		s.twitterTokenURL = tokenURL
	}
}

// WithLinkedInEndpoints overrides the LinkedIn authorize and token URLs.
func WithLinkedInEndpoints(authURL, tokenURL string) Option {
	return func(s *Service) {
		s.linkedinAuthURL = authURL
		s.linkedinTokenURL = tokenURL
	}
}

// NewService creates an OAuth service.
func NewService(st store.Store, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:            st,
		cfg:              cfg,
		client:           &http.Client{Timeout: 30 * time.Second},
		now:              time.Now,
		twitterAuthURL:   defaultTwitterAuthURL,
		twitterTokenURL:  defaultTwitterTokenURL,
		linkedinAuthURL:  defaultLinkedInAuthURL,
		linkedinTokenURL: defaultLinkedInTokenURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func randomState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Initiate starts an authorization flow for the user and platform. The
// returned URL is where the user's browser must go; the state ties the later
// callback to this flow. Twitter flows carry an S256 PKCE challenge whose
// verifier is persisted with the state.
func (s *Service) Initiate(userID string, platform models.PlatformType) (*Authorization, error) {
	if !models.IsValidPlatform(platform) {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidPlatform, platform)
	}

	state, err := randomState()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	record := models.OAuthState{
		State:     state,
		UserID:    userID,
		Platform:  platform,
		CreatedAt: now,
		ExpiresAt: now.Add(StateExpiry),
	}

	var authURL string
	switch platform {
	case models.PlatformTwitter:
		verifier, err := GenerateCodeVerifier()
		if err != nil {
			return nil, err
		}
		record.CodeVerifier = verifier

		params := url.Values{}
		params.Set("response_type", "code")
		params.Set("client_id", s.cfg.TwitterClientID)
		params.Set("redirect_uri", s.cfg.TwitterRedirectURI)
		params.Set("scope", twitterScopes)
		params.Set("state", state)
		params.Set("code_challenge", CodeChallenge(verifier))
		params.Set("code_challenge_method", "S256")
		authURL = s.twitterAuthURL + "?" + params.Encode()

	case models.PlatformLinkedIn:
		params := url.Values{}
		params.Set("response_type", "code")
		params.Set("client_id", s.cfg.LinkedInClientID)
		params.Set("redirect_uri", s.cfg.LinkedInRedirectURI)
		params.Set("scope", linkedinScopes)
		params.Set("state", state)
		authURL = s.linkedinAuthURL + "?" + params.Encode()
	}

	if err := s.store.SaveOAuthState(record); err != nil {
		return nil, fmt.Errorf("failed to persist oauth state: %w", err)
	}

	slog.Debug("Service.Initiate: flow started", "platform", platform, "state", state[:8])
	return &Authorization{State: state, AuthURL: authURL}, nil
}

// Callback completes a flow: it consumes the state, exchanges the code for
// tokens and stores them as the platform's credentials. The state is single
// use regardless of outcome.
func (s *Service) Callback(ctx context.Context, userID string, platform models.PlatformType, code, state string) error {
	record, err := s.store.ConsumeOAuthState(state)
	if err != nil {
		return fmt.Errorf("failed to consume oauth state: %w", err)
	}
	if record == nil {
		return ErrInvalidState
	}
	if record.UserID != userID {
		return ErrStateMismatch
	}
	if record.Platform != platform {
		return ErrPlatformMismatch
	}
	if record.Expired(s.now().UTC()) {
		return ErrStateExpired
	}

	var token *TokenResponse
	switch platform {
	case models.PlatformTwitter:
		token, err = s.exchangeTwitterCode(ctx, code, record.CodeVerifier)
	case models.PlatformLinkedIn:
		token, err = s.exchangeLinkedInCode(ctx, code)
	default:
		return fmt.Errorf("%w: %s", models.ErrInvalidPlatform, platform)
	}
	if err != nil {
		return err
	}

	if err := s.storeTokens(platform, token); err != nil {
		return err
	}

	slog.Info("Service.Callback: platform connected", "platform", platform)
	return nil
}

func (s *Service) exchangeTwitterCode(ctx context.Context, code, verifier string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", s.cfg.TwitterClientID)
	form.Set("redirect_uri", s.cfg.TwitterRedirectURI)
	form.Set("code_verifier", verifier)
	return s.postTokenForm(ctx, s.twitterTokenURL, form, true)
}

func (s *Service) exchangeLinkedInCode(ctx context.Context, code string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", s.cfg.LinkedInClientID)
	form.Set("client_secret", s.cfg.LinkedInClientSecret)
	form.Set("redirect_uri", s.cfg.LinkedInRedirectURI)
	return s.postTokenForm(ctx, s.linkedinTokenURL, form, false)
}

// postTokenForm posts a token request. Twitter requires HTTP basic auth with
// the client credentials; LinkedIn carries them in the form body.
func (s *Service) postTokenForm(ctx context.Context, tokenURL string, form url.Values, basicAuth bool) (*TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basicAuth {
		req.SetBasicAuth(s.cfg.TwitterClientID, s.cfg.TwitterClientSecret)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("token exchange failed: status %d - %s", resp.StatusCode, string(body))
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	return &token, nil
}

// storeTokens merges the new tokens into the platform's config row.
func (s *Service) storeTokens(platform models.PlatformType, token *TokenResponse) error {
	cfg, err := s.store.GetPlatformConfig(platform)
	if err != nil {
		return fmt.Errorf("failed to load platform config: %w", err)
	}
	if cfg == nil {
		cfg = &models.PlatformConfig{Platform: platform}
	}

	cfg.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		cfg.RefreshToken = token.RefreshToken
	}
	expiresIn := token.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultTokenExpiry
	}
	expiresAt := s.now().UTC().Add(time.Duration(expiresIn) * time.Second)
	cfg.TokenExpiresAt = &expiresAt
	cfg.IsActive = true

	if err := s.store.SavePlatformConfig(cfg); err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}
	return nil
}

// ConnectionStatus describes whether a platform has usable tokens.
type ConnectionStatus struct {
	Connected bool                `json:"connected"`
	Platform  models.PlatformType `json:"platform"`
	ExpiresAt *time.Time          `json:"expires_at,omitempty"`
}

// Status reports whether the platform is connected.
func (s *Service) Status(platform models.PlatformType) (*ConnectionStatus, error) {
	cfg, err := s.store.GetPlatformConfig(platform)
	if err != nil {
		return nil, fmt.Errorf("failed to load platform config: %w", err)
	}
	status := &ConnectionStatus{Platform: platform}
	if cfg != nil && cfg.AccessToken != "" {
		status.Connected = true
		status.ExpiresAt = cfg.TokenExpiresAt
	}
	return status, nil
}

// Disconnect drops the platform's stored tokens. It reports whether any
// tokens existed.
func (s *Service) Disconnect(platform models.PlatformType) (bool, error) {
	cfg, err := s.store.GetPlatformConfig(platform)
	if err != nil {
		return false, fmt.Errorf("failed to load platform config: %w", err)
	}
	if cfg == nil || cfg.AccessToken == "" {
		return false, nil
	}

	cfg.AccessToken = ""
	cfg.RefreshToken = ""
	cfg.TokenExpiresAt = nil
	cfg.IsActive = false
	if err := s.store.SavePlatformConfig(cfg); err != nil {
		return false, fmt.Errorf("failed to clear tokens: %w", err)
	}

	slog.Info("Service.Disconnect: platform disconnected", "platform", platform)
	return true, nil
}

// RefreshToken obtains a fresh access token using the stored refresh token.
// Only Twitter supports refresh; LinkedIn tokens live 60 days and must be
// re-authorized.
func (s *Service) RefreshToken(ctx context.Context, platform models.PlatformType) error {
	if platform == models.PlatformLinkedIn {
		return fmt.Errorf("linkedin: %w", ErrRefreshUnsupported)
	}
	if platform != models.PlatformTwitter {
		return fmt.Errorf("%w: %s", models.ErrInvalidPlatform, platform)
	}

	cfg, err := s.store.GetPlatformConfig(platform)
	if err != nil {
		return fmt.Errorf("failed to load platform config: %w", err)
	}
	if cfg == nil || cfg.RefreshToken == "" {
		return fmt.Errorf("twitter: %w", ErrNoRefreshToken)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cfg.RefreshToken)
	form.Set("client_id", s.cfg.TwitterClientID)
	token, err := s.postTokenForm(ctx, s.twitterTokenURL, form, true)
	if err != nil {
		return err
	}

	return s.storeTokens(platform, token)
}

// RegisterPurgeJob schedules periodic deletion of expired states on c.
func (s *Service) RegisterPurgeJob(c *cron.Cron) error {
	_, err := c.AddFunc(statePurgeSchedule, func() {
		n, err := s.store.PurgeExpiredOAuthStates(s.now().UTC())
		if err != nil {
			slog.Error("Service: oauth state purge failed", "error", err)
			return
		}
		if n > 0 {
			slog.Debug("Service: purged expired oauth states", "count", n)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to register purge job: %w", err)
	}
	return nil
}
