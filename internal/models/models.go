// Package models defines the core data structures for PostFarm.
//
// It includes types for drafts, scheduled posts, platform credentials, and
// OAuth connection state, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// PlatformType identifies a social media publishing target.
type PlatformType string

const (
	// PlatformTwitter publishes via the Twitter/X API v2.
	PlatformTwitter PlatformType = "twitter"
	// PlatformLinkedIn publishes via the LinkedIn UGC Posts API.
	PlatformLinkedIn PlatformType = "linkedin"
)

// IsValidPlatform checks if the given platform is supported.
func IsValidPlatform(p PlatformType) bool {
	switch p {
	case PlatformTwitter, PlatformLinkedIn:
		return true
	default:
		return false
	}
}

// PostStatus represents the lifecycle state of a scheduled post.
type PostStatus string

const (
	// PostStatusScheduled means the post is waiting for its fire time.
	PostStatusScheduled PostStatus = "scheduled"
	// PostStatusPosted means the post was published successfully.
	PostStatusPosted PostStatus = "posted"
	// PostStatusFailed means all publish attempts were exhausted.
	PostStatusFailed PostStatus = "failed"
	// PostStatusCancelled means the post was cancelled before publication.
	PostStatusCancelled PostStatus = "cancelled"
)

// IsValidPostStatus checks if the given status is a known lifecycle state.
func IsValidPostStatus(s PostStatus) bool {
	switch s {
	case PostStatusScheduled, PostStatusPosted, PostStatusFailed, PostStatusCancelled:
		return true
	default:
		return false
	}
}

// Validation constants for input validation
const (
	// MaxTweetLength is the Twitter/X character limit per post.
	MaxTweetLength = 280
	// MaxContentLength defines the maximum allowed length for post content
	// (bounded by the most permissive supported platform, LinkedIn).
	MaxContentLength = 3000
	// MaxDraftTitleLength defines the maximum allowed length for draft titles
	MaxDraftTitleLength = 200
)

// Error variables for better error handling and testability
var (
	ErrEmptyContent       = errors.New("content cannot be empty")
	ErrContentTooLong     = errors.New("content exceeds maximum length")
	ErrInvalidPlatform    = errors.New("invalid platform")
	ErrInvalidPostStatus  = errors.New("invalid post status")
	ErrScheduledTimePast  = errors.New("scheduled time must be in the future")
	ErrDraftTitleTooLong  = errors.New("draft title exceeds maximum length")
	ErrMissingDraftID     = errors.New("draft id is required")
	ErrMissingScheduledAt = errors.New("scheduled time is required")
)

// ScheduledPost represents a post bound to a platform and a fire time.
//
// IDs are opaque strings: the SQLite backend uses integer keys rendered as
// strings, the Postgres backend uses UUIDs. The scheduling core never
// inspects the ID beyond equality.
type ScheduledPost struct {
	ID            string       `json:"id"`
	UserID        string       `json:"user_id,omitempty"`
	DraftID       string       `json:"draft_id"`
	Platform      PlatformType `json:"platform"`
	Content       string       `json:"content"`
	ScheduledTime time.Time    `json:"scheduled_time"`
	Status        PostStatus   `json:"status"`
	PostedAt      *time.Time   `json:"posted_at,omitempty"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Validate performs validation on a ScheduledPost before persisting it.
func (p *ScheduledPost) Validate() error {
	if p.Content == "" {
		return ErrEmptyContent
	}
	if len(p.Content) > MaxContentLength {
		return ErrContentTooLong
	}
	if !IsValidPlatform(p.Platform) {
		return ErrInvalidPlatform
	}
	if !IsValidPostStatus(p.Status) {
		return ErrInvalidPostStatus
	}
	if p.ScheduledTime.IsZero() {
		return ErrMissingScheduledAt
	}
	return nil
}

// Draft represents a piece of content being worked on before scheduling.
type Draft struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id,omitempty"`
	Title       string     `json:"title,omitempty"`
	Content     string     `json:"content"`
	Prompt      string     `json:"prompt,omitempty"`
	Tags        []string   `json:"tags"`
	Confirmed   bool       `json:"confirmed"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Validate performs validation on a Draft.
func (d *Draft) Validate() error {
	if d.Content == "" {
		return ErrEmptyContent
	}
	if len(d.Title) > MaxDraftTitleLength {
		return ErrDraftTitleTooLong
	}
	return nil
}

// PlatformConfig holds API credentials for one publishing platform.
type PlatformConfig struct {
	ID                string       `json:"id"`
	Platform          PlatformType `json:"platform"`
	APIKey            string       `json:"-"`
	APISecret         string       `json:"-"`
	AccessToken       string       `json:"-"`
	AccessTokenSecret string       `json:"-"`
	BearerToken       string       `json:"-"`
	RefreshToken      string       `json:"-"`
	LinkedInOrgID     string       `json:"linkedin_org_id,omitempty"`
	IsActive          bool         `json:"is_active"`
	TokenExpiresAt    *time.Time   `json:"token_expires_at,omitempty"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// HasCredentials reports whether usable credentials are present.
func (c *PlatformConfig) HasCredentials() bool {
	return c.BearerToken != "" || (c.AccessToken != "" && (c.APIKey != "" || c.Platform == PlatformLinkedIn))
}

// OAuthState tracks one in-flight OAuth authorization flow.
type OAuthState struct {
	State        string       `json:"state"`
	UserID       string       `json:"user_id"`
	Platform     PlatformType `json:"platform"`
	CodeVerifier string       `json:"-"`
	CreatedAt    time.Time    `json:"created_at"`
	ExpiresAt    time.Time    `json:"expires_at"`
}

// Expired reports whether the state is past its expiry at the given instant.
func (s *OAuthState) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Deletion is a tombstone recording an entity removal for sync clients.
type Deletion struct {
	UserID     string    `json:"user_id"`
	EntityType string    `json:"entity_type"` // "draft" or "scheduled_post"
	EntityID   string    `json:"entity_id"`
	DeletedAt  time.Time `json:"deleted_at"`
}

// ProviderConfig holds per-provider JSON configuration for the genai layer.
type ProviderConfig struct {
	ProviderName string    `json:"provider_name"`
	ConfigJSON   string    `json:"config_json"`
	IsActive     bool      `json:"is_active"`
	UpdatedAt    time.Time `json:"updated_at"`
}
