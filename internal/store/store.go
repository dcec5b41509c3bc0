// Package store provides storage backends for PostFarm.
//
// It includes an SQLite-backed store for local single-user deployments and a
// Postgres-backed store for the user-scoped Supabase cloud backend. Both
// implement the Store interface; callers never branch on backend identity.
package store

import (
	"strings"
	"time"

	"github.com/postfarm/postfarm/internal/models"
)

// PostFilter narrows ListScheduledPosts results.
type PostFilter struct {
	UserID   string
	Status   models.PostStatus
	Platform models.PlatformType
	After    *time.Time
	Before   *time.Time
	Skip     int
	Limit    int
}

// Store defines the persistence interface shared by all backends.
//
// Lookup methods return (nil, nil) when the entity does not exist; errors are
// reserved for storage failures. Post and draft IDs are opaque strings: the
// SQLite backend renders integer keys as strings, the Postgres backend uses
// UUIDs.
type Store interface {
	// Scheduled posts
	CreateScheduledPost(post *models.ScheduledPost) error
	GetScheduledPost(id string) (*models.ScheduledPost, error)
	UpdateScheduledPost(post *models.ScheduledPost) error
	ListScheduledPosts(filter PostFilter) ([]models.ScheduledPost, error)
	// ListScheduledAfter returns posts in scheduled status whose fire time is
	// strictly after the given instant. Used by the startup reconciler.
	ListScheduledAfter(now time.Time) ([]models.ScheduledPost, error)

	// Drafts
	CreateDraft(draft *models.Draft) error
	GetDraft(id, userID string) (*models.Draft, error)
	UpdateDraft(draft *models.Draft) error
	DeleteDraft(id, userID string) (bool, error)
	ListDrafts(userID string, skip, limit int) ([]models.Draft, error)
	ListDraftsChangedSince(userID string, since time.Time) ([]models.Draft, error)
	ListScheduledPostsChangedSince(userID string, since time.Time) ([]models.ScheduledPost, error)

	// Platform credentials
	GetPlatformConfig(platform models.PlatformType) (*models.PlatformConfig, error)
	SavePlatformConfig(cfg *models.PlatformConfig) error
	ListPlatformConfigs() ([]models.PlatformConfig, error)

	// OAuth flow state
	SaveOAuthState(state models.OAuthState) error
	// ConsumeOAuthState removes and returns the state in one step so each
	// state can be redeemed at most once.
	ConsumeOAuthState(state string) (*models.OAuthState, error)
	PurgeExpiredOAuthStates(now time.Time) (int, error)

	// GenAI provider configuration
	GetProviderConfig(name string) (*models.ProviderConfig, error)
	// GetActiveProviderConfig returns the config marked active, or nil when
	// no provider has been selected.
	GetActiveProviderConfig() (*models.ProviderConfig, error)
	SaveProviderConfig(cfg *models.ProviderConfig) error
	// SetActiveProvider marks name as the single active provider, creating
	// its config row if needed.
	SetActiveProvider(name string) error

	// Sync tombstones
	RecordDeletion(d models.Deletion) error
	ListDeletionsSince(userID string, since time.Time) ([]models.Deletion, error)

	Close() error
}

// Opts holds backend configuration applied via Option values.
type Opts struct {
	DSN string
}

// Option configures a store backend.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets the Postgres connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite" by its shape.
// File paths and file: URLs are treated as SQLite.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
