// Package store provides storage backends for PostFarm.
//
// This file implements the Postgres-backed store used against the Supabase
// cloud backend. Rows are keyed by UUIDs and scoped to the owning user.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/google/uuid"
	"github.com/postfarm/postfarm/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

const pgSelectScheduledPost = `SELECT id::text, user_id, draft_id, platform, content, scheduled_time,
	status, posted_at, error_message, created_at, updated_at FROM scheduled_posts`

func (s *PostgresStore) CreateScheduledPost(post *models.ScheduledPost) error {
	now := time.Now().UTC()
	post.CreatedAt = now
	post.UpdatedAt = now
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`INSERT INTO scheduled_posts
		(id, user_id, draft_id, platform, content, scheduled_time, status, posted_at, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		post.ID, post.UserID, post.DraftID, post.Platform, post.Content, post.ScheduledTime.UTC(),
		post.Status, nullableTime(post.PostedAt), nilIfEmpty(post.ErrorMessage), now, now)
	if err != nil {
		slog.Error("PostgresStore CreateScheduledPost failed", "error", err, "draftID", post.DraftID)
		return fmt.Errorf("failed to insert scheduled post: %w", err)
	}
	slog.Debug("PostgresStore CreateScheduledPost succeeded", "id", post.ID, "platform", post.Platform)
	return nil
}

func (s *PostgresStore) GetScheduledPost(id string) (*models.ScheduledPost, error) {
	if _, err := uuid.Parse(id); err != nil {
		slog.Debug("PostgresStore GetScheduledPost: non-UUID id", "id", id)
		return nil, nil
	}
	row := s.db.QueryRow(pgSelectScheduledPost+` WHERE id = $1`, id)
	post, err := scanScheduledPost(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetScheduledPost not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetScheduledPost failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get scheduled post %s: %w", id, err)
	}
	return &post, nil
}

func (s *PostgresStore) UpdateScheduledPost(post *models.ScheduledPost) error {
	post.UpdatedAt = time.Now().UTC()
	_, err := s.db.Exec(`UPDATE scheduled_posts SET platform = $1, content = $2, scheduled_time = $3,
		status = $4, posted_at = $5, error_message = $6, updated_at = $7 WHERE id = $8`,
		post.Platform, post.Content, post.ScheduledTime.UTC(), post.Status,
		nullableTime(post.PostedAt), nilIfEmpty(post.ErrorMessage), post.UpdatedAt, post.ID)
	if err != nil {
		slog.Error("PostgresStore UpdateScheduledPost failed", "error", err, "id", post.ID)
		return fmt.Errorf("failed to update scheduled post %s: %w", post.ID, err)
	}
	slog.Debug("PostgresStore UpdateScheduledPost succeeded", "id", post.ID, "status", post.Status)
	return nil
}

func (s *PostgresStore) ListScheduledPosts(filter PostFilter) ([]models.ScheduledPost, error) {
	query := pgSelectScheduledPost + ` WHERE 1=1`
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.UserID != "" {
		query += ` AND user_id = ` + arg(filter.UserID)
	}
	if filter.Status != "" {
		query += ` AND status = ` + arg(filter.Status)
	}
	if filter.Platform != "" {
		query += ` AND platform = ` + arg(filter.Platform)
	}
	if filter.After != nil {
		query += ` AND scheduled_time >= ` + arg(filter.After.UTC())
	}
	if filter.Before != nil {
		query += ` AND scheduled_time <= ` + arg(filter.Before.UTC())
	}
	query += ` ORDER BY scheduled_time DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit) + ` OFFSET ` + arg(filter.Skip)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore ListScheduledPosts query failed", "error", err)
		return nil, fmt.Errorf("failed to query scheduled posts: %w", err)
	}
	defer rows.Close()
	return collectScheduledPosts(rows)
}

func (s *PostgresStore) ListScheduledAfter(now time.Time) ([]models.ScheduledPost, error) {
	rows, err := s.db.Query(pgSelectScheduledPost+` WHERE status = $1 AND scheduled_time > $2 ORDER BY scheduled_time`,
		models.PostStatusScheduled, now.UTC())
	if err != nil {
		slog.Error("PostgresStore ListScheduledAfter query failed", "error", err)
		return nil, fmt.Errorf("failed to query pending scheduled posts: %w", err)
	}
	defer rows.Close()
	return collectScheduledPosts(rows)
}

func (s *PostgresStore) ListScheduledPostsChangedSince(userID string, since time.Time) ([]models.ScheduledPost, error) {
	rows, err := s.db.Query(pgSelectScheduledPost+` WHERE user_id = $1 AND updated_at > $2 ORDER BY updated_at`,
		userID, since.UTC())
	if err != nil {
		slog.Error("PostgresStore ListScheduledPostsChangedSince query failed", "error", err)
		return nil, fmt.Errorf("failed to query changed posts: %w", err)
	}
	defer rows.Close()
	return collectScheduledPosts(rows)
}

const pgSelectDraft = `SELECT id::text, user_id, title, content, prompt, tags,
	confirmed, scheduled_at, created_at, updated_at FROM drafts`

func (s *PostgresStore) CreateDraft(draft *models.Draft) error {
	now := time.Now().UTC()
	draft.CreatedAt = now
	draft.UpdatedAt = now
	if draft.ID == "" {
		draft.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`INSERT INTO drafts (id, user_id, title, content, prompt, tags, confirmed, scheduled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		draft.ID, draft.UserID, nilIfEmpty(draft.Title), draft.Content, nilIfEmpty(draft.Prompt),
		nilIfEmpty(joinTags(draft.Tags)), draft.Confirmed, nullableTime(draft.ScheduledAt), now, now)
	if err != nil {
		slog.Error("PostgresStore CreateDraft failed", "error", err)
		return fmt.Errorf("failed to insert draft: %w", err)
	}
	slog.Debug("PostgresStore CreateDraft succeeded", "id", draft.ID)
	return nil
}

func (s *PostgresStore) GetDraft(id, userID string) (*models.Draft, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	row := s.db.QueryRow(pgSelectDraft+` WHERE id = $1 AND user_id = $2`, id, userID)
	draft, err := scanDraft(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetDraft not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetDraft failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get draft %s: %w", id, err)
	}
	return &draft, nil
}

func (s *PostgresStore) UpdateDraft(draft *models.Draft) error {
	draft.UpdatedAt = time.Now().UTC()
	_, err := s.db.Exec(`UPDATE drafts SET title = $1, content = $2, prompt = $3, tags = $4, confirmed = $5, scheduled_at = $6, updated_at = $7
		WHERE id = $8 AND user_id = $9`,
		nilIfEmpty(draft.Title), draft.Content, nilIfEmpty(draft.Prompt), nilIfEmpty(joinTags(draft.Tags)),
		draft.Confirmed, nullableTime(draft.ScheduledAt), draft.UpdatedAt, draft.ID, draft.UserID)
	if err != nil {
		slog.Error("PostgresStore UpdateDraft failed", "error", err, "id", draft.ID)
		return fmt.Errorf("failed to update draft %s: %w", draft.ID, err)
	}
	slog.Debug("PostgresStore UpdateDraft succeeded", "id", draft.ID)
	return nil
}

func (s *PostgresStore) DeleteDraft(id, userID string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	res, err := s.db.Exec(`DELETE FROM drafts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		slog.Error("PostgresStore DeleteDraft failed", "error", err, "id", id)
		return false, fmt.Errorf("failed to delete draft %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	slog.Debug("PostgresStore DeleteDraft succeeded", "id", id, "deleted", n > 0)
	return n > 0, nil
}

func (s *PostgresStore) ListDrafts(userID string, skip, limit int) ([]models.Draft, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(pgSelectDraft+` WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, skip)
	if err != nil {
		slog.Error("PostgresStore ListDrafts query failed", "error", err)
		return nil, fmt.Errorf("failed to query drafts: %w", err)
	}
	defer rows.Close()
	return collectDrafts(rows)
}

func (s *PostgresStore) ListDraftsChangedSince(userID string, since time.Time) ([]models.Draft, error) {
	rows, err := s.db.Query(pgSelectDraft+` WHERE user_id = $1 AND updated_at > $2 ORDER BY updated_at`,
		userID, since.UTC())
	if err != nil {
		slog.Error("PostgresStore ListDraftsChangedSince query failed", "error", err)
		return nil, fmt.Errorf("failed to query changed drafts: %w", err)
	}
	defer rows.Close()
	return collectDrafts(rows)
}

const pgSelectPlatformConfig = `SELECT id::text, platform, api_key, api_secret, access_token,
	access_token_secret, bearer_token, refresh_token, linkedin_org_id, is_active, token_expires_at, updated_at
	FROM platform_configs`

func (s *PostgresStore) GetPlatformConfig(platform models.PlatformType) (*models.PlatformConfig, error) {
	row := s.db.QueryRow(pgSelectPlatformConfig+` WHERE platform = $1`, platform)
	cfg, err := scanPlatformConfig(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore GetPlatformConfig not found", "platform", platform)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetPlatformConfig failed", "error", err, "platform", platform)
		return nil, fmt.Errorf("failed to get platform config for %s: %w", platform, err)
	}
	return &cfg, nil
}

func (s *PostgresStore) SavePlatformConfig(cfg *models.PlatformConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`INSERT INTO platform_configs
		(id, platform, api_key, api_secret, access_token, access_token_secret, bearer_token, refresh_token, linkedin_org_id, is_active, token_expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (platform) DO UPDATE SET
			api_key = EXCLUDED.api_key,
			api_secret = EXCLUDED.api_secret,
			access_token = EXCLUDED.access_token,
			access_token_secret = EXCLUDED.access_token_secret,
			bearer_token = EXCLUDED.bearer_token,
			refresh_token = EXCLUDED.refresh_token,
			linkedin_org_id = EXCLUDED.linkedin_org_id,
			is_active = EXCLUDED.is_active,
			token_expires_at = EXCLUDED.token_expires_at,
			updated_at = EXCLUDED.updated_at`,
		cfg.ID, cfg.Platform, nilIfEmpty(cfg.APIKey), nilIfEmpty(cfg.APISecret), nilIfEmpty(cfg.AccessToken),
		nilIfEmpty(cfg.AccessTokenSecret), nilIfEmpty(cfg.BearerToken), nilIfEmpty(cfg.RefreshToken),
		nilIfEmpty(cfg.LinkedInOrgID), cfg.IsActive, nullableTime(cfg.TokenExpiresAt), cfg.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SavePlatformConfig failed", "error", err, "platform", cfg.Platform)
		return fmt.Errorf("failed to save platform config for %s: %w", cfg.Platform, err)
	}
	slog.Debug("PostgresStore SavePlatformConfig succeeded", "platform", cfg.Platform)
	return nil
}

func (s *PostgresStore) ListPlatformConfigs() ([]models.PlatformConfig, error) {
	rows, err := s.db.Query(pgSelectPlatformConfig + ` ORDER BY platform`)
	if err != nil {
		slog.Error("PostgresStore ListPlatformConfigs query failed", "error", err)
		return nil, fmt.Errorf("failed to query platform configs: %w", err)
	}
	defer rows.Close()

	var configs []models.PlatformConfig
	for rows.Next() {
		c, err := scanPlatformConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan platform config row: %w", err)
		}
		configs = append(configs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate platform config rows: %w", err)
	}
	return configs, nil
}

func (s *PostgresStore) SaveOAuthState(state models.OAuthState) error {
	_, err := s.db.Exec(`INSERT INTO oauth_states (state, user_id, platform, code_verifier, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (state) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			platform = EXCLUDED.platform,
			code_verifier = EXCLUDED.code_verifier,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at`,
		state.State, state.UserID, state.Platform, nilIfEmpty(state.CodeVerifier),
		state.CreatedAt.UTC(), state.ExpiresAt.UTC())
	if err != nil {
		slog.Error("PostgresStore SaveOAuthState failed", "error", err)
		return fmt.Errorf("failed to save oauth state: %w", err)
	}
	slog.Debug("PostgresStore SaveOAuthState succeeded", "platform", state.Platform)
	return nil
}

func (s *PostgresStore) ConsumeOAuthState(state string) (*models.OAuthState, error) {
	row := s.db.QueryRow(`DELETE FROM oauth_states WHERE state = $1
		RETURNING state, user_id, platform, code_verifier, created_at, expires_at`, state)
	var st models.OAuthState
	var verifier sql.NullString
	err := row.Scan(&st.State, &st.UserID, &st.Platform, &verifier, &st.CreatedAt, &st.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore ConsumeOAuthState failed", "error", err)
		return nil, fmt.Errorf("failed to consume oauth state: %w", err)
	}
	st.CodeVerifier = verifier.String
	return &st, nil
}

func (s *PostgresStore) PurgeExpiredOAuthStates(now time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM oauth_states WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		slog.Error("PostgresStore PurgeExpiredOAuthStates failed", "error", err)
		return 0, fmt.Errorf("failed to purge oauth states: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *PostgresStore) GetProviderConfig(name string) (*models.ProviderConfig, error) {
	row := s.db.QueryRow(`SELECT provider_name, config_json, is_active, updated_at FROM provider_configs WHERE provider_name = $1`, name)
	cfg, err := scanProviderConfig(row)
	if err != nil {
		slog.Error("PostgresStore GetProviderConfig failed", "error", err, "provider", name)
		return nil, fmt.Errorf("failed to get provider config for %s: %w", name, err)
	}
	return cfg, nil
}

func (s *PostgresStore) GetActiveProviderConfig() (*models.ProviderConfig, error) {
	row := s.db.QueryRow(`SELECT provider_name, config_json, is_active, updated_at FROM provider_configs WHERE is_active LIMIT 1`)
	cfg, err := scanProviderConfig(row)
	if err != nil {
		slog.Error("PostgresStore GetActiveProviderConfig failed", "error", err)
		return nil, fmt.Errorf("failed to get active provider config: %w", err)
	}
	return cfg, nil
}

func (s *PostgresStore) SaveProviderConfig(cfg *models.ProviderConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	_, err := s.db.Exec(`INSERT INTO provider_configs (provider_name, config_json, is_active, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider_name) DO UPDATE SET
			config_json = EXCLUDED.config_json,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at`,
		cfg.ProviderName, nilIfEmpty(cfg.ConfigJSON), cfg.IsActive, cfg.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveProviderConfig failed", "error", err, "provider", cfg.ProviderName)
		return fmt.Errorf("failed to save provider config for %s: %w", cfg.ProviderName, err)
	}
	slog.Debug("PostgresStore SaveProviderConfig succeeded", "provider", cfg.ProviderName)
	return nil
}

func (s *PostgresStore) SetActiveProvider(name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE provider_configs SET is_active = FALSE`); err != nil {
		slog.Error("PostgresStore SetActiveProvider failed", "error", err, "provider", name)
		return fmt.Errorf("failed to deactivate providers: %w", err)
	}
	now := time.Now().UTC()
	if _, err := tx.Exec(`INSERT INTO provider_configs (provider_name, config_json, is_active, updated_at)
		VALUES ($1, NULL, TRUE, $2)
		ON CONFLICT (provider_name) DO UPDATE SET
			is_active = TRUE,
			updated_at = EXCLUDED.updated_at`, name, now); err != nil {
		slog.Error("PostgresStore SetActiveProvider failed", "error", err, "provider", name)
		return fmt.Errorf("failed to activate provider %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit provider activation: %w", err)
	}
	slog.Debug("PostgresStore SetActiveProvider succeeded", "provider", name)
	return nil
}

func (s *PostgresStore) RecordDeletion(d models.Deletion) error {
	_, err := s.db.Exec(`INSERT INTO deletions (user_id, entity_type, entity_id, deleted_at) VALUES ($1, $2, $3, $4)`,
		d.UserID, d.EntityType, d.EntityID, d.DeletedAt.UTC())
	if err != nil {
		slog.Error("PostgresStore RecordDeletion failed", "error", err, "entityID", d.EntityID)
		return fmt.Errorf("failed to record deletion of %s %s: %w", d.EntityType, d.EntityID, err)
	}
	return nil
}

func (s *PostgresStore) ListDeletionsSince(userID string, since time.Time) ([]models.Deletion, error) {
	rows, err := s.db.Query(`SELECT user_id, entity_type, entity_id, deleted_at FROM deletions
		WHERE user_id = $1 AND deleted_at > $2 ORDER BY deleted_at`, userID, since.UTC())
	if err != nil {
		slog.Error("PostgresStore ListDeletionsSince query failed", "error", err)
		return nil, fmt.Errorf("failed to query deletions: %w", err)
	}
	defer rows.Close()

	var deletions []models.Deletion
	for rows.Next() {
		var d models.Deletion
		if err := rows.Scan(&d.UserID, &d.EntityType, &d.EntityID, &d.DeletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan deletion row: %w", err)
		}
		deletions = append(deletions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate deletion rows: %w", err)
	}
	return deletions, nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
