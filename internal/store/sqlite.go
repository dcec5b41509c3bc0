// Package store provides storage backends for PostFarm.
//
// This file implements the SQLite-backed store used for local single-user
// deployments. Rows are keyed by integer autoincrement IDs exposed to callers
// as strings; user scoping is not enforced in this mode.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "embed"

	"github.com/postfarm/postfarm/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given options.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	slog.Debug("Opening SQLite database connection")
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// parseIntID converts an opaque string ID back to the integer key. Unparsable
// IDs are treated as not-found rather than errors.
func parseIntID(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

const sqliteSelectScheduledPost = `SELECT CAST(id AS TEXT), user_id, draft_id, platform, content, scheduled_time,
	status, posted_at, error_message, created_at, updated_at FROM scheduled_posts`

func (s *SQLiteStore) CreateScheduledPost(post *models.ScheduledPost) error {
	now := time.Now().UTC()
	post.CreatedAt = now
	post.UpdatedAt = now
	res, err := s.db.Exec(`INSERT INTO scheduled_posts
		(user_id, draft_id, platform, content, scheduled_time, status, posted_at, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.UserID, post.DraftID, post.Platform, post.Content, post.ScheduledTime.UTC(),
		post.Status, nullableTime(post.PostedAt), nilIfEmpty(post.ErrorMessage), now, now)
	if err != nil {
		slog.Error("SQLiteStore CreateScheduledPost failed", "error", err, "draftID", post.DraftID)
		return fmt.Errorf("failed to insert scheduled post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		slog.Error("SQLiteStore CreateScheduledPost LastInsertId failed", "error", err)
		return fmt.Errorf("failed to read scheduled post id: %w", err)
	}
	post.ID = strconv.FormatInt(id, 10)
	slog.Debug("SQLiteStore CreateScheduledPost succeeded", "id", post.ID, "platform", post.Platform)
	return nil
}

func (s *SQLiteStore) GetScheduledPost(id string) (*models.ScheduledPost, error) {
	key, ok := parseIntID(id)
	if !ok {
		slog.Debug("SQLiteStore GetScheduledPost: non-numeric id", "id", id)
		return nil, nil
	}
	row := s.db.QueryRow(sqliteSelectScheduledPost+` WHERE id = ?`, key)
	post, err := scanScheduledPost(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetScheduledPost not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetScheduledPost failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get scheduled post %s: %w", id, err)
	}
	return &post, nil
}

func (s *SQLiteStore) UpdateScheduledPost(post *models.ScheduledPost) error {
	key, ok := parseIntID(post.ID)
	if !ok {
		return fmt.Errorf("invalid scheduled post id: %s", post.ID)
	}
	post.UpdatedAt = time.Now().UTC()
	_, err := s.db.Exec(`UPDATE scheduled_posts SET platform = ?, content = ?, scheduled_time = ?,
		status = ?, posted_at = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		post.Platform, post.Content, post.ScheduledTime.UTC(), post.Status,
		nullableTime(post.PostedAt), nilIfEmpty(post.ErrorMessage), post.UpdatedAt, key)
	if err != nil {
		slog.Error("SQLiteStore UpdateScheduledPost failed", "error", err, "id", post.ID)
		return fmt.Errorf("failed to update scheduled post %s: %w", post.ID, err)
	}
	slog.Debug("SQLiteStore UpdateScheduledPost succeeded", "id", post.ID, "status", post.Status)
	return nil
}

func (s *SQLiteStore) ListScheduledPosts(filter PostFilter) ([]models.ScheduledPost, error) {
	query := sqliteSelectScheduledPost + ` WHERE 1=1`
	var args []interface{}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.Platform != "" {
		query += ` AND platform = ?`
		args = append(args, filter.Platform)
	}
	if filter.After != nil {
		query += ` AND scheduled_time >= ?`
		args = append(args, filter.After.UTC())
	}
	if filter.Before != nil {
		query += ` AND scheduled_time <= ?`
		args = append(args, filter.Before.UTC())
	}
	query += ` ORDER BY scheduled_time DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Skip)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore ListScheduledPosts query failed", "error", err)
		return nil, fmt.Errorf("failed to query scheduled posts: %w", err)
	}
	defer rows.Close()
	return collectScheduledPosts(rows)
}

func (s *SQLiteStore) ListScheduledAfter(now time.Time) ([]models.ScheduledPost, error) {
	rows, err := s.db.Query(sqliteSelectScheduledPost+` WHERE status = ? AND scheduled_time > ? ORDER BY scheduled_time`,
		models.PostStatusScheduled, now.UTC())
	if err != nil {
		slog.Error("SQLiteStore ListScheduledAfter query failed", "error", err)
		return nil, fmt.Errorf("failed to query pending scheduled posts: %w", err)
	}
	defer rows.Close()
	return collectScheduledPosts(rows)
}

func (s *SQLiteStore) ListScheduledPostsChangedSince(userID string, since time.Time) ([]models.ScheduledPost, error) {
	rows, err := s.db.Query(sqliteSelectScheduledPost+` WHERE user_id = ? AND updated_at > ? ORDER BY updated_at`,
		userID, since.UTC())
	if err != nil {
		slog.Error("SQLiteStore ListScheduledPostsChangedSince query failed", "error", err)
		return nil, fmt.Errorf("failed to query changed posts: %w", err)
	}
	defer rows.Close()
	return collectScheduledPosts(rows)
}

func collectScheduledPosts(rows *sql.Rows) ([]models.ScheduledPost, error) {
	var posts []models.ScheduledPost
	for rows.Next() {
		p, err := scanScheduledPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled post row: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate scheduled post rows: %w", err)
	}
	return posts, nil
}

const sqliteSelectDraft = `SELECT CAST(id AS TEXT), user_id, title, content, prompt, tags,
	confirmed, scheduled_at, created_at, updated_at FROM drafts`

func (s *SQLiteStore) CreateDraft(draft *models.Draft) error {
	now := time.Now().UTC()
	draft.CreatedAt = now
	draft.UpdatedAt = now
	res, err := s.db.Exec(`INSERT INTO drafts (user_id, title, content, prompt, tags, confirmed, scheduled_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		draft.UserID, nilIfEmpty(draft.Title), draft.Content, nilIfEmpty(draft.Prompt),
		nilIfEmpty(joinTags(draft.Tags)), draft.Confirmed, nullableTime(draft.ScheduledAt), now, now)
	if err != nil {
		slog.Error("SQLiteStore CreateDraft failed", "error", err)
		return fmt.Errorf("failed to insert draft: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read draft id: %w", err)
	}
	draft.ID = strconv.FormatInt(id, 10)
	slog.Debug("SQLiteStore CreateDraft succeeded", "id", draft.ID)
	return nil
}

func (s *SQLiteStore) GetDraft(id, userID string) (*models.Draft, error) {
	key, ok := parseIntID(id)
	if !ok {
		return nil, nil
	}
	row := s.db.QueryRow(sqliteSelectDraft+` WHERE id = ? AND user_id = ?`, key, userID)
	draft, err := scanDraft(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetDraft not found", "id", id)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetDraft failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get draft %s: %w", id, err)
	}
	return &draft, nil
}

func (s *SQLiteStore) UpdateDraft(draft *models.Draft) error {
	key, ok := parseIntID(draft.ID)
	if !ok {
		return fmt.Errorf("invalid draft id: %s", draft.ID)
	}
	draft.UpdatedAt = time.Now().UTC()
	_, err := s.db.Exec(`UPDATE drafts SET title = ?, content = ?, prompt = ?, tags = ?, confirmed = ?, scheduled_at = ?, updated_at = ?
		WHERE id = ?`,
		nilIfEmpty(draft.Title), draft.Content, nilIfEmpty(draft.Prompt), nilIfEmpty(joinTags(draft.Tags)),
		draft.Confirmed, nullableTime(draft.ScheduledAt), draft.UpdatedAt, key)
	if err != nil {
		slog.Error("SQLiteStore UpdateDraft failed", "error", err, "id", draft.ID)
		return fmt.Errorf("failed to update draft %s: %w", draft.ID, err)
	}
	slog.Debug("SQLiteStore UpdateDraft succeeded", "id", draft.ID)
	return nil
}

func (s *SQLiteStore) DeleteDraft(id, userID string) (bool, error) {
	key, ok := parseIntID(id)
	if !ok {
		return false, nil
	}
	res, err := s.db.Exec(`DELETE FROM drafts WHERE id = ? AND user_id = ?`, key, userID)
	if err != nil {
		slog.Error("SQLiteStore DeleteDraft failed", "error", err, "id", id)
		return false, fmt.Errorf("failed to delete draft %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	slog.Debug("SQLiteStore DeleteDraft succeeded", "id", id, "deleted", n > 0)
	return n > 0, nil
}

func (s *SQLiteStore) ListDrafts(userID string, skip, limit int) ([]models.Draft, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(sqliteSelectDraft+` WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		userID, limit, skip)
	if err != nil {
		slog.Error("SQLiteStore ListDrafts query failed", "error", err)
		return nil, fmt.Errorf("failed to query drafts: %w", err)
	}
	defer rows.Close()
	return collectDrafts(rows)
}

func (s *SQLiteStore) ListDraftsChangedSince(userID string, since time.Time) ([]models.Draft, error) {
	rows, err := s.db.Query(sqliteSelectDraft+` WHERE user_id = ? AND updated_at > ? ORDER BY updated_at`,
		userID, since.UTC())
	if err != nil {
		slog.Error("SQLiteStore ListDraftsChangedSince query failed", "error", err)
		return nil, fmt.Errorf("failed to query changed drafts: %w", err)
	}
	defer rows.Close()
	return collectDrafts(rows)
}

func collectDrafts(rows *sql.Rows) ([]models.Draft, error) {
	var drafts []models.Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan draft row: %w", err)
		}
		drafts = append(drafts, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate draft rows: %w", err)
	}
	return drafts, nil
}

const sqliteSelectPlatformConfig = `SELECT CAST(id AS TEXT), platform, api_key, api_secret, access_token,
	access_token_secret, bearer_token, refresh_token, linkedin_org_id, is_active, token_expires_at, updated_at
	FROM platform_configs`

func (s *SQLiteStore) GetPlatformConfig(platform models.PlatformType) (*models.PlatformConfig, error) {
	row := s.db.QueryRow(sqliteSelectPlatformConfig+` WHERE platform = ?`, platform)
	cfg, err := scanPlatformConfig(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetPlatformConfig not found", "platform", platform)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetPlatformConfig failed", "error", err, "platform", platform)
		return nil, fmt.Errorf("failed to get platform config for %s: %w", platform, err)
	}
	return &cfg, nil
}

func (s *SQLiteStore) SavePlatformConfig(cfg *models.PlatformConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	_, err := s.db.Exec(`INSERT INTO platform_configs
		(platform, api_key, api_secret, access_token, access_token_secret, bearer_token, refresh_token, linkedin_org_id, is_active, token_expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(platform) DO UPDATE SET
			api_key = excluded.api_key,
			api_secret = excluded.api_secret,
			access_token = excluded.access_token,
			access_token_secret = excluded.access_token_secret,
			bearer_token = excluded.bearer_token,
			refresh_token = excluded.refresh_token,
			linkedin_org_id = excluded.linkedin_org_id,
			is_active = excluded.is_active,
			token_expires_at = excluded.token_expires_at,
			updated_at = excluded.updated_at`,
		cfg.Platform, nilIfEmpty(cfg.APIKey), nilIfEmpty(cfg.APISecret), nilIfEmpty(cfg.AccessToken),
		nilIfEmpty(cfg.AccessTokenSecret), nilIfEmpty(cfg.BearerToken), nilIfEmpty(cfg.RefreshToken),
		nilIfEmpty(cfg.LinkedInOrgID), cfg.IsActive, nullableTime(cfg.TokenExpiresAt), cfg.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SavePlatformConfig failed", "error", err, "platform", cfg.Platform)
		return fmt.Errorf("failed to save platform config for %s: %w", cfg.Platform, err)
	}
	slog.Debug("SQLiteStore SavePlatformConfig succeeded", "platform", cfg.Platform)
	return nil
}

func (s *SQLiteStore) ListPlatformConfigs() ([]models.PlatformConfig, error) {
	rows, err := s.db.Query(sqliteSelectPlatformConfig + ` ORDER BY platform`)
	if err != nil {
		slog.Error("SQLiteStore ListPlatformConfigs query failed", "error", err)
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

func (s *SQLiteStore) SaveOAuthState(state models.OAuthState) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO oauth_states (state, user_id, platform, code_verifier, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		state.State, state.UserID, state.Platform, nilIfEmpty(state.CodeVerifier),
		state.CreatedAt.UTC(), state.ExpiresAt.UTC())
	if err != nil {
		slog.Error("SQLiteStore SaveOAuthState failed", "error", err)
		return fmt.Errorf("failed to save oauth state: %w", err)
	}
	slog.Debug("SQLiteStore SaveOAuthState succeeded", "platform", state.Platform)
	return nil
}

func (s *SQLiteStore) ConsumeOAuthState(state string) (*models.OAuthState, error) {
	row := s.db.QueryRow(`SELECT state, user_id, platform, code_verifier, created_at, expires_at
		FROM oauth_states WHERE state = ?`, state)
	var st models.OAuthState
	var verifier sql.NullString
	err := row.Scan(&st.State, &st.UserID, &st.Platform, &verifier, &st.CreatedAt, &st.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore ConsumeOAuthState failed", "error", err)
		return nil, fmt.Errorf("failed to get oauth state: %w", err)
	}
	st.CodeVerifier = verifier.String
	if _, err := s.db.Exec(`DELETE FROM oauth_states WHERE state = ?`, state); err != nil {
		slog.Error("SQLiteStore ConsumeOAuthState delete failed", "error", err)
		return nil, fmt.Errorf("failed to consume oauth state: %w", err)
	}
	return &st, nil
}

func (s *SQLiteStore) PurgeExpiredOAuthStates(now time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM oauth_states WHERE expires_at <= ?`, now.UTC())
	if err != nil {
		slog.Error("SQLiteStore PurgeExpiredOAuthStates failed", "error", err)
		return 0, fmt.Errorf("failed to purge oauth states: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLiteStore) GetProviderConfig(name string) (*models.ProviderConfig, error) {
	row := s.db.QueryRow(`SELECT provider_name, config_json, is_active, updated_at FROM provider_configs WHERE provider_name = ?`, name)
	cfg, err := scanProviderConfig(row)
	if err != nil {
		slog.Error("SQLiteStore GetProviderConfig failed", "error", err, "provider", name)
		return nil, fmt.Errorf("failed to get provider config for %s: %w", name, err)
	}
	return cfg, nil
}

func (s *SQLiteStore) GetActiveProviderConfig() (*models.ProviderConfig, error) {
	row := s.db.QueryRow(`SELECT provider_name, config_json, is_active, updated_at FROM provider_configs WHERE is_active = 1 LIMIT 1`)
	cfg, err := scanProviderConfig(row)
	if err != nil {
		slog.Error("SQLiteStore GetActiveProviderConfig failed", "error", err)
		return nil, fmt.Errorf("failed to get active provider config: %w", err)
	}
	return cfg, nil
}

func (s *SQLiteStore) SaveProviderConfig(cfg *models.ProviderConfig) error {
	cfg.UpdatedAt = time.Now().UTC()
	_, err := s.db.Exec(`INSERT OR REPLACE INTO provider_configs (provider_name, config_json, is_active, updated_at)
		VALUES (?, ?, ?, ?)`, cfg.ProviderName, nilIfEmpty(cfg.ConfigJSON), cfg.IsActive, cfg.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveProviderConfig failed", "error", err, "provider", cfg.ProviderName)
		return fmt.Errorf("failed to save provider config for %s: %w", cfg.ProviderName, err)
	}
	slog.Debug("SQLiteStore SaveProviderConfig succeeded", "provider", cfg.ProviderName)
	return nil
}

func (s *SQLiteStore) SetActiveProvider(name string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE provider_configs SET is_active = 0`); err != nil {
		slog.Error("SQLiteStore SetActiveProvider failed", "error", err, "provider", name)
		return fmt.Errorf("failed to deactivate providers: %w", err)
	}
	now := time.Now().UTC()
	res, err := tx.Exec(`UPDATE provider_configs SET is_active = 1, updated_at = ? WHERE provider_name = ?`, now, name)
	if err != nil {
		slog.Error("SQLiteStore SetActiveProvider failed", "error", err, "provider", name)
		return fmt.Errorf("failed to activate provider %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := tx.Exec(`INSERT INTO provider_configs (provider_name, config_json, is_active, updated_at) VALUES (?, NULL, 1, ?)`, name, now); err != nil {
			slog.Error("SQLiteStore SetActiveProvider failed", "error", err, "provider", name)
			return fmt.Errorf("failed to activate provider %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit provider activation: %w", err)
	}
	slog.Debug("SQLiteStore SetActiveProvider succeeded", "provider", name)
	return nil
}

func (s *SQLiteStore) RecordDeletion(d models.Deletion) error {
	_, err := s.db.Exec(`INSERT INTO deletions (user_id, entity_type, entity_id, deleted_at) VALUES (?, ?, ?, ?)`,
		d.UserID, d.EntityType, d.EntityID, d.DeletedAt.UTC())
	if err != nil {
		slog.Error("SQLiteStore RecordDeletion failed", "error", err, "entityID", d.EntityID)
		return fmt.Errorf("failed to record deletion of %s %s: %w", d.EntityType, d.EntityID, err)
	}
	return nil
}

func (s *SQLiteStore) ListDeletionsSince(userID string, since time.Time) ([]models.Deletion, error) {
	rows, err := s.db.Query(`SELECT user_id, entity_type, entity_id, deleted_at FROM deletions
		WHERE user_id = ? AND deleted_at > ? ORDER BY deleted_at`, userID, since.UTC())
	if err != nil {
		slog.Error("SQLiteStore ListDeletionsSince query failed", "error", err)
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

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
