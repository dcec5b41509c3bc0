package store

import (
	"database/sql"
	"strings"
	"time"

	"github.com/postfarm/postfarm/internal/models"
)

// rowScanner abstracts *sql.Row and *sql.Rows for the shared scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// joinTags serializes tags as a comma-separated string for storage.
func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

// splitTags deserializes a comma-separated tag string.
func splitTags(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

// scanScheduledPost scans a ScheduledPost row. The id column must already be
// rendered as text by the caller's SELECT.
func scanScheduledPost(row rowScanner) (models.ScheduledPost, error) {
	var p models.ScheduledPost
	var errorMessage sql.NullString
	var postedAt sql.NullTime
	err := row.Scan(
		&p.ID, &p.UserID, &p.DraftID, &p.Platform, &p.Content,
		&p.ScheduledTime, &p.Status, &postedAt, &errorMessage,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return p, err
	}
	p.ErrorMessage = errorMessage.String
	if postedAt.Valid {
		t := postedAt.Time.UTC()
		p.PostedAt = &t
	}
	p.ScheduledTime = p.ScheduledTime.UTC()
	return p, nil
}

// scanDraft scans a Draft row.
func scanDraft(row rowScanner) (models.Draft, error) {
	var d models.Draft
	var title, prompt, tags sql.NullString
	var scheduledAt sql.NullTime
	err := row.Scan(
		&d.ID, &d.UserID, &title, &d.Content, &prompt, &tags,
		&d.Confirmed, &scheduledAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return d, err
	}
	d.Title = title.String
	d.Prompt = prompt.String
	d.Tags = splitTags(tags.String)
	if scheduledAt.Valid {
		t := scheduledAt.Time.UTC()
		d.ScheduledAt = &t
	}
	return d, nil
}

// scanPlatformConfig scans a PlatformConfig row.
func scanPlatformConfig(row rowScanner) (models.PlatformConfig, error) {
	var c models.PlatformConfig
	var apiKey, apiSecret, accessToken, accessTokenSecret sql.NullString
	var bearerToken, refreshToken, orgID sql.NullString
	var tokenExpiresAt sql.NullTime
	err := row.Scan(
		&c.ID, &c.Platform, &apiKey, &apiSecret, &accessToken, &accessTokenSecret,
		&bearerToken, &refreshToken, &orgID, &c.IsActive, &tokenExpiresAt, &c.UpdatedAt,
	)
	if err != nil {
		return c, err
	}
	c.APIKey = apiKey.String
	c.APISecret = apiSecret.String
	c.AccessToken = accessToken.String
	c.AccessTokenSecret = accessTokenSecret.String
	c.BearerToken = bearerToken.String
	c.RefreshToken = refreshToken.String
	c.LinkedInOrgID = orgID.String
	if tokenExpiresAt.Valid {
		t := tokenExpiresAt.Time.UTC()
		c.TokenExpiresAt = &t
	}
	return c, nil
}

// nullableTime converts an optional time for nullable columns.
func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// scanProviderConfig scans a provider config row, mapping sql.ErrNoRows to a
// nil config.
func scanProviderConfig(row rowScanner) (*models.ProviderConfig, error) {
	var cfg models.ProviderConfig
	var configJSON sql.NullString
	err := row.Scan(&cfg.ProviderName, &configJSON, &cfg.IsActive, &cfg.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cfg.ConfigJSON = configJSON.String
	return &cfg, nil
}
