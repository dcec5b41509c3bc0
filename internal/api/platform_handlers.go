package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/postfarm/postfarm/internal/models"
)

// platformStatus is the credential-free view of one platform config.
type platformStatus struct {
	Platform       string     `json:"platform"`
	HasCredentials bool       `json:"has_credentials"`
	IsActive       bool       `json:"is_active"`
	LinkedInOrgID  string     `json:"linkedin_org_id,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func platformStatusOf(cfg *models.PlatformConfig) platformStatus {
	return platformStatus{
		Platform:       string(cfg.Platform),
		HasCredentials: cfg.HasCredentials(),
		IsActive:       cfg.IsActive,
		LinkedInOrgID:  cfg.LinkedInOrgID,
		TokenExpiresAt: cfg.TokenExpiresAt,
		UpdatedAt:      cfg.UpdatedAt,
	}
}

func (s *Server) listPlatformsHandler(w http.ResponseWriter, r *http.Request) {
	configs, err := s.store.ListPlatformConfigs()
	if err != nil {
		slog.Error("Server.listPlatformsHandler: failed to list configs", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list platforms"))
		return
	}

	statuses := make([]platformStatus, 0, len(configs))
	for i := range configs {
		statuses = append(statuses, platformStatusOf(&configs[i]))
	}
	writeJSONResponse(w, http.StatusOK, models.Success(statuses))
}

// pathPlatform validates the {platform} path segment, writing a 400 on
// unknown platforms.
func pathPlatform(w http.ResponseWriter, r *http.Request) (models.PlatformType, bool) {
	platform := models.PlatformType(r.PathValue("platform"))
	if !models.IsValidPlatform(platform) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid platform: "+r.PathValue("platform")))
		return "", false
	}
	return platform, true
}

// loadOrCreatePlatformConfig returns the stored config for a platform,
// creating an inactive empty one on first access.
func (s *Server) loadOrCreatePlatformConfig(platform models.PlatformType) (*models.PlatformConfig, error) {
	cfg, err := s.store.GetPlatformConfig(platform)
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		return cfg, nil
	}
	cfg = &models.PlatformConfig{
		ID:        uuid.New().String(),
		Platform:  platform,
		IsActive:  false,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.store.SavePlatformConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Server) getPlatformConfigHandler(w http.ResponseWriter, r *http.Request) {
	platform, ok := pathPlatform(w, r)
	if !ok {
		return
	}

	cfg, err := s.loadOrCreatePlatformConfig(platform)
	if err != nil {
		slog.Error("Server.getPlatformConfigHandler: failed to load config", "error", err, "platform", platform)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load platform config"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(platformStatusOf(cfg)))
}

type platformConfigPayload struct {
	APIKey            *string `json:"api_key"`
	APISecret         *string `json:"api_secret"`
	AccessToken       *string `json:"access_token"`
	AccessTokenSecret *string `json:"access_token_secret"`
	BearerToken       *string `json:"bearer_token"`
	LinkedInOrgID     *string `json:"linkedin_org_id"`
	IsActive          *bool   `json:"is_active"`
}

func (s *Server) updatePlatformConfigHandler(w http.ResponseWriter, r *http.Request) {
	platform, ok := pathPlatform(w, r)
	if !ok {
		return
	}

	var payload platformConfigPayload
	if !decodeJSONBody(w, r, &payload) {
		return
	}

	cfg, err := s.loadOrCreatePlatformConfig(platform)
	if err != nil {
		slog.Error("Server.updatePlatformConfigHandler: failed to load config", "error", err, "platform", platform)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update platform config"))
		return
	}

	if payload.APIKey != nil {
		cfg.APIKey = *payload.APIKey
	}
	if payload.APISecret != nil {
		cfg.APISecret = *payload.APISecret
	}
	if payload.AccessToken != nil {
		cfg.AccessToken = *payload.AccessToken
	}
	if payload.AccessTokenSecret != nil {
		cfg.AccessTokenSecret = *payload.AccessTokenSecret
	}
	if payload.BearerToken != nil {
		cfg.BearerToken = *payload.BearerToken
	}
	if payload.LinkedInOrgID != nil {
		cfg.LinkedInOrgID = *payload.LinkedInOrgID
	}
	if payload.IsActive != nil {
		cfg.IsActive = *payload.IsActive
	} else if cfg.HasCredentials() {
		cfg.IsActive = true
	}
	cfg.UpdatedAt = time.Now().UTC()

	if err := s.store.SavePlatformConfig(cfg); err != nil {
		slog.Error("Server.updatePlatformConfigHandler: failed to save config", "error", err, "platform", platform)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update platform config"))
		return
	}

	slog.Info("Server.updatePlatformConfigHandler: config updated", "platform", platform)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Platform config updated", platformStatusOf(cfg)))
}

func (s *Server) testPlatformHandler(w http.ResponseWriter, r *http.Request) {
	platform, ok := pathPlatform(w, r)
	if !ok {
		return
	}

	healthy, detail := s.platform.TestConnection(r.Context(), platform)
	result := map[string]interface{}{
		"platform": string(platform),
		"success":  healthy,
		"message":  detail,
	}
	if !healthy {
		writeJSONResponse(w, http.StatusOK, models.APIResponse{
			Status:  string(models.APIStatusError),
			Message: detail,
			Result:  result,
		})
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

type publishNowRequest struct {
	Content string `json:"content"`
}

func (s *Server) publishNowHandler(w http.ResponseWriter, r *http.Request) {
	platform, ok := pathPlatform(w, r)
	if !ok {
		return
	}

	var req publishNowRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Content == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrEmptyContent.Error()))
		return
	}

	if err := s.platform.PublishPost(r.Context(), platform, req.Content); err != nil {
		slog.Error("Server.publishNowHandler: publish failed", "error", err, "platform", platform)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Publish failed: "+err.Error()))
		return
	}

	slog.Info("Server.publishNowHandler: published", "platform", platform)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Published successfully", map[string]string{
		"platform": string(platform),
	}))
}
