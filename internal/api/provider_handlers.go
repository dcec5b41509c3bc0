package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/postfarm/postfarm/internal/genai"
	"github.com/postfarm/postfarm/internal/models"
)

func knownProvider(name string) bool {
	for _, info := range genai.ListProviders() {
		if info.Name == name {
			return true
		}
	}
	return false
}

func (s *Server) listProvidersHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(genai.ListProviders()))
}

func (s *Server) currentProviderHandler(w http.ResponseWriter, r *http.Request) {
	name, active := s.llm.ActiveProviderName()
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"provider_name": name,
		"is_active":     active,
	}))
}

type selectProviderRequest struct {
	ProviderName string `json:"provider_name"`
}

func (s *Server) selectProviderHandler(w http.ResponseWriter, r *http.Request) {
	var req selectProviderRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if !knownProvider(req.ProviderName) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown provider: "+req.ProviderName))
		return
	}

	if err := s.store.SetActiveProvider(req.ProviderName); err != nil {
		slog.Error("Server.selectProviderHandler: failed to set active provider", "error", err, "provider", req.ProviderName)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to select provider"))
		return
	}
	s.llm.ResetProvider()

	slog.Info("Server.selectProviderHandler: provider selected", "provider", req.ProviderName)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Provider selected", map[string]string{
		"provider_name": req.ProviderName,
	}))
}

// redactedConfig is the provider config with secrets replaced by a presence
// flag.
type redactedConfig struct {
	HasAPIKey bool    `json:"has_api_key"`
	Model     string  `json:"model,omitempty"`
	BaseURL   string  `json:"base_url,omitempty"`
	ServerURL string  `json:"server_url,omitempty"`
	ModelName string  `json:"model_name,omitempty"`
	Timeout   float64 `json:"timeout,omitempty"`
}

func (s *Server) getProviderConfigHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !knownProvider(name) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown provider: "+name))
		return
	}

	stored, err := s.store.GetProviderConfig(name)
	if err != nil {
		slog.Error("Server.getProviderConfigHandler: failed to load config", "error", err, "provider", name)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load provider config"))
		return
	}

	var cfg genai.Config
	if stored != nil && stored.ConfigJSON != "" {
		if err := json.Unmarshal([]byte(stored.ConfigJSON), &cfg); err != nil {
			slog.Warn("Server.getProviderConfigHandler: malformed stored config", "error", err, "provider", name)
		}
	}

	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"provider_name": name,
		"config": redactedConfig{
			HasAPIKey: cfg.APIKey != "",
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			ServerURL: cfg.ServerURL,
			ModelName: cfg.ModelName,
			Timeout:   cfg.Timeout,
		},
	}))
}

func (s *Server) updateProviderConfigHandler(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !knownProvider(name) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Unknown provider: "+name))
		return
	}

	var cfg genai.Config
	if !decodeJSONBody(w, r, &cfg) {
		return
	}

	// An omitted api_key keeps the previously stored one so clients can
	// update settings without re-sending the secret.
	if cfg.APIKey == "" {
		stored, err := s.store.GetProviderConfig(name)
		if err == nil && stored != nil && stored.ConfigJSON != "" {
			var prev genai.Config
			if json.Unmarshal([]byte(stored.ConfigJSON), &prev) == nil {
				cfg.APIKey = prev.APIKey
			}
		}
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid provider config"))
		return
	}

	active := false
	if current, err := s.store.GetActiveProviderConfig(); err == nil && current != nil {
		active = current.ProviderName == name
	}

	if err := s.store.SaveProviderConfig(&models.ProviderConfig{
		ProviderName: name,
		ConfigJSON:   string(raw),
		IsActive:     active,
		UpdatedAt:    time.Now().UTC(),
	}); err != nil {
		slog.Error("Server.updateProviderConfigHandler: failed to save config", "error", err, "provider", name)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save provider config"))
		return
	}

	if active {
		s.llm.ResetProvider()
	}

	slog.Info("Server.updateProviderConfigHandler: config updated", "provider", name)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Provider config updated", map[string]string{
		"provider_name": name,
	}))
}
