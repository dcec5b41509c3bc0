package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/postfarm/postfarm/internal/models"
	"github.com/postfarm/postfarm/internal/oauth"
)

type oauthInitiateRequest struct {
	Platform string `json:"platform"`
}

func (s *Server) oauthInitiateHandler(w http.ResponseWriter, r *http.Request) {
	var req oauthInitiateRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	platform := models.PlatformType(req.Platform)
	if !models.IsValidPlatform(platform) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid platform: "+req.Platform))
		return
	}

	authz, err := s.oauth.Initiate(userID(r), platform)
	if err != nil {
		slog.Error("Server.oauthInitiateHandler: failed to initiate flow", "error", err, "platform", platform)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to initiate OAuth flow: "+err.Error()))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{
		"state":    authz.State,
		"auth_url": authz.AuthURL,
	}))
}

type oauthCallbackRequest struct {
	Platform string `json:"platform"`
	Code     string `json:"code"`
	State    string `json:"state"`
}

func (s *Server) oauthCallbackHandler(w http.ResponseWriter, r *http.Request) {
	var req oauthCallbackRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	platform := models.PlatformType(req.Platform)
	if !models.IsValidPlatform(platform) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid platform: "+req.Platform))
		return
	}
	if req.Code == "" || req.State == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("code and state are required"))
		return
	}

	err := s.oauth.Callback(r.Context(), userID(r), platform, req.Code, req.State)
	switch {
	case err == nil:
	case errors.Is(err, oauth.ErrInvalidState),
		errors.Is(err, oauth.ErrStateMismatch),
		errors.Is(err, oauth.ErrStateExpired),
		errors.Is(err, oauth.ErrPlatformMismatch):
		slog.Warn("Server.oauthCallbackHandler: state rejected", "error", err, "platform", platform)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	default:
		slog.Error("Server.oauthCallbackHandler: token exchange failed", "error", err, "platform", platform)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Token exchange failed: "+err.Error()))
		return
	}

	slog.Info("Server.oauthCallbackHandler: platform connected", "platform", platform)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Platform connected", map[string]string{
		"platform": string(platform),
	}))
}

func (s *Server) oauthStatusHandler(w http.ResponseWriter, r *http.Request) {
	platform, ok := pathPlatform(w, r)
	if !ok {
		return
	}

	status, err := s.oauth.Status(platform)
	if err != nil {
		slog.Error("Server.oauthStatusHandler: failed to load status", "error", err, "platform", platform)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load connection status"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(status))
}

func (s *Server) oauthDisconnectHandler(w http.ResponseWriter, r *http.Request) {
	platform, ok := pathPlatform(w, r)
	if !ok {
		return
	}

	disconnected, err := s.oauth.Disconnect(platform)
	if err != nil {
		slog.Error("Server.oauthDisconnectHandler: failed to disconnect", "error", err, "platform", platform)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to disconnect platform"))
		return
	}
	if !disconnected {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Platform not connected"))
		return
	}

	slog.Info("Server.oauthDisconnectHandler: platform disconnected", "platform", platform)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Platform disconnected", map[string]string{
		"platform": string(platform),
	}))
}
