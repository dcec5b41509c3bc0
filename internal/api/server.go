// Package api provides HTTP handlers and the main API server logic for PostFarm.
//
// It exposes RESTful endpoints for drafts, scheduling, platform credentials,
// AI content generation, OAuth connections, and offline sync. The API
// integrates with the scheduler, platform, genai, and store modules.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/postfarm/postfarm/internal/auth"
	"github.com/postfarm/postfarm/internal/genai"
	"github.com/postfarm/postfarm/internal/llamasrv"
	"github.com/postfarm/postfarm/internal/models"
	"github.com/postfarm/postfarm/internal/oauth"
	"github.com/postfarm/postfarm/internal/platform"
	"github.com/postfarm/postfarm/internal/scheduler"
	"github.com/postfarm/postfarm/internal/store"
)

// Version is reported by the root endpoint.
const Version = "1.0.0"

// Server wires the HTTP surface to the underlying services.
type Server struct {
	addr     string
	store    store.Store
	sched    *scheduler.Service
	platform *platform.Service
	llm      *genai.Service
	llama    *llamasrv.Manager
	oauth    *oauth.Service
	verifier *auth.Verifier

	httpSrv *http.Server
}

// Opts collects the collaborators a Server needs.
type Opts struct {
	Addr      string
	Store     store.Store
	Scheduler *scheduler.Service
	Platform  *platform.Service
	LLM       *genai.Service
	Llama     *llamasrv.Manager
	OAuth     *oauth.Service
	Verifier  *auth.Verifier
}

// NewServer creates the API server.
func NewServer(opts Opts) *Server {
	addr := opts.Addr
	if addr == "" {
		addr = ":8000"
	}
	return &Server{
		addr:     addr,
		store:    opts.Store,
		sched:    opts.Scheduler,
		platform: opts.Platform,
		llm:      opts.LLM,
		llama:    opts.Llama,
		oauth:    opts.OAuth,
		verifier: opts.Verifier,
	}
}

// Handler builds the route table. Everything under /api except the health
// check passes through the auth middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.rootHandler)
	mux.HandleFunc("GET /api/health", s.healthHandler)

	authed := http.NewServeMux()

	authed.HandleFunc("GET /api/drafts", s.listDraftsHandler)
	authed.HandleFunc("POST /api/drafts", s.createDraftHandler)
	authed.HandleFunc("GET /api/drafts/{id}", s.getDraftHandler)
	authed.HandleFunc("PUT /api/drafts/{id}", s.updateDraftHandler)
	authed.HandleFunc("DELETE /api/drafts/{id}", s.deleteDraftHandler)

	authed.HandleFunc("GET /api/posts", s.listPostsHandler)
	authed.HandleFunc("GET /api/posts/{id}", s.getPostHandler)

	authed.HandleFunc("POST /api/scheduler/schedule", s.schedulePostHandler)
	authed.HandleFunc("POST /api/scheduler/{id}/cancel", s.cancelPostHandler)
	authed.HandleFunc("GET /api/scheduler/calendar", s.calendarHandler)
	authed.HandleFunc("GET /api/scheduler/posts", s.listScheduledPostsHandler)

	authed.HandleFunc("GET /api/platforms", s.listPlatformsHandler)
	authed.HandleFunc("GET /api/platforms/{platform}", s.getPlatformConfigHandler)
	authed.HandleFunc("PUT /api/platforms/{platform}", s.updatePlatformConfigHandler)
	authed.HandleFunc("POST /api/platforms/{platform}/test", s.testPlatformHandler)
	authed.HandleFunc("POST /api/platforms/{platform}/publish", s.publishNowHandler)

	authed.HandleFunc("POST /api/llm/generate", s.generateContentHandler)
	authed.HandleFunc("POST /api/llm/edit", s.editContentHandler)
	authed.HandleFunc("GET /api/llm/health", s.llmHealthHandler)

	authed.HandleFunc("GET /api/providers", s.listProvidersHandler)
	authed.HandleFunc("GET /api/providers/current", s.currentProviderHandler)
	authed.HandleFunc("POST /api/providers/select", s.selectProviderHandler)
	authed.HandleFunc("GET /api/providers/{name}/config", s.getProviderConfigHandler)
	authed.HandleFunc("PUT /api/providers/{name}/config", s.updateProviderConfigHandler)

	authed.HandleFunc("GET /api/server/status", s.llamaStatusHandler)
	authed.HandleFunc("POST /api/server/start", s.llamaStartHandler)
	authed.HandleFunc("POST /api/server/stop", s.llamaStopHandler)
	authed.HandleFunc("GET /api/server/models", s.llamaModelsHandler)

	authed.HandleFunc("POST /api/oauth/initiate", s.oauthInitiateHandler)
	authed.HandleFunc("POST /api/oauth/callback", s.oauthCallbackHandler)
	authed.HandleFunc("GET /api/oauth/{platform}/status", s.oauthStatusHandler)
	authed.HandleFunc("DELETE /api/oauth/{platform}", s.oauthDisconnectHandler)

	authed.HandleFunc("POST /api/sync/pull", s.syncPullHandler)
	authed.HandleFunc("POST /api/sync/push", s.syncPushHandler)
	authed.HandleFunc("GET /api/sync/status", s.syncStatusHandler)

	authed.HandleFunc("GET /api/export/drafts", s.exportDraftsHandler)
	authed.HandleFunc("GET /api/export/scheduled-posts", s.exportScheduledPostsHandler)
	authed.HandleFunc("GET /api/export/all", s.exportAllHandler)

	mux.Handle("/api/", s.verifier.Middleware(authed))
	return mux
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API listening", "addr", s.addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server.Run: graceful shutdown failed", "error", err)
		return err
	}
	slog.Info("Server.Run: shut down cleanly")
	return nil
}

func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{
		"message": "PostFarm API",
		"version": Version,
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// userID pulls the authenticated user from the request context.
func userID(r *http.Request) string {
	return auth.UserID(r.Context())
}

// decodeJSONBody decodes the request body into dst, reporting a client error
// on malformed JSON.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		slog.Warn("Server.decodeJSONBody: failed to decode JSON", "path", r.URL.Path, "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return false
	}
	return true
}
