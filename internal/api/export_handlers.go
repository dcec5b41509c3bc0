package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/postfarm/postfarm/internal/models"
	"github.com/postfarm/postfarm/internal/store"
)

// exportVersion tags exported files so future importers can detect format
// changes.
const exportVersion = "1.0"

func exportFilename(kind string, now time.Time) string {
	return "postfarm-" + kind + "-" + now.UTC().Format("20060102-150405") + ".json"
}

func exportEnvelope(kind string, now time.Time, payload map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{
		"export_version": exportVersion,
		"export_type":    kind,
		"exported_at":    now.UTC().Format(time.RFC3339),
	}
	for k, v := range payload {
		out[k] = v
	}
	return out
}

func (s *Server) exportDraftsHandler(w http.ResponseWriter, r *http.Request) {
	drafts, err := s.store.ListDrafts(userID(r), 0, 10000)
	if err != nil {
		slog.Error("Server.exportDraftsHandler: failed to list drafts", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Export failed"))
		return
	}

	now := time.Now().UTC()
	writeJSONAttachment(w, exportFilename("drafts", now), exportEnvelope("drafts", now, map[string]interface{}{
		"drafts": drafts,
		"total":  len(drafts),
	}))
}

func (s *Server) exportScheduledPostsHandler(w http.ResponseWriter, r *http.Request) {
	posts, err := s.store.ListScheduledPosts(store.PostFilter{UserID: userID(r), Limit: 10000})
	if err != nil {
		slog.Error("Server.exportScheduledPostsHandler: failed to list posts", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Export failed"))
		return
	}

	now := time.Now().UTC()
	writeJSONAttachment(w, exportFilename("scheduled-posts", now), exportEnvelope("scheduled_posts", now, map[string]interface{}{
		"scheduled_posts": posts,
		"total":           len(posts),
	}))
}

func (s *Server) exportAllHandler(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)

	drafts, err := s.store.ListDrafts(uid, 0, 10000)
	if err != nil {
		slog.Error("Server.exportAllHandler: failed to list drafts", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Export failed"))
		return
	}
	posts, err := s.store.ListScheduledPosts(store.PostFilter{UserID: uid, Limit: 10000})
	if err != nil {
		slog.Error("Server.exportAllHandler: failed to list posts", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Export failed"))
		return
	}

	now := time.Now().UTC()
	writeJSONAttachment(w, exportFilename("all", now), exportEnvelope("all", now, map[string]interface{}{
		"drafts":          drafts,
		"scheduled_posts": posts,
	}))
}
