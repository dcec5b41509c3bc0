package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/postfarm/postfarm/internal/models"
)

// draftPayload is the request body for draft create and update. Pointer
// fields distinguish "absent" from "zero" on partial updates.
type draftPayload struct {
	ID          string     `json:"id,omitempty"`
	Title       *string    `json:"title"`
	Content     *string    `json:"content"`
	Prompt      *string    `json:"prompt"`
	Tags        []string   `json:"tags"`
	Confirmed   *bool      `json:"confirmed"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	// UpdatedAt enables optimistic conflict detection on updates.
	UpdatedAt *time.Time `json:"updated_at"`
}

// queryInt parses an integer query parameter with a default.
func queryInt(r *http.Request, key string, def int) int {
	val := r.URL.Query().Get(key)
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (s *Server) listDraftsHandler(w http.ResponseWriter, r *http.Request) {
	skip := queryInt(r, "skip", 0)
	limit := queryInt(r, "limit", 100)

	drafts, err := s.store.ListDrafts(userID(r), skip, limit)
	if err != nil {
		slog.Error("Server.listDraftsHandler: failed to list drafts", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list drafts"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(drafts))
}

func (s *Server) getDraftHandler(w http.ResponseWriter, r *http.Request) {
	draft, err := s.store.GetDraft(r.PathValue("id"), userID(r))
	if err != nil {
		slog.Error("Server.getDraftHandler: failed to get draft", "error", err, "draftID", r.PathValue("id"))
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get draft"))
		return
	}
	if draft == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Draft not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(draft))
}

func (s *Server) createDraftHandler(w http.ResponseWriter, r *http.Request) {
	var payload draftPayload
	if !decodeJSONBody(w, r, &payload) {
		return
	}

	draft := models.Draft{
		// Offline-first clients may supply their own UUID.
		ID:     payload.ID,
		UserID: userID(r),
		Tags:   payload.Tags,
	}
	if payload.Title != nil {
		draft.Title = *payload.Title
	}
	if payload.Content != nil {
		draft.Content = *payload.Content
	}
	if payload.Prompt != nil {
		draft.Prompt = *payload.Prompt
	}
	if payload.Confirmed != nil {
		draft.Confirmed = *payload.Confirmed
	}
	draft.ScheduledAt = payload.ScheduledAt
	if draft.Tags == nil {
		draft.Tags = []string{}
	}

	if err := draft.Validate(); err != nil {
		slog.Warn("Server.createDraftHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if err := s.store.CreateDraft(&draft); err != nil {
		slog.Error("Server.createDraftHandler: failed to create draft", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create draft"))
		return
	}

	slog.Info("Server.createDraftHandler: draft created", "draftID", draft.ID)
	writeJSONResponse(w, http.StatusCreated, models.Success(draft))
}

func (s *Server) updateDraftHandler(w http.ResponseWriter, r *http.Request) {
	var payload draftPayload
	if !decodeJSONBody(w, r, &payload) {
		return
	}

	draft, err := s.store.GetDraft(r.PathValue("id"), userID(r))
	if err != nil {
		slog.Error("Server.updateDraftHandler: failed to load draft", "error", err, "draftID", r.PathValue("id"))
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update draft"))
		return
	}
	if draft == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Draft not found"))
		return
	}

	// Optimistic conflict detection: a client holding a stale copy gets the
	// server's timestamp back instead of silently clobbering newer edits.
	if payload.UpdatedAt != nil && draft.UpdatedAt.After(*payload.UpdatedAt) {
		writeJSONResponse(w, http.StatusConflict, models.APIResponse{
			Status:  string(models.APIStatusError),
			Message: "Conflict",
			Result:  map[string]interface{}{"server_updated_at": draft.UpdatedAt},
		})
		return
	}

	if payload.Title != nil {
		draft.Title = *payload.Title
	}
	if payload.Content != nil {
		draft.Content = *payload.Content
	}
	if payload.Prompt != nil {
		draft.Prompt = *payload.Prompt
	}
	if payload.Tags != nil {
		draft.Tags = payload.Tags
	}
	if payload.Confirmed != nil {
		draft.Confirmed = *payload.Confirmed
	}
	if payload.ScheduledAt != nil {
		draft.ScheduledAt = payload.ScheduledAt
	}

	if err := draft.Validate(); err != nil {
		slog.Warn("Server.updateDraftHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if err := s.store.UpdateDraft(draft); err != nil {
		slog.Error("Server.updateDraftHandler: failed to update draft", "error", err, "draftID", draft.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update draft"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(draft))
}

func (s *Server) deleteDraftHandler(w http.ResponseWriter, r *http.Request) {
	draftID := r.PathValue("id")
	deleted, err := s.store.DeleteDraft(draftID, userID(r))
	if err != nil {
		slog.Error("Server.deleteDraftHandler: failed to delete draft", "error", err, "draftID", draftID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to delete draft"))
		return
	}
	if !deleted {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Draft not found"))
		return
	}

	if err := s.store.RecordDeletion(models.Deletion{
		UserID:     userID(r),
		EntityType: "draft",
		EntityID:   draftID,
		DeletedAt:  time.Now().UTC(),
	}); err != nil {
		slog.Error("Server.deleteDraftHandler: failed to record deletion", "error", err, "draftID", draftID)
	}

	slog.Info("Server.deleteDraftHandler: draft deleted", "draftID", draftID)
	w.WriteHeader(http.StatusNoContent)
}
