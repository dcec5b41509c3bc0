package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/postfarm/postfarm/internal/models"
)

type syncPullRequest struct {
	LastSyncTimestamp *time.Time `json:"last_sync_timestamp"`
}

func (s *Server) syncPullHandler(w http.ResponseWriter, r *http.Request) {
	var req syncPullRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	since := time.Time{}
	if req.LastSyncTimestamp != nil {
		since = req.LastSyncTimestamp.UTC()
	}
	uid := userID(r)
	now := time.Now().UTC()

	drafts, err := s.store.ListDraftsChangedSince(uid, since)
	if err != nil {
		slog.Error("Server.syncPullHandler: failed to list drafts", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Sync pull failed"))
		return
	}
	posts, err := s.store.ListScheduledPostsChangedSince(uid, since)
	if err != nil {
		slog.Error("Server.syncPullHandler: failed to list posts", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Sync pull failed"))
		return
	}
	deletions, err := s.store.ListDeletionsSince(uid, since)
	if err != nil {
		slog.Error("Server.syncPullHandler: failed to list deletions", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Sync pull failed"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"drafts":          drafts,
		"scheduled_posts": posts,
		"deletions":       deletions,
		"sync_timestamp":  now.Format(time.RFC3339),
	}))
}

// syncItem is one client-side change in a push batch.
type syncItem struct {
	Operation string        `json:"operation"` // "upsert" or "delete"
	Draft     *models.Draft `json:"draft,omitempty"`
	EntityID  string        `json:"entity_id,omitempty"`
}

type syncPushRequest struct {
	Drafts []syncItem `json:"drafts"`
}

type syncPushResult struct {
	Success   int      `json:"success"`
	Conflicts int      `json:"conflicts"`
	Errors    int      `json:"errors"`
	Details   []string `json:"details,omitempty"`
}

// applyDraftUpsert creates or updates one pushed draft. Server wins on
// conflict: a newer server-side UpdatedAt rejects the push.
func (s *Server) applyDraftUpsert(uid string, draft *models.Draft) (conflict bool, err error) {
	existing, err := s.store.GetDraft(draft.ID, uid)
	if err != nil {
		return false, err
	}
	draft.UserID = uid
	if existing == nil {
		if draft.ID == "" {
			draft.ID = uuid.New().String()
		}
		return false, s.store.CreateDraft(draft)
	}
	if existing.UpdatedAt.After(draft.UpdatedAt) {
		return true, nil
	}
	return false, s.store.UpdateDraft(draft)
}

func (s *Server) syncPushHandler(w http.ResponseWriter, r *http.Request) {
	var req syncPushRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	uid := userID(r)

	var result syncPushResult
	for _, item := range req.Drafts {
		switch item.Operation {
		case "delete":
			deleted, err := s.store.DeleteDraft(item.EntityID, uid)
			if err != nil {
				result.Errors++
				result.Details = append(result.Details, "delete "+item.EntityID+": "+err.Error())
				continue
			}
			if deleted {
				if err := s.store.RecordDeletion(models.Deletion{
					UserID:     uid,
					EntityType: "draft",
					EntityID:   item.EntityID,
					DeletedAt:  time.Now().UTC(),
				}); err != nil {
					slog.Error("Server.syncPushHandler: failed to record deletion", "error", err, "draftID", item.EntityID)
				}
			}
			result.Success++
		case "upsert":
			if item.Draft == nil {
				result.Errors++
				result.Details = append(result.Details, "upsert: missing draft body")
				continue
			}
			if err := item.Draft.Validate(); err != nil {
				result.Errors++
				result.Details = append(result.Details, "upsert "+item.Draft.ID+": "+err.Error())
				continue
			}
			conflict, err := s.applyDraftUpsert(uid, item.Draft)
			if err != nil {
				result.Errors++
				result.Details = append(result.Details, "upsert "+item.Draft.ID+": "+err.Error())
				continue
			}
			if conflict {
				result.Conflicts++
				continue
			}
			result.Success++
		default:
			result.Errors++
			result.Details = append(result.Details, "unknown operation: "+item.Operation)
		}
	}

	slog.Info("Server.syncPushHandler: push applied",
		"success", result.Success, "conflicts", result.Conflicts, "errors", result.Errors)
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

func (s *Server) syncStatusHandler(w http.ResponseWriter, r *http.Request) {
	uid := userID(r)

	drafts, err := s.store.ListDrafts(uid, 0, 0)
	if err != nil {
		slog.Error("Server.syncStatusHandler: failed to list drafts", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load sync status"))
		return
	}
	posts, err := s.store.ListScheduledPostsChangedSince(uid, time.Time{})
	if err != nil {
		slog.Error("Server.syncStatusHandler: failed to list posts", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load sync status"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"draft_count":          len(drafts),
		"scheduled_post_count": len(posts),
		"server_time":          time.Now().UTC().Format(time.RFC3339),
	}))
}
