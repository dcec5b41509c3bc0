package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/postfarm/postfarm/internal/models"
	"github.com/postfarm/postfarm/internal/store"
)

// calendarWindow is the default span for the calendar view.
const calendarWindow = 90 * 24 * time.Hour

// calendarPreviewLen truncates post content in calendar entries.
const calendarPreviewLen = 50

type scheduleRequest struct {
	DraftID       string `json:"draft_id"`
	Platform      string `json:"platform"`
	Content       string `json:"content"`
	ScheduledTime string `json:"scheduled_time"`
	Timezone      string `json:"timezone,omitempty"`
}

// parseScheduledTime parses an ISO timestamp, applying the named zone when
// the timestamp itself carries no offset.
func parseScheduledTime(value, timezone string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	// No offset in the timestamp: interpret it in the client's zone.
	loc := time.UTC
	if timezone != "" && timezone != "UTC" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return time.Time{}, err
		}
		loc = l
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", value, loc)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func (s *Server) schedulePostHandler(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	scheduledTime, err := parseScheduledTime(req.ScheduledTime, req.Timezone)
	if err != nil {
		slog.Warn("Server.schedulePostHandler: invalid datetime", "error", err, "value", req.ScheduledTime)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid datetime format: "+err.Error()))
		return
	}
	if !scheduledTime.After(time.Now().UTC()) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Scheduled time must be in the future"))
		return
	}

	platform := models.PlatformType(req.Platform)
	if !models.IsValidPlatform(platform) {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid platform: "+req.Platform))
		return
	}

	if req.DraftID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error(models.ErrMissingDraftID.Error()))
		return
	}
	draft, err := s.store.GetDraft(req.DraftID, userID(r))
	if err != nil {
		slog.Error("Server.schedulePostHandler: failed to load draft", "error", err, "draftID", req.DraftID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to schedule post"))
		return
	}
	if draft == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Draft not found"))
		return
	}

	post := models.ScheduledPost{
		UserID:        userID(r),
		DraftID:       req.DraftID,
		Platform:      platform,
		Content:       req.Content,
		ScheduledTime: scheduledTime,
		Status:        models.PostStatusScheduled,
	}
	if err := post.Validate(); err != nil {
		slog.Warn("Server.schedulePostHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if err := s.store.CreateScheduledPost(&post); err != nil {
		slog.Error("Server.schedulePostHandler: failed to persist post", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to schedule post"))
		return
	}

	// Persist first, then register: a timer for an unpersisted post would
	// fire into nothing.
	s.sched.SchedulePost(&post, 0)

	slog.Info("Server.schedulePostHandler: post scheduled", "postID", post.ID, "platform", post.Platform, "scheduledTime", post.ScheduledTime)
	writeJSONResponse(w, http.StatusCreated, models.Success(post))
}

func (s *Server) cancelPostHandler(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("id")

	post, err := s.store.GetScheduledPost(postID)
	if err != nil {
		slog.Error("Server.cancelPostHandler: failed to load post", "error", err, "postID", postID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to cancel post"))
		return
	}
	if post == nil || post.UserID != userID(r) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Post not found"))
		return
	}
	if post.Status != models.PostStatusScheduled {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Cannot cancel post with status: "+string(post.Status)))
		return
	}

	post.Status = models.PostStatusCancelled
	if err := s.store.UpdateScheduledPost(post); err != nil {
		slog.Error("Server.cancelPostHandler: failed to persist cancellation", "error", err, "postID", postID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to cancel post"))
		return
	}

	s.sched.UnschedulePost(postID)

	if err := s.store.RecordDeletion(models.Deletion{
		UserID:     userID(r),
		EntityType: "scheduled_post",
		EntityID:   postID,
		DeletedAt:  time.Now().UTC(),
	}); err != nil {
		slog.Error("Server.cancelPostHandler: failed to record deletion", "error", err, "postID", postID)
	}

	slog.Info("Server.cancelPostHandler: post cancelled", "postID", postID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Post cancelled successfully", map[string]string{"post_id": postID}))
}

// calendarEntry is one post in the calendar view, with truncated content.
type calendarEntry struct {
	ID            string `json:"id"`
	Platform      string `json:"platform"`
	Content       string `json:"content"`
	ScheduledTime string `json:"scheduled_time"`
	DraftID       string `json:"draft_id"`
	Status        string `json:"status"`
}

func previewContent(content string) string {
	runes := []rune(content)
	if len(runes) <= calendarPreviewLen {
		return content
	}
	return string(runes[:calendarPreviewLen]) + "..."
}

func (s *Server) calendarHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UTC()
	if v := r.URL.Query().Get("start_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid start_date"))
			return
		}
		start = t.UTC()
	}
	end := start.Add(calendarWindow)
	if v := r.URL.Query().Get("end_date"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid end_date"))
			return
		}
		end = t.UTC()
	}

	posts, err := s.store.ListScheduledPosts(store.PostFilter{
		UserID: userID(r),
		Status: models.PostStatusScheduled,
		After:  &start,
		Before: &end,
	})
	if err != nil {
		slog.Error("Server.calendarHandler: failed to list posts", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load calendar"))
		return
	}

	calendar := make(map[string][]calendarEntry)
	for _, post := range posts {
		dateKey := post.ScheduledTime.UTC().Format("2006-01-02")
		calendar[dateKey] = append(calendar[dateKey], calendarEntry{
			ID:            post.ID,
			Platform:      string(post.Platform),
			Content:       previewContent(post.Content),
			ScheduledTime: post.ScheduledTime.UTC().Format(time.RFC3339),
			DraftID:       post.DraftID,
			Status:        string(post.Status),
		})
	}

	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"calendar": calendar,
		"total":    len(posts),
	}))
}

func (s *Server) listScheduledPostsHandler(w http.ResponseWriter, r *http.Request) {
	filter := store.PostFilter{
		UserID: userID(r),
		Skip:   queryInt(r, "skip", 0),
		Limit:  queryInt(r, "limit", 100),
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := models.PostStatus(v)
		if models.IsValidPostStatus(status) {
			filter.Status = status
		}
	}

	posts, err := s.store.ListScheduledPosts(filter)
	if err != nil {
		slog.Error("Server.listScheduledPostsHandler: failed to list posts", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list posts"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(posts))
}

func (s *Server) listPostsHandler(w http.ResponseWriter, r *http.Request) {
	filter := store.PostFilter{
		UserID: userID(r),
		Skip:   queryInt(r, "skip", 0),
		Limit:  queryInt(r, "limit", 100),
	}
	if v := r.URL.Query().Get("status"); v != "" {
		status := models.PostStatus(v)
		if !models.IsValidPostStatus(status) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid status: "+v))
			return
		}
		filter.Status = status
	}
	if v := r.URL.Query().Get("platform"); v != "" {
		platform := models.PlatformType(v)
		if !models.IsValidPlatform(platform) {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid platform: "+v))
			return
		}
		filter.Platform = platform
	}

	posts, err := s.store.ListScheduledPosts(filter)
	if err != nil {
		slog.Error("Server.listPostsHandler: failed to list posts", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list posts"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(posts))
}

func (s *Server) getPostHandler(w http.ResponseWriter, r *http.Request) {
	post, err := s.store.GetScheduledPost(r.PathValue("id"))
	if err != nil {
		slog.Error("Server.getPostHandler: failed to get post", "error", err, "postID", r.PathValue("id"))
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get post"))
		return
	}
	if post == nil || post.UserID != userID(r) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Post not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(post))
}
