package api

import (
	"log/slog"
	"net/http"

	"github.com/postfarm/postfarm/internal/genai"
	"github.com/postfarm/postfarm/internal/models"
)

type generateRequest struct {
	Prompt       string  `json:"prompt"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	Platform     string  `json:"platform,omitempty"`
}

func (s *Server) generateContentHandler(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Prompt == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Prompt is required"))
		return
	}

	content, err := s.llm.GenerateContent(r.Context(), genai.GenerateRequest{
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		Platform:     req.Platform,
	})
	if err != nil {
		slog.Error("Server.generateContentHandler: generation failed", "error", err)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Content generation failed: "+err.Error()))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{
		"content": content,
		"prompt":  req.Prompt,
	}))
}

type editRequest struct {
	OriginalContent string  `json:"original_content"`
	EditInstruction string  `json:"edit_instruction"`
	Temperature     float64 `json:"temperature,omitempty"`
}

func (s *Server) editContentHandler(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.OriginalContent == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Original content is required"))
		return
	}
	if req.EditInstruction == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Edit instruction is required"))
		return
	}

	edited, err := s.llm.EditContent(r.Context(), req.OriginalContent, req.EditInstruction, req.Temperature)
	if err != nil {
		slog.Error("Server.editContentHandler: edit failed", "error", err)
		writeJSONResponse(w, http.StatusBadGateway, models.Error("Content editing failed: "+err.Error()))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{
		"edited_content":   edited,
		"original_content": req.OriginalContent,
	}))
}

func (s *Server) llmHealthHandler(w http.ResponseWriter, r *http.Request) {
	name, _ := s.llm.ActiveProviderName()
	healthy := s.llm.CheckHealth(r.Context())
	result := map[string]interface{}{
		"provider": name,
		"healthy":  healthy,
	}
	if !healthy {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.APIResponse{
			Status:  string(models.APIStatusError),
			Message: "Provider unhealthy",
			Result:  result,
		})
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}
