package genai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func llamaServer(t *testing.T, captured *llamaChatRequest, content, reasoning string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if captured != nil {
			if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		resp := map[string]interface{}{
			"choices": []map[string]interface{}{
				{
					"message": map[string]string{
						"content":           content,
						"reasoning_content": reasoning,
					},
					"finish_reason": "stop",
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestLlamaGenerateContent(t *testing.T) {
	var req llamaChatRequest
	srv := llamaServer(t, &req, "A fresh tweet about farming.", "")
	defer srv.Close()

	p := NewLlamaCppProvider(Config{ServerURL: srv.URL})
	got, err := p.GenerateContent(context.Background(), GenerateRequest{Prompt: "write a tweet"})
	if err != nil {
		t.Fatalf("GenerateContent: %v", err)
	}
	if got != "A fresh tweet about farming." {
		t.Errorf("content = %q", got)
	}

	if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v", req.Messages)
	}
	if !strings.Contains(req.Messages[1].Content, "write a tweet") {
		t.Errorf("user message missing prompt: %q", req.Messages[1].Content)
	}
	if !strings.Contains(req.Messages[1].Content, "Provide only the final content output") {
		t.Error("user message missing reasoning suppression instruction")
	}
	if req.Stream {
		t.Error("request should not stream")
	}
}

func TestLlamaGenerateContentBoostsSmallTokenBudget(t *testing.T) {
	var req llamaChatRequest
	srv := llamaServer(t, &req, "ok content here", "")
	defer srv.Close()

	p := NewLlamaCppProvider(Config{ServerURL: srv.URL})
	if _, err := p.GenerateContent(context.Background(), GenerateRequest{Prompt: "x", MaxTokens: 500}); err != nil {
		t.Fatalf("GenerateContent: %v", err)
	}
	if req.MaxTokens != 3000 {
		t.Errorf("max_tokens = %d, want 3000", req.MaxTokens)
	}

	if _, err := p.GenerateContent(context.Background(), GenerateRequest{Prompt: "x", MaxTokens: 4000}); err != nil {
		t.Fatalf("GenerateContent: %v", err)
	}
	if req.MaxTokens != 4000 {
		t.Errorf("max_tokens = %d, want 4000 unchanged", req.MaxTokens)
	}
}

func TestLlamaGenerateContentFallsBackToReasoning(t *testing.T) {
	srv := llamaServer(t, nil, "", `I should write something catchy. The tweet should be "Harvest season is here!"`)
	defer srv.Close()

	p := NewLlamaCppProvider(Config{ServerURL: srv.URL})
	got, err := p.GenerateContent(context.Background(), GenerateRequest{Prompt: "x"})
	if err != nil {
		t.Fatalf("GenerateContent: %v", err)
	}
	if got != "Harvest season is here!" {
		t.Errorf("content = %q, want quoted span from reasoning", got)
	}
}

func TestLlamaGenerateContentEmptyResponse(t *testing.T) {
	srv := llamaServer(t, nil, "", "")
	defer srv.Close()

	p := NewLlamaCppProvider(Config{ServerURL: srv.URL})
	_, err := p.GenerateContent(context.Background(), GenerateRequest{Prompt: "x"})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestLlamaGenerateContentServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewLlamaCppProvider(Config{ServerURL: srv.URL})
	_, err := p.GenerateContent(context.Background(), GenerateRequest{Prompt: "x"})
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("err = %v, want server error", err)
	}
}

func TestExtractFromReasoning(t *testing.T) {
	cases := []struct {
		name      string
		reasoning string
		want      string
	}{
		{
			name:      "last quoted span",
			reasoning: `First I thought "draft one" but better is "final tweet text"`,
			want:      "final tweet text",
		},
		{
			name:      "answer marker",
			reasoning: "Let me think about this.\nAnswer: the actual post body",
			want:      "the actual post body",
		},
		{
			name:      "tweet marker",
			reasoning: "Considering options.\ntweet: short and punchy",
			want:      "short and punchy",
		},
		{
			name:      "last substantial line",
			reasoning: "Hmm, let me think about it.\nI need a good angle.\nFarming tech is transforming rural By 2030.",
			want:      "Farming tech is transforming rural By 2030.",
		},
		{
			name:      "whole trace fallback",
			reasoning: "short hmm",
			want:      "short hmm",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := extractFromReasoning(c.reasoning); got != c.want {
				t.Errorf("extractFromReasoning = %q, want %q", got, c.want)
			}
		})
	}
}

func TestLlamaCheckHealth(t *testing.T) {
	srv := llamaServer(t, nil, "x", "")
	defer srv.Close()

	p := NewLlamaCppProvider(Config{ServerURL: srv.URL})
	if !p.CheckHealth(context.Background()) {
		t.Error("CheckHealth = false against healthy server")
	}

	srv.Close()
	if p.CheckHealth(context.Background()) {
		t.Error("CheckHealth = true against closed server")
	}
}

func TestLlamaProviderIdentity(t *testing.T) {
	p := NewLlamaCppProvider(Config{})
	if p.Name() != "llamacpp" {
		t.Errorf("Name = %q", p.Name())
	}
	if p.DisplayName() != "Llama.cpp" {
		t.Errorf("DisplayName = %q", p.DisplayName())
	}
}
