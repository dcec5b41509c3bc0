package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Llama.cpp provider defaults
const (
	DefaultLlamaServerURL = "http://localhost:8080"
	defaultLlamaTimeout   = 180 * time.Second
)

// LlamaCppProvider talks to a local llama.cpp server over its
// OpenAI-compatible chat completions endpoint.
type LlamaCppProvider struct {
	baseURL   string
	modelName string
	client    *http.Client
}

// NewLlamaCppProvider creates a provider for the llama.cpp server at cfg's
// server URL, defaulting to localhost.
func NewLlamaCppProvider(cfg Config) *LlamaCppProvider {
	baseURL := cfg.ServerURL
	if baseURL == "" {
		baseURL = DefaultLlamaServerURL
	}
	timeout := defaultLlamaTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout * float64(time.Second))
	}
	return &LlamaCppProvider{
		baseURL:   strings.TrimRight(baseURL, "/"),
		modelName: cfg.ModelName,
		client:    &http.Client{Timeout: timeout},
	}
}

type llamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type llamaChatRequest struct {
	Model           string             `json:"model"`
	Messages        []llamaChatMessage `json:"messages"`
	Temperature     float64            `json:"temperature"`
	MaxTokens       int                `json:"max_tokens"`
	Stream          bool               `json:"stream"`
	ReasoningEffort float64            `json:"reasoning_effort"`
}

type llamaChatResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// GenerateContent calls the llama.cpp chat completions endpoint. Local
// reasoning models sometimes emit their answer inside the reasoning channel
// instead of the content field, so an empty content falls back to extraction
// from the reasoning text.
func (p *LlamaCppProvider) GenerateContent(ctx context.Context, req GenerateRequest) (string, error) {
	req = req.withDefaults()

	userContent := req.Prompt + "\n\nIMPORTANT: Provide only the final content output. Do not show your reasoning process."

	// Small token budgets starve reasoning models before they reach the
	// answer, so the effective budget is floored at 3000.
	effectiveMaxTokens := req.MaxTokens
	if effectiveMaxTokens < 3000 {
		effectiveMaxTokens = max(effectiveMaxTokens*2, 3000)
	}

	payload := llamaChatRequest{
		Model: p.modelName,
		Messages: []llamaChatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: userContent},
		},
		Temperature:     req.Temperature,
		MaxTokens:       effectiveMaxTokens,
		Stream:          false,
		ReasoningEffort: 0.0,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to connect to LLM server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("LLM server error: %d - %s", resp.StatusCode, string(respBody))
	}

	var chatResp llamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("unexpected response format from LLM server")
	}

	choice := chatResp.Choices[0]
	content := strings.TrimSpace(choice.Message.Content)
	reasoning := strings.TrimSpace(choice.Message.ReasoningContent)

	if content == "" && reasoning != "" {
		content = extractFromReasoning(reasoning)
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w (finish reason: %s); try increasing max_tokens or check the loaded model", ErrEmptyResponse, choice.FinishReason)
	}
	return content, nil
}

var quotedTextRe = regexp.MustCompile(`"([^"]+)"`)

// extractFromReasoning pulls the final answer out of a reasoning trace.
// Strategies are tried in order: last quoted span, text after an answer
// marker, last substantial non-reasoning line, then the whole trace.
func extractFromReasoning(reasoning string) string {
	if quoted := quotedTextRe.FindAllStringSubmatch(reasoning, -1); len(quoted) > 0 {
		return quoted[len(quoted)-1][1]
	}

	lines := strings.Split(reasoning, "\n")
	markers := []string{"answer:", "output:", "content:", "tweet:", "post:"}
	for _, line := range lines {
		lower := strings.ToLower(strings.TrimSpace(line))
		for _, marker := range markers {
			if strings.Contains(lower, marker) {
				if _, after, ok := strings.Cut(line, ":"); ok {
					if s := strings.TrimSpace(after); s != "" {
						return s
					}
				}
			}
		}
	}

	reasoningKeywords := []string{"think", "consider", "hmm", "well", "let me", "i need"}
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if len(line) <= 10 {
			continue
		}
		lower := strings.ToLower(line)
		isReasoning := false
		for _, kw := range reasoningKeywords {
			if strings.Contains(lower, kw) {
				isReasoning = true
				break
			}
		}
		if !isReasoning {
			return line
		}
	}

	return reasoning
}

// EditContent rewrites content per the instruction.
func (p *LlamaCppProvider) EditContent(ctx context.Context, original, instruction string, temperature float64) (string, error) {
	return editViaGenerate(ctx, p, original, instruction, temperature)
}

// CheckHealth probes the server's /health endpoint.
func (p *LlamaCppProvider) CheckHealth(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (p *LlamaCppProvider) Name() string        { return "llamacpp" }
func (p *LlamaCppProvider) DisplayName() string { return "Llama.cpp" }
