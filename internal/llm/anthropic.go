package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/phenoclass/conceptor/internal/model"
)

// AnthropicProvider implements the Provider interface for Anthropic Claude models
type AnthropicProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	config     Config
}

// Anthropic API structures
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

const defaultAnthropicModel = "claude-haiku-4-5"

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(config Config) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}

	return &AnthropicProvider{
		apiKey:  config.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		config: config,
	}, nil
}

// Name returns the provider name
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// JudgeTable evaluates one table and returns a classify/skip verdict.
func (p *AnthropicProvider) JudgeTable(ctx context.Context, req TableRequest) (*model.Verdict, Usage, error) {
	prompt := FormatVerdictPrompt(req.StudyID, req.StudyName, req.Table)
	text, usage, err := p.complete(ctx, verdictSystemPrompt, prompt)
	if err != nil {
		return nil, usage, err
	}
	verdict, err := parseVerdict(p.Name(), text)
	return verdict, usage, err
}

// AssignConcepts assigns a concept to every variable in the batch.
func (p *AnthropicProvider) AssignConcepts(ctx context.Context, req ConceptRequest) ([]model.ConceptAssignment, Usage, error) {
	prompt := FormatTablePrompt(req.StudyID, req.StudyName, req.Table, req.Variables)
	text, usage, err := p.complete(ctx, conceptSystemPrompt, prompt)
	if err != nil {
		return nil, usage, err
	}
	assignments, err := parseConcepts(p.Name(), text)
	return assignments, usage, err
}

// GroupSynonyms clusters synonymous concept names.
func (p *AnthropicProvider) GroupSynonyms(ctx context.Context, concepts []string) ([]model.ConceptGroup, Usage, error) {
	text, usage, err := p.complete(ctx, synonymSystemPrompt, FormatSynonymPrompt(concepts))
	if err != nil {
		return nil, usage, err
	}
	groups, err := parseGroups(p.Name(), text)
	return groups, usage, err
}

// complete sends one system+user exchange and returns the response text.
func (p *AnthropicProvider) complete(ctx context.Context, system, user string) (string, Usage, error) {
	model := p.config.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	maxTokens := p.config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 16384
	}

	apiReq := anthropicRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    system,
		Messages: []anthropicMessage{
			{Role: "user", Content: user},
		},
		Temperature: 0.2,
	}

	resp, err := p.makeRequest(ctx, apiReq)
	if err != nil {
		return "", Usage{}, err
	}

	usage := Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}

	if len(resp.Content) == 0 {
		return "", usage, &UnexpectedResponseError{
			Provider: p.Name(),
			Reason:   "no content blocks in response",
		}
	}

	return strings.TrimSpace(resp.Content[0].Text), usage, nil
}

// makeRequest makes an HTTP request to the Anthropic API
func (p *AnthropicProvider) makeRequest(ctx context.Context, apiReq anthropicRequest) (*anthropicResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/messages", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode == http.StatusTooManyRequests {
		msg := string(respBody)
		var apiErr anthropicError
		if err := json.Unmarshal(respBody, &apiErr); err == nil {
			msg = apiErr.Error.Message
		}
		return nil, &RateLimitError{
			Provider:   p.Name(),
			StatusCode: httpResp.StatusCode,
			Message:    msg,
		}
	}

	if httpResp.StatusCode != http.StatusOK {
		var apiErr anthropicError
		if err := json.Unmarshal(respBody, &apiErr); err == nil {
			return nil, fmt.Errorf("API error (%d): %s - %s", httpResp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", httpResp.StatusCode, string(respBody))
	}

	var resp anthropicResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &resp, nil
}
