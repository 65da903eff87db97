package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/phenoclass/conceptor/internal/model"
)

// OpenAIProvider implements the Provider interface for OpenAI models
type OpenAIProvider struct {
	client *openai.Client
	config Config
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(config Config) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// JudgeTable evaluates one table and returns a classify/skip verdict.
func (p *OpenAIProvider) JudgeTable(ctx context.Context, req TableRequest) (*model.Verdict, Usage, error) {
	prompt := FormatVerdictPrompt(req.StudyID, req.StudyName, req.Table)
	text, usage, err := p.complete(ctx, verdictSystemPrompt, prompt)
	if err != nil {
		return nil, usage, err
	}
	verdict, err := parseVerdict(p.Name(), text)
	return verdict, usage, err
}

// AssignConcepts assigns a concept to every variable in the batch.
func (p *OpenAIProvider) AssignConcepts(ctx context.Context, req ConceptRequest) ([]model.ConceptAssignment, Usage, error) {
	prompt := FormatTablePrompt(req.StudyID, req.StudyName, req.Table, req.Variables)
	text, usage, err := p.complete(ctx, conceptSystemPrompt, prompt)
	if err != nil {
		return nil, usage, err
	}
	assignments, err := parseConcepts(p.Name(), text)
	return assignments, usage, err
}

// GroupSynonyms clusters synonymous concept names.
func (p *OpenAIProvider) GroupSynonyms(ctx context.Context, concepts []string) ([]model.ConceptGroup, Usage, error) {
	text, usage, err := p.complete(ctx, synonymSystemPrompt, FormatSynonymPrompt(concepts))
	if err != nil {
		return nil, usage, err
	}
	groups, err := parseGroups(p.Name(), text)
	return groups, usage, err
}

// complete sends one system+user exchange and returns the response text.
func (p *OpenAIProvider) complete(ctx context.Context, system, user string) (string, Usage, error) {
	model := p.config.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	maxTokens := p.config.MaxTokens
	if maxTokens == 0 {
		maxTokens = 16384
	}

	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	chatReq := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		if isOpenAIRateLimit(err) {
			return "", Usage{}, &RateLimitError{
				Provider:   p.Name(),
				StatusCode: http.StatusTooManyRequests,
				Message:    err.Error(),
			}
		}
		return "", Usage{}, fmt.Errorf("OpenAI API error: %w", err)
	}

	usage := Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}

	if len(resp.Choices) == 0 {
		return "", usage, &UnexpectedResponseError{
			Provider: p.Name(),
			Reason:   "no choices in response",
		}
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), usage, nil
}

// isOpenAIRateLimit reports whether err is an HTTP 429 from the OpenAI API.
func isOpenAIRateLimit(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}
