package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phenoclass/conceptor/internal/model"
)

func anthropicReply(text string, inTokens, outTokens int) string {
	resp := map[string]any{
		"id":   "msg_test",
		"type": "message",
		"role": "assistant",
		"content": []map[string]string{
			{"type": "text", "text": text},
		},
		"model":       "test-model",
		"stop_reason": "end_turn",
		"usage": map[string]int{
			"input_tokens":  inTokens,
			"output_tokens": outTokens,
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func newTestAnthropic(t *testing.T, handler http.HandlerFunc) (*AnthropicProvider, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := NewAnthropicProvider(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})
	if err != nil {
		t.Fatal(err)
	}
	return provider, server
}

func TestAnthropicProvider_AssignConcepts(t *testing.T) {
	var gotReq anthropicRequest
	provider, _ := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Errorf("missing version header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(anthropicReply(
			`{"variables": [{"variable_name": "SMKCURR", "concept": "Current Smoker"}]}`, 120, 30)))
	})

	table := model.ParsedTable{
		StudyID:   "phs000001",
		TableName: "t_smoke",
		Variables: []model.Variable{{Name: "SMKCURR", Description: "Current smoking"}},
	}
	out, usage, err := provider.AssignConcepts(context.Background(), ConceptRequest{
		StudyID:   "phs000001",
		StudyName: "Test Study",
		Table:     table,
		Variables: table.Variables,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Concept != "Current Smoker" {
		t.Errorf("unexpected assignments %+v", out)
	}
	if usage.InputTokens != 120 || usage.OutputTokens != 30 {
		t.Errorf("unexpected usage %+v", usage)
	}
	if gotReq.System == "" {
		t.Error("expected a system prompt")
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Role != "user" {
		t.Errorf("unexpected messages %+v", gotReq.Messages)
	}
}

func TestAnthropicProvider_RateLimit(t *testing.T) {
	provider, _ := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"type": "error", "error": {"type": "rate_limit_error", "message": "too fast"}}`))
	})

	_, _, err := provider.GroupSynonyms(context.Background(), []string{"a", "b"})
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("expected a rate limit error, got %v", err)
	}
	if rle.StatusCode != 429 || rle.Message != "too fast" {
		t.Errorf("unexpected error %+v", rle)
	}
	if !IsRateLimit(err) {
		t.Error("IsRateLimit must recognize the error")
	}
}

func TestAnthropicProvider_ServerErrorIsTerminal(t *testing.T) {
	provider, _ := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"type": "error", "error": {"type": "api_error", "message": "broke"}}`))
	})

	_, _, err := provider.GroupSynonyms(context.Background(), []string{"a", "b"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if IsRateLimit(err) {
		t.Error("a 500 must not be classified as a rate limit")
	}
}

func TestAnthropicProvider_JudgeTable(t *testing.T) {
	provider, _ := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(anthropicReply(
			`{"table_name": "t_consent", "classify": false, "measure": null, "domain": null, "rationale": "administrative"}`, 80, 20)))
	})

	v, _, err := provider.JudgeTable(context.Background(), TableRequest{
		StudyID: "phs000001",
		Table:   model.ParsedTable{TableName: "t_consent"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if v.Classify || v.Rationale != "administrative" {
		t.Errorf("unexpected verdict %+v", v)
	}
}

func TestAnthropicProvider_EmptyContentRejected(t *testing.T) {
	provider, _ := newTestAnthropic(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "msg", "type": "message", "role": "assistant", "content": [], "model": "m", "stop_reason": "end_turn", "usage": {"input_tokens": 5, "output_tokens": 0}}`))
	})

	_, _, err := provider.GroupSynonyms(context.Background(), []string{"a", "b"})
	var ure *UnexpectedResponseError
	if !errors.As(err, &ure) {
		t.Fatalf("expected an unexpected-response error, got %v", err)
	}
}

func TestNewAnthropicProvider_RequiresKey(t *testing.T) {
	if _, err := NewAnthropicProvider(Config{}); err == nil {
		t.Error("expected an error without an API key")
	}
}
