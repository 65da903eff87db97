package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/phenoclass/conceptor/internal/model"
)

// Provider defines the interface for inference providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// JudgeTable evaluates one table against the classification checklist
	// and returns a classify/skip verdict
	JudgeTable(ctx context.Context, req TableRequest) (*model.Verdict, Usage, error)

	// AssignConcepts assigns a standardized concept to every variable in
	// the request batch
	AssignConcepts(ctx context.Context, req ConceptRequest) ([]model.ConceptAssignment, Usage, error)

	// GroupSynonyms clusters synonymous concept names under canonical forms
	GroupSynonyms(ctx context.Context, concepts []string) ([]model.ConceptGroup, Usage, error)
}

// TableRequest carries one table for verdict evaluation.
type TableRequest struct {
	StudyID   string
	StudyName string
	Table     model.ParsedTable
}

// ConceptRequest carries one batch of a table's variables for concept
// assignment. Variables is a subset of Table.Variables when the table is
// chunked; the table name and description travel along as context.
type ConceptRequest struct {
	StudyID   string
	StudyName string
	Table     model.ParsedTable
	Variables []model.Variable
}

// Usage tracks token consumption for one or more requests.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Add accumulates another usage record.
func (u *Usage) Add(o Usage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
}

// Cost estimates the request cost in USD given per-million-token rates.
func (u Usage) Cost(inputPerMTok, outputPerMTok float64) float64 {
	return float64(u.InputTokens)*inputPerMTok/1e6 + float64(u.OutputTokens)*outputPerMTok/1e6
}

// Config holds inference provider configuration
type Config struct {
	// Provider name: "anthropic", "openai", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for the provider
	APIKey string

	// BaseURL for custom endpoints
	BaseURL string

	// Timeout per API request
	Timeout time.Duration

	// MaxTokens for response generation
	MaxTokens int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "",
		Model:     "",
		Timeout:   2 * time.Minute,
		MaxTokens: 16384,
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(modelConfig model.LLMConfig) Config {
	return Config{
		Provider:  modelConfig.Provider,
		Model:     modelConfig.Model,
		APIKey:    modelConfig.APIKey,
		BaseURL:   modelConfig.BaseURL,
		Timeout:   modelConfig.Timeout,
		MaxTokens: modelConfig.MaxTokens,
	}
}

// MaxVerdictVars caps how many variables a verdict prompt lists. A verdict
// needs enough evidence to judge the table, not the full column set.
const MaxVerdictVars = 200

// FormatTablePrompt renders a table (or a variable subset of it) into the
// user message sent to the provider.
func FormatTablePrompt(studyID, studyName string, table model.ParsedTable, variables []model.Variable) string {
	desc := table.Description
	if desc == "" {
		desc = "(none)"
	}
	if variables == nil {
		variables = table.Variables
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Study: %s — %s\n\n", studyID, studyName)
	fmt.Fprintf(&b, "TABLE: %s  (%d vars)\n", table.TableName, len(variables))
	fmt.Fprintf(&b, "DESCRIPTION: %s\n", desc)
	b.WriteString("VARIABLES:\n")
	for _, v := range variables {
		if v.Description != "" {
			fmt.Fprintf(&b, "  %s: %s\n", v.Name, v.Description)
		} else {
			fmt.Fprintf(&b, "  %s\n", v.Name)
		}
	}
	return b.String()
}

// FormatVerdictPrompt renders a table into the verdict user message,
// truncating very wide tables at MaxVerdictVars.
func FormatVerdictPrompt(studyID, studyName string, table model.ParsedTable) string {
	shown := table.Variables
	truncated := false
	if len(shown) > MaxVerdictVars {
		shown = shown[:MaxVerdictVars]
		truncated = true
	}
	prompt := FormatTablePrompt(studyID, studyName, table, shown)
	if truncated {
		prompt += fmt.Sprintf("  ... (%d total)\n", table.VariableCount)
	}
	return prompt
}

// FormatSynonymPrompt renders a concept batch into the synonym-grouping
// user message.
func FormatSynonymPrompt(concepts []string) string {
	var b strings.Builder
	b.WriteString("Group these concept names by synonym:\n\n")
	for _, c := range concepts {
		fmt.Fprintf(&b, "- %s\n", c)
	}
	return b.String()
}
