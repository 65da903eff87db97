package model

import "time"

// Config holds the complete tool configuration.
type Config struct {
	LLM    LLMConfig    `yaml:"llm" mapstructure:"llm"`
	Batch  BatchConfig  `yaml:"batch" mapstructure:"batch"`
	Paths  PathsConfig  `yaml:"paths" mapstructure:"paths"`
	Output OutputConfig `yaml:"output" mapstructure:"output"`
}

// LLMConfig holds inference provider configuration.
type LLMConfig struct {
	// Provider name: "anthropic", "openai"
	Provider string `yaml:"provider" mapstructure:"provider"`

	// Model name (provider-specific)
	Model string `yaml:"model" mapstructure:"model"`

	// APIKey for the provider (prefer env vars over the config file)
	APIKey string `yaml:"api_key,omitempty" mapstructure:"api_key"`

	// BaseURL for custom endpoints
	BaseURL string `yaml:"base_url,omitempty" mapstructure:"base_url"`

	// Timeout per API request
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// MaxTokens for response generation
	MaxTokens int `yaml:"max_tokens" mapstructure:"max_tokens"`

	// InputCostPerMTok / OutputCostPerMTok drive the usage cost estimate (USD)
	InputCostPerMTok  float64 `yaml:"input_cost_per_mtok" mapstructure:"input_cost_per_mtok"`
	OutputCostPerMTok float64 `yaml:"output_cost_per_mtok" mapstructure:"output_cost_per_mtok"`
}

// BatchConfig bounds the per-study fan-out.
type BatchConfig struct {
	// Concurrency caps in-flight requests within one study
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`

	// VarsPerBatch chunks a table's variable list per request
	VarsPerBatch int `yaml:"vars_per_batch" mapstructure:"vars_per_batch"`

	// NormalizeBatchSize chunks the concept list per synonym-grouping request
	NormalizeBatchSize int `yaml:"normalize_batch_size" mapstructure:"normalize_batch_size"`

	// MaxAttempts bounds rate-limit retries per request
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`

	// BaseDelay is the first backoff wait; doubled each further attempt
	BaseDelay time.Duration `yaml:"base_delay" mapstructure:"base_delay"`

	// RequestsPerSecond throttles outbound calls across all workers (0 = unlimited)
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// PathsConfig locates inputs and artifacts.
type PathsConfig struct {
	TablesCache      string `yaml:"tables_cache" mapstructure:"tables_cache"`             // flat JSON array of parsed tables
	RulesDir         string `yaml:"rules_dir" mapstructure:"rules_dir"`                   // per-study + _default rule files
	OutputDir        string `yaml:"output_dir" mapstructure:"output_dir"`                 // classifications, summaries, coverage
	ConceptsDir      string `yaml:"concepts_dir" mapstructure:"concepts_dir"`             // per-study concept artifacts
	ProposedRulesDir string `yaml:"proposed_rules_dir" mapstructure:"proposed_rules_dir"` // per-study verdict output
}

// OutputConfig controls reporting.
type OutputConfig struct {
	Verbose bool `yaml:"verbose" mapstructure:"verbose"`
	TopN    int  `yaml:"top_n" mapstructure:"top_n"` // entries per coverage ranking
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:          "anthropic",
			Model:             "",
			Timeout:           2 * time.Minute,
			MaxTokens:         16384,
			InputCostPerMTok:  0.80,
			OutputCostPerMTok: 4.00,
		},
		Batch: BatchConfig{
			Concurrency:        10,
			VarsPerBatch:       100,
			NormalizeBatchSize: 200,
			MaxAttempts:        5,
			BaseDelay:          2 * time.Second,
			RequestsPerSecond:  0,
		},
		Paths: PathsConfig{
			TablesCache:      "output/parsed-tables.json",
			RulesDir:         "rules",
			OutputDir:        "output",
			ConceptsDir:      "output/concepts",
			ProposedRulesDir: "output/proposed-rules",
		},
		Output: OutputConfig{
			Verbose: false,
			TopN:    10,
		},
	}
}
