package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/viper"

	"github.com/phenoclass/conceptor/internal/batch"
	"github.com/phenoclass/conceptor/internal/llm"
	"github.com/phenoclass/conceptor/internal/model"
	"github.com/phenoclass/conceptor/internal/store"
)

// loadConfig builds the effective configuration: defaults, overridden by
// the config file and CONCEPTOR_* environment variables.
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}
	cfg.Output.Verbose = verbose
	return cfg, nil
}

// buildProvider constructs the inference client once at command start.
// A missing credential is fatal here, before any network call is made.
func buildProvider(cfg *model.Config) (llm.Provider, error) {
	if cfg.LLM.Provider == "" {
		return nil, fmt.Errorf("no inference provider configured (set llm.provider to anthropic or openai)")
	}

	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "anthropic", "claude":
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
			if cfg.LLM.APIKey == "" {
				return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
			}
		case "openai":
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
			if cfg.LLM.APIKey == "" {
				return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
			}
		}
	}

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, fmt.Errorf("no inference provider configured")
	}
	return provider, nil
}

// loadTablesGrouped reads the parsed-table cache and groups it by study.
func loadTablesGrouped(st *store.Store, cachePath string) (map[string][]model.ParsedTable, error) {
	tables, err := st.LoadTables()
	if err != nil {
		return nil, fmt.Errorf("no parsed tables at %s (run the registry parser first): %w", cachePath, err)
	}
	logger.Info("loaded parsed tables", "tables", len(tables))
	return model.GroupByStudy(tables), nil
}

// selectStudies picks which studies a run covers: one study (optionally
// narrowed to one table for debugging), all studies, or incrementally
// only those without an existing output artifact.
func selectStudies(byStudy map[string][]model.ParsedTable, studyFlag, tableFlag string, all bool, hasOutput func(string) bool) ([]string, error) {
	if studyFlag != "" {
		if tableFlag != "" {
			var filtered []model.ParsedTable
			for _, t := range byStudy[studyFlag] {
				if t.TableName == tableFlag {
					filtered = append(filtered, t)
				}
			}
			if len(filtered) == 0 {
				return nil, fmt.Errorf("table %q not found in %s", tableFlag, studyFlag)
			}
			byStudy[studyFlag] = filtered
		}
		return []string{studyFlag}, nil
	}

	var studyIDs []string
	for id := range byStudy {
		if !all && hasOutput(id) {
			continue
		}
		studyIDs = append(studyIDs, id)
	}
	sort.Strings(studyIDs)
	return studyIDs, nil
}

// summarizeReports logs aggregate usage across a run's studies.
func summarizeReports(label string, reports []batch.StudyReport) {
	var tables, errors int
	var usage llm.Usage
	var cost float64
	for _, r := range reports {
		tables += r.Tables
		errors += r.Errors
		usage.Add(r.Usage)
		cost += r.Cost
	}
	logger.Info(label,
		"studies", len(reports), "tables", tables, "errors", errors,
		"tokens_in", usage.InputTokens, "tokens_out", usage.OutputTokens,
		"cost_usd", fmt.Sprintf("%.3f", cost))
}
