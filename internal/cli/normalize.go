package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phenoclass/conceptor/internal/normalize"
	"github.com/phenoclass/conceptor/internal/store"
)

// normalizeCmd collapses synonymous concept labels across all per-study
// concept artifacts.
var normalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Collapse synonymous concept labels to canonical forms",
	Long: `Normalize collects every distinct concept label across the per-study
concept files, asks the inference service to group synonyms, and rewrites
the artifacts in place using the canonical label of each group. The mapping
itself is saved alongside the artifacts for inspection.

Example:
  conceptor normalize
  conceptor normalize --provider openai`,
	RunE: runNormalize,
}

func init() {
	rootCmd.AddCommand(normalizeCmd)

	normalizeCmd.Flags().StringVar(&llmProvider, "provider", "", "inference provider (anthropic, openai)")
	normalizeCmd.Flags().StringVar(&llmModel, "model", "", "override the model")
}

func runNormalize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if llmProvider != "" {
		cfg.LLM.Provider = llmProvider
	}
	if llmModel != "" {
		cfg.LLM.Model = llmModel
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	st := store.New(cfg.Paths)
	norm := normalize.New(provider, st, cfg, logger)

	mapping, stats, err := norm.Run(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("Normalization complete:\n")
	fmt.Printf("  Studies scanned:   %d\n", stats.Studies)
	fmt.Printf("  Distinct concepts: %d\n", stats.Concepts)
	fmt.Printf("  Synonym groups:    %d\n", stats.Groups)
	fmt.Printf("  Labels rewritten:  %d\n", stats.Synonyms)
	fmt.Printf("  Studies rewritten: %d\n", stats.Rewritten)
	if mapping == nil || len(mapping.Mapping) == 0 {
		fmt.Println("  No synonyms found; artifacts left untouched.")
	}
	fmt.Printf("  Tokens: %d in / %d out  Cost: $%.4f\n",
		stats.Usage.InputTokens, stats.Usage.OutputTokens, stats.Cost)
	return nil
}
