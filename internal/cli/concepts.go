package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/phenoclass/conceptor/internal/batch"
	"github.com/phenoclass/conceptor/internal/store"
)

var (
	conceptsStudy string
	conceptsTable string
	conceptsAll   bool
	llmProvider   string
	llmModel      string
)

// conceptsCmd runs variable-level concept classification.
var conceptsCmd = &cobra.Command{
	Use:   "concepts",
	Short: "Assign a standardized concept to every variable via the inference service",
	Long: `Concepts assigns a standardized medical concept name to every variable
of every table, enabling browsing by measurement type. Tables and studies
inherit the union of their variables' concepts.

Studies are processed one at a time; within a study, tables fan out under
a bounded worker pool, wide tables are chunked into variable batches, and
rate limits retry with exponential backoff. One failing table never aborts
its study. Output is one JSON artifact per study; studies that already
have an artifact are skipped unless --all is given.

Example:
  conceptor concepts --study phs000280
  conceptor concepts --study phs000280 --table UBMDBF02
  conceptor concepts --all
  conceptor concepts`,
	RunE: runConcepts,
}

func init() {
	rootCmd.AddCommand(conceptsCmd)

	conceptsCmd.Flags().StringVar(&conceptsStudy, "study", "", "classify only this study ID (e.g. phs000280)")
	conceptsCmd.Flags().StringVar(&conceptsTable, "table", "", "with --study, classify only this one table name")
	conceptsCmd.Flags().BoolVar(&conceptsAll, "all", false, "classify all studies, including those with existing output")
	conceptsCmd.Flags().StringVar(&llmProvider, "provider", "", "inference provider (anthropic, openai)")
	conceptsCmd.Flags().StringVar(&llmModel, "model", "", "override the model")
}

func runConcepts(cmd *cobra.Command, args []string) error {
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
	byStudy, err := loadTablesGrouped(st, cfg.Paths.TablesCache)
	if err != nil {
		return err
	}

	force := conceptsAll || conceptsStudy != ""
	studyIDs, err := selectStudies(byStudy, conceptsStudy, conceptsTable, conceptsAll, st.HasStudyConcepts)
	if err != nil {
		return err
	}
	logger.Info("starting concept classification", "studies", len(studyIDs), "provider", provider.Name())

	orch := batch.New(provider, st, cfg, logger)
	reports, err := orch.RunConcepts(context.Background(), studyIDs, byStudy, force)
	summarizeReports("concept classification done", reports)
	return err
}
