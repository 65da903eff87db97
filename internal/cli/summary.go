package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phenoclass/conceptor/internal/coverage"
	"github.com/phenoclass/conceptor/internal/model"
	"github.com/phenoclass/conceptor/internal/store"
)

var summaryTop int

// summaryCmd rolls all per-study concept artifacts into one global summary.
var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Roll per-study concept artifacts into a global concept summary",
	Long: `Summary reads every per-study concept file, counts variables and studies
per concept, and writes the roll-up to the output directory.

Example:
  conceptor summary
  conceptor summary --top 30`,
	RunE: runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)

	summaryCmd.Flags().IntVar(&summaryTop, "top", 20, "number of concepts to print")
}

func runSummary(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st := store.New(cfg.Paths)
	studyIDs, err := st.ListConceptStudies()
	if err != nil {
		return err
	}
	if len(studyIDs) == 0 {
		return fmt.Errorf("no concept artifacts in %s; run `conceptor concepts` first", cfg.Paths.ConceptsDir)
	}

	artifacts := make([]*model.StudyConcepts, 0, len(studyIDs))
	for _, id := range studyIDs {
		sc, err := st.LoadStudyConcepts(id)
		if err != nil {
			return err
		}
		artifacts = append(artifacts, sc)
	}

	summary := coverage.BuildSummary(artifacts)
	if err := st.SaveSummary(summary); err != nil {
		return err
	}
	logger.Info("summary written", "studies", summary.Studies, "concepts", summary.TotalConcepts)

	fmt.Printf("Concept summary across %d studies:\n", summary.Studies)
	fmt.Printf("  Classified variables: %d\n", summary.TotalVariables)
	fmt.Printf("  Distinct concepts:    %d\n", summary.TotalConcepts)
	fmt.Printf("\nTop %d concepts by variable count:\n", summaryTop)
	for _, cc := range coverage.TopConcepts(summary, summaryTop) {
		stat := summary.Concepts[cc.Concept]
		fmt.Printf("  %-45s %6d vars  %3d studies\n", cc.Concept, cc.Count, stat.StudyCount)
	}
	return nil
}
