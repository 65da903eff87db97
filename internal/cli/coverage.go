package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phenoclass/conceptor/internal/coverage"
	"github.com/phenoclass/conceptor/internal/store"
)

var (
	coverageStudy string
	coverageTop   int
)

// coverageCmd reports how much of the catalog the current classifications
// cover.
var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Report classification coverage across the catalog",
	Long: `Coverage reads the parsed tables and the saved classifications, derives
per-study statistics, and prints an overall report: total coverage, the
studies with the most unclassified variables, the best-covered large
studies, and the concept distribution. The per-study stats are also saved
to the output directory.

Example:
  conceptor coverage
  conceptor coverage --study phs000007
  conceptor coverage --top 15`,
	RunE: runCoverage,
}

func init() {
	rootCmd.AddCommand(coverageCmd)

	coverageCmd.Flags().StringVar(&coverageStudy, "study", "", "report only this study ID")
	coverageCmd.Flags().IntVar(&coverageTop, "top", 10, "number of studies per ranking")
}

func runCoverage(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st := store.New(cfg.Paths)
	tables, err := st.LoadTables()
	if err != nil {
		return err
	}
	classifications, err := st.LoadClassifications()
	if err != nil {
		return err
	}

	report := coverage.Aggregate(tables, classifications, coverageStudy, coverageTop)
	if err := st.SaveCoverageReport(report.Stats); err != nil {
		return err
	}
	logger.Info("coverage report written", "studies", len(report.Stats))

	printCoverage(report)
	return nil
}

func printCoverage(report coverage.Report) {
	fmt.Println("=== Classification Coverage ===")
	fmt.Printf("Studies:   %d\n", len(report.Stats))
	fmt.Printf("Tables:    %d / %d classified\n", report.ClassifiedTables, report.TotalTables)
	fmt.Printf("Variables: %d / %d classified  (%.1f%%)\n",
		report.ClassifiedVariables, report.TotalVariables, report.OverallRate)

	if len(report.Stats) == 1 {
		printStudyDetail(report)
		return
	}

	if len(report.TopUnclassified) > 0 {
		fmt.Printf("\nTop %d studies by unclassified variables:\n", len(report.TopUnclassified))
		for _, s := range report.TopUnclassified {
			fmt.Printf("  %-12s %8d unclassified  (%5.1f%% covered)  %s\n",
				s.StudyID, s.UnclassifiedVariables, s.ClassificationRate, s.StudyName)
		}
	}

	if len(report.TopByRate) > 0 {
		fmt.Printf("\nTop %d studies by classification rate (>%d variables):\n",
			len(report.TopByRate), coverage.MinVariablesForRate)
		for _, s := range report.TopByRate {
			fmt.Printf("  %-12s %5.1f%%  %6d vars  %s\n",
				s.StudyID, s.ClassificationRate, s.TotalVariables, s.StudyName)
		}
	}

	if len(report.ConceptHistogram) > 0 {
		fmt.Println("\nConcept distribution:")
		for _, cc := range report.ConceptHistogram {
			fmt.Printf("  %-45s %8d\n", cc.Concept, cc.Count)
		}
	}
}

func printStudyDetail(report coverage.Report) {
	s := report.Stats[0]
	fmt.Printf("\n%s  %s\n", s.StudyID, s.StudyName)
	fmt.Printf("  Tables:    %d / %d classified\n", s.ClassifiedTables, s.TotalTables)
	fmt.Printf("  Variables: %d / %d classified  (%.1f%%)\n",
		s.ClassifiedVariables, s.TotalVariables, s.ClassificationRate)
	if len(report.ConceptHistogram) > 0 {
		fmt.Println("  Concepts:")
		for _, cc := range report.ConceptHistogram {
			fmt.Printf("    %-43s %8d\n", cc.Concept, cc.Count)
		}
	}
}
