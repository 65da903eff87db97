package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/phenoclass/conceptor/internal/rules"
	"github.com/phenoclass/conceptor/internal/store"
)

var (
	classifyStudy  string
	classifyDryRun bool
)

// classifyCmd runs the phase-1 rule pass.
var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify tables into concepts using per-study rule files",
	Long: `Classify runs the deterministic phase-1 pass: every table is matched
against its study's ordered rule file, then against the default rules.
The first matching rule wins; its concept, domain, and provenance are
recorded. Matched tables are written to classifications.json.

Example:
  conceptor classify
  conceptor classify --study phs000007
  conceptor classify --study phs000007 --dry-run`,
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().StringVar(&classifyStudy, "study", "", "classify only this study ID (e.g. phs000007)")
	classifyCmd.Flags().BoolVar(&classifyDryRun, "dry-run", false, "show matches without writing output")
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st := store.New(cfg.Paths)
	tables, err := st.LoadTables()
	if err != nil {
		return fmt.Errorf("no parsed tables at %s (run the registry parser first): %w", cfg.Paths.TablesCache, err)
	}
	logger.Info("loaded parsed tables", "tables", len(tables))

	ruleStore := rules.NewStore(cfg.Paths.RulesDir)
	classifications, outcomes, err := rules.ClassifyTables(ruleStore, tables, classifyStudy)
	if err != nil {
		return err
	}

	if classifyDryRun {
		printDryRun(outcomes)
		return nil
	}

	if err := st.SaveClassifications(classifications); err != nil {
		return err
	}
	logger.Info("wrote classifications", "count", len(classifications))

	// Summary
	classifiedVars := 0
	concepts := make(map[string]bool)
	studies := make(map[string]bool)
	for _, c := range classifications {
		classifiedVars += c.VariableCount
		concepts[c.Concept] = true
		studies[c.StudyID] = true
	}
	totalVars := 0
	for _, o := range outcomes {
		totalVars += o.TotalVariables
	}
	rate := 0.0
	if totalVars > 0 {
		rate = float64(classifiedVars) / float64(totalVars) * 100
	}
	fmt.Printf("\nClassified %d / %d variables (%.1f%%)\n", classifiedVars, totalVars, rate)
	fmt.Printf("Across %d studies, %d concepts\n", len(studies), len(concepts))

	return nil
}

func printDryRun(outcomes []rules.StudyOutcome) {
	for _, o := range outcomes {
		if classifyStudy == "" && len(o.Unclassified) == 0 {
			continue
		}
		fmt.Fprintf(os.Stderr, "\n%s  %s\n", o.StudyID, o.StudyName)
		fmt.Fprintf(os.Stderr, "  Classified: %d / %d vars (%.1f%%)\n",
			o.ClassifiedVariables, o.TotalVariables, o.Rate())
		if len(o.Unclassified) == 0 {
			continue
		}
		fmt.Fprintf(os.Stderr, "  Unclassified tables (%d):\n", len(o.Unclassified))
		for _, t := range o.Unclassified {
			desc := t.Description
			if desc == "" {
				desc = "(no description)"
			}
			if len(desc) > 300 {
				desc = desc[:297] + "..."
			}
			fmt.Fprintf(os.Stderr, "    %-40s %6d vars\n", t.TableName, t.VariableCount)
			fmt.Fprintf(os.Stderr, "      %s\n", desc)
		}
	}
}
