package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/phenoclass/conceptor/internal/batch"
	"github.com/phenoclass/conceptor/internal/model"
	"github.com/phenoclass/conceptor/internal/rules"
	"github.com/phenoclass/conceptor/internal/store"
)

var (
	proposeStudy   string
	proposeTable   string
	proposeAll     bool
	proposeCompare bool
)

// proposeCmd evaluates tables for classify/skip verdicts and writes
// proposed rule files.
var proposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Propose phase-1 rules from inference-service table verdicts",
	Long: `Propose asks the inference service for a classify/skip verdict on each
table. Classified tables become proposed rules anchored to the exact table
name; skipped tables are recorded with the rationale. Proposals can then be
compared against hand-written rule files.

Example:
  conceptor propose --study phs000007
  conceptor propose --compare
  conceptor propose --all
  conceptor propose`,
	RunE: runPropose,
}

func init() {
	rootCmd.AddCommand(proposeCmd)

	proposeCmd.Flags().StringVar(&proposeStudy, "study", "", "evaluate only this study ID")
	proposeCmd.Flags().StringVar(&proposeTable, "table", "", "with --study, evaluate only this one table name")
	proposeCmd.Flags().BoolVar(&proposeAll, "all", false, "evaluate all studies, including those with existing proposals")
	proposeCmd.Flags().BoolVar(&proposeCompare, "compare", false, "run reviewed studies and compare proposals to hand-written rules")
	proposeCmd.Flags().StringVar(&llmProvider, "provider", "", "inference provider (anthropic, openai)")
	proposeCmd.Flags().StringVar(&llmModel, "model", "", "override the model")
}

func runPropose(cmd *cobra.Command, args []string) error {
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

	ruleStore := rules.NewStore(cfg.Paths.RulesDir)
	orch := batch.New(provider, st, cfg, logger)
	ctx := context.Background()

	if proposeCompare {
		return runCompare(ctx, orch, ruleStore, byStudy)
	}

	force := proposeAll || proposeStudy != ""
	studyIDs, err := selectStudies(byStudy, proposeStudy, proposeTable, proposeAll, st.HasProposal)
	if err != nil {
		return err
	}
	logger.Info("starting rule proposals", "studies", len(studyIDs), "provider", provider.Name())

	reports, err := orch.RunProposals(ctx, studyIDs, byStudy, force)
	summarizeReports("rule proposals done", reports)
	return err
}

// runCompare evaluates every study that has a hand-written rule file, then
// diffs the proposals against those rules table by table.
func runCompare(ctx context.Context, orch *batch.Orchestrator, ruleStore *rules.Store, byStudy map[string][]model.ParsedTable) error {
	var studyIDs []string
	for id := range byStudy {
		ruleList, err := ruleStore.StudyRules(id)
		if err != nil {
			return err
		}
		if len(ruleList) > 0 {
			studyIDs = append(studyIDs, id)
		}
	}
	sort.Strings(studyIDs)
	logger.Info("comparing studies with hand-written rules", "studies", len(studyIDs))

	reports, err := orch.RunProposals(ctx, studyIDs, byStudy, true)
	summarizeReports("proposal runs done", reports)
	if err != nil {
		return err
	}

	var comparisons []rules.Comparison
	for _, studyID := range studyIDs {
		handRules, err := ruleStore.StudyRules(studyID)
		if err != nil {
			return err
		}
		proposedRules, err := orch.LoadProposedRules(studyID)
		if err != nil {
			return err
		}
		comparisons = append(comparisons, rules.Compare(studyID, byStudy[studyID], handRules, proposedRules))
	}

	printComparisons(comparisons)
	return nil
}

func printComparisons(comparisons []rules.Comparison) {
	var totalAgreed, totalHandOnly, totalProposedOnly, totalDisagreements int

	for _, c := range comparisons {
		nAgreed := len(c.Agreed)
		nHand := len(c.HandOnly)
		nProp := len(c.ProposedOnly)
		nDis := len(c.Disagreements)
		totalAgreed += nAgreed
		totalHandOnly += nHand
		totalProposedOnly += nProp
		totalDisagreements += nDis

		if nAgreed == 0 && nHand == 0 && nProp == 0 && nDis == 0 {
			continue
		}

		fmt.Printf("\n%s:\n", c.StudyID)
		fmt.Printf("  Agreed: %d  Hand-only: %d  Proposed-only: %d  Disagreements: %d\n",
			nAgreed, nHand, nProp, nDis)
		for _, tc := range c.Agreed {
			fmt.Printf("    = %-40s -> %s\n", tc.TableName, tc.Concept)
		}
		for _, tc := range c.HandOnly {
			fmt.Printf("    - %-40s -> %s  (hand only)\n", tc.TableName, tc.Concept)
		}
		for _, tc := range c.ProposedOnly {
			fmt.Printf("    + %-40s -> %s  (proposed only)\n", tc.TableName, tc.Concept)
		}
		tableNames := make([]string, 0, len(c.Disagreements))
		for name := range c.Disagreements {
			tableNames = append(tableNames, name)
		}
		sort.Strings(tableNames)
		for _, name := range tableNames {
			d := c.Disagreements[name]
			fmt.Printf("    ! %-40s  hand=%s  proposed=%s\n", name, d[0], d[1])
		}
	}

	total := totalAgreed + totalHandOnly + totalProposedOnly
	fmt.Printf("\nTOTALS across %d studies:\n", len(comparisons))
	fmt.Printf("  Agreed:        %d\n", totalAgreed)
	fmt.Printf("  Hand-only:     %d  (proposals missed)\n", totalHandOnly)
	fmt.Printf("  Proposed-only: %d  (proposal extras)\n", totalProposedOnly)
	fmt.Printf("  Disagreements: %d  (same table, different concept)\n", totalDisagreements)
	if total > 0 {
		fmt.Printf("  Agreement rate: %.1f%%\n", float64(totalAgreed)/float64(total)*100)
	}
}
