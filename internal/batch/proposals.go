package batch

import (
	"context"
	"fmt"
	"sort"

	"github.com/phenoclass/conceptor/internal/model"
	"github.com/phenoclass/conceptor/internal/worker"
)

// RunProposals evaluates every table of the given studies for a
// classify/skip verdict and writes one proposed rule file per study.
// Studies that already have a proposal are skipped unless force is set.
func (o *Orchestrator) RunProposals(ctx context.Context, studyIDs []string, byStudy map[string][]model.ParsedTable, force bool) ([]StudyReport, error) {
	var reports []StudyReport
	for i, studyID := range studyIDs {
		if !force && o.store.HasProposal(studyID) {
			o.logger.Info("study already has a proposal, skipping", "study", studyID)
			continue
		}
		tables := byStudy[studyID]
		if len(tables) == 0 {
			o.logger.Info("no tables in cache, skipping", "study", studyID)
			continue
		}

		o.logger.Info("proposing rules",
			"study", studyID, "progress", fmt.Sprintf("%d/%d", i+1, len(studyIDs)),
			"tables", len(tables))

		proposal, report := o.ProposeStudyRules(ctx, studyID, tables)
		if err := o.store.SaveStudyProposal(proposal); err != nil {
			return reports, fmt.Errorf("study %s: %w", studyID, err)
		}
		reports = append(reports, report)

		o.logger.Info("study done",
			"study", studyID, "rules", len(proposal.Rules), "skipped", len(proposal.Skipped),
			"errors", report.Errors,
			"tokens_in", report.Usage.InputTokens, "tokens_out", report.Usage.OutputTokens,
			"cost_usd", fmt.Sprintf("%.3f", report.Cost))
	}
	return reports, nil
}

// ProposeStudyRules fans one study's tables out for verdicts. A
// classify=true verdict becomes a proposed rule anchored to the exact
// table name; classify=false becomes a skip record carrying the rationale,
// so skipped tables stay visible in the output.
func (o *Orchestrator) ProposeStudyRules(ctx context.Context, studyID string, tables []model.ParsedTable) (*model.StudyProposal, StudyReport) {
	studyName := studyID
	if len(tables) > 0 {
		studyName = tables[0].StudyName
	}

	pool := worker.NewPool(o.cfg.Concurrency)
	pool.Start(ctx)
	for _, t := range tables {
		pool.Submit(&verdictJob{o: o, studyID: studyID, studyName: studyName, table: t})
	}
	results := pool.Wait()

	report := StudyReport{StudyID: studyID}
	ordered := make([]*verdictResult, 0, len(results))
	for _, r := range results {
		vr := r.(*verdictResult)
		report.Usage.Add(vr.usage)
		if vr.err != nil {
			report.Errors++
			o.logger.Error("table failed", "study", studyID, "table", vr.table.TableName, "error", vr.err)
			continue
		}
		ordered = append(ordered, vr)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].table.TableName < ordered[j].table.TableName
	})

	proposal := &model.StudyProposal{
		StudyID:   studyID,
		StudyName: studyName,
		Rules:     []model.ProposedRule{},
		Skipped:   []model.SkippedTable{},
	}
	for _, vr := range ordered {
		v := vr.verdict
		if v.Classify && v.Measure != "" && v.Domain != "" {
			proposal.Rules = append(proposal.Rules, model.ProposedRule{
				Match:       map[string]string{string(model.MatchTableName): "^" + vr.table.TableName + "$"},
				Measure:     v.Measure,
				Domain:      v.Domain,
				Rationale:   v.Rationale,
				Description: vr.table.Description,
			})
		} else {
			proposal.Skipped = append(proposal.Skipped, model.SkippedTable{
				TableName: vr.table.TableName,
				Reason:    v.Rationale,
			})
		}
	}

	report.Tables = len(ordered)
	report.Cost = report.Usage.Cost(o.costIn, o.costOut)
	return proposal, report
}

// LoadProposedRules exposes stored proposals for the compare command.
func (o *Orchestrator) LoadProposedRules(studyID string) ([]model.Rule, error) {
	return o.store.LoadProposedRules(studyID)
}
