// Package batch orchestrates inference-backed classification: it fans a
// study's tables out to the provider under a concurrency cap, chunks wide
// tables into bounded variable batches, retries rate limits with backoff,
// isolates per-item failures at the collection barrier, and accounts for
// token usage per study. Studies are processed one at a time at the outer
// level; a study with an existing output artifact is skipped unless forced.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/time/rate"

	"github.com/phenoclass/conceptor/internal/llm"
	"github.com/phenoclass/conceptor/internal/model"
	"github.com/phenoclass/conceptor/internal/store"
	"github.com/phenoclass/conceptor/internal/worker"
)

// Orchestrator drives per-study inference runs.
type Orchestrator struct {
	provider llm.Provider
	store    *store.Store
	cfg      model.BatchConfig
	costIn   float64
	costOut  float64
	limiter  *rate.Limiter
	retry    RetryPolicy
	logger   *slog.Logger
}

// StudyReport summarizes one study's run: success/error counts, token
// usage, and the estimated cost.
type StudyReport struct {
	StudyID string
	Tables  int
	Errors  int
	Usage   llm.Usage
	Cost    float64
}

// New creates an orchestrator over the given provider and artifact store.
func New(provider llm.Provider, st *store.Store, cfg *model.Config, logger *slog.Logger) *Orchestrator {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.Batch.RequestsPerSecond > 0 {
		burst := cfg.Batch.Concurrency
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.Batch.RequestsPerSecond), burst)
	}

	return &Orchestrator{
		provider: provider,
		store:    st,
		cfg:      cfg.Batch,
		costIn:   cfg.LLM.InputCostPerMTok,
		costOut:  cfg.LLM.OutputCostPerMTok,
		limiter:  limiter,
		retry: RetryPolicy{
			MaxAttempts: cfg.Batch.MaxAttempts,
			BaseDelay:   cfg.Batch.BaseDelay,
			Multiplier:  2,
		},
		logger: logger,
	}
}

// call issues one provider request through the shared throttle and the
// retry policy. The limiter is re-acquired on every retry attempt.
func (o *Orchestrator) call(ctx context.Context, op string, fn func(context.Context) error) error {
	return o.retry.Do(ctx, o.logger, op, func(ctx context.Context) error {
		if err := o.limiter.Wait(ctx); err != nil {
			return err
		}
		return fn(ctx)
	})
}

// RunConcepts classifies every variable of every table for the given
// studies, sequentially per study, writing one concept artifact per study.
// Studies that already have an artifact are skipped unless force is set.
func (o *Orchestrator) RunConcepts(ctx context.Context, studyIDs []string, byStudy map[string][]model.ParsedTable, force bool) ([]StudyReport, error) {
	var reports []StudyReport
	for i, studyID := range studyIDs {
		if !force && o.store.HasStudyConcepts(studyID) {
			o.logger.Info("study already has concept output, skipping", "study", studyID)
			continue
		}
		tables := byStudy[studyID]
		if len(tables) == 0 {
			o.logger.Info("no tables in cache, skipping", "study", studyID)
			continue
		}

		nVars := 0
		for _, t := range tables {
			nVars += t.VariableCount
		}
		o.logger.Info("classifying study concepts",
			"study", studyID, "progress", fmt.Sprintf("%d/%d", i+1, len(studyIDs)),
			"tables", len(tables), "variables", nVars)

		result, report, err := o.ClassifyStudyConcepts(ctx, studyID, tables)
		if err != nil {
			return reports, fmt.Errorf("study %s: %w", studyID, err)
		}
		if err := o.store.SaveStudyConcepts(result); err != nil {
			return reports, fmt.Errorf("study %s: %w", studyID, err)
		}
		reports = append(reports, report)

		o.logger.Info("study done",
			"study", studyID, "tables", report.Tables, "errors", report.Errors,
			"tokens_in", report.Usage.InputTokens, "tokens_out", report.Usage.OutputTokens,
			"cost_usd", fmt.Sprintf("%.3f", report.Cost))
	}
	return reports, nil
}

// ClassifyStudyConcepts fans one study's tables out to the provider and
// gathers one TableConcepts per successfully classified table. A failing
// table is counted and logged; its siblings are unaffected. Results are
// re-sorted by table name so the artifact is reproducible regardless of
// completion order.
func (o *Orchestrator) ClassifyStudyConcepts(ctx context.Context, studyID string, tables []model.ParsedTable) (*model.StudyConcepts, StudyReport, error) {
	studyName := studyID
	if len(tables) > 0 {
		studyName = tables[0].StudyName
	}

	pool := worker.NewPool(o.cfg.Concurrency)
	pool.Start(ctx)
	for _, t := range tables {
		pool.Submit(&conceptJob{o: o, studyID: studyID, studyName: studyName, table: t})
	}
	results := pool.Wait()

	report := StudyReport{StudyID: studyID}
	var tableResults []model.TableConcepts
	for _, r := range results {
		cr := r.(*conceptResult)
		report.Usage.Add(cr.usage)
		if cr.err != nil {
			report.Errors++
			o.logger.Error("table failed", "study", studyID, "table", cr.table.TableName, "error", cr.err)
			continue
		}

		tableResults = append(tableResults, model.TableConcepts{
			TableName:   cr.table.TableName,
			DatasetID:   cr.table.DatasetID,
			Description: cr.table.Description,
			Concepts:    distinctConcepts(cr.variables),
			Variables:   cr.variables,
		})
	}
	sort.Slice(tableResults, func(i, j int) bool {
		return tableResults[i].TableName < tableResults[j].TableName
	})

	report.Tables = len(tableResults)
	report.Cost = report.Usage.Cost(o.costIn, o.costOut)

	return &model.StudyConcepts{
		StudyID:   studyID,
		StudyName: studyName,
		Tables:    tableResults,
	}, report, nil
}

// classifyTableConcepts classifies all variables of one table, chunking
// into batches of VarsPerBatch. The merged result carries exactly one
// entry per input variable, in input order; duplicate names re-emitted by
// overlapping batches collapse to the first occurrence.
func (o *Orchestrator) classifyTableConcepts(ctx context.Context, studyID, studyName string, table model.ParsedTable) ([]model.VariableConcept, llm.Usage, error) {
	batchSize := o.cfg.VarsPerBatch
	if batchSize <= 0 {
		batchSize = 100
	}

	var total llm.Usage
	byName := make(map[string]string, len(table.Variables))

	for start := 0; start < len(table.Variables); start += batchSize {
		end := start + batchSize
		if end > len(table.Variables) {
			end = len(table.Variables)
		}
		chunk := table.Variables[start:end]

		var assignments []model.ConceptAssignment
		err := o.call(ctx, "concepts:"+table.TableName, func(ctx context.Context) error {
			var usage llm.Usage
			var err error
			assignments, usage, err = o.provider.AssignConcepts(ctx, llm.ConceptRequest{
				StudyID:   studyID,
				StudyName: studyName,
				Table:     table,
				Variables: chunk,
			})
			total.Add(usage)
			return err
		})
		if err != nil {
			return nil, total, err
		}

		for _, a := range assignments {
			if _, seen := byName[a.VariableName]; !seen {
				byName[a.VariableName] = a.Concept
			}
		}
	}

	// Merge in input order; a variable the provider failed to cover is a
	// schema violation, not silent loss
	out := make([]model.VariableConcept, 0, len(table.Variables))
	for _, v := range table.Variables {
		concept, ok := byName[v.Name]
		if !ok {
			return nil, total, &llm.UnexpectedResponseError{
				Provider: o.provider.Name(),
				Reason:   fmt.Sprintf("no concept returned for variable %q", v.Name),
			}
		}
		out = append(out, model.VariableConcept{
			Name:        v.Name,
			Description: v.Description,
			Concept:     concept,
		})
	}
	return out, total, nil
}

// distinctConcepts returns the sorted distinct concept set of a table's
// variable assignments.
func distinctConcepts(vars []model.VariableConcept) []string {
	seen := make(map[string]bool, len(vars))
	var out []string
	for _, v := range vars {
		if !seen[v.Concept] {
			seen[v.Concept] = true
			out = append(out, v.Concept)
		}
	}
	sort.Strings(out)
	return out
}
