// Package normalize deduplicates concept labels produced independently
// across thousands of batches: it gathers every distinct concept from the
// persisted per-study artifacts, asks the inference service to group
// synonyms, flattens the groups into a synonym->canonical mapping, and
// rewrites the artifacts in place.
package normalize

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/phenoclass/conceptor/internal/batch"
	"github.com/phenoclass/conceptor/internal/llm"
	"github.com/phenoclass/conceptor/internal/model"
	"github.com/phenoclass/conceptor/internal/store"
)

// Normalizer runs the synonym-normalization pass.
type Normalizer struct {
	provider  llm.Provider
	store     *store.Store
	batchSize int
	retry     batch.RetryPolicy
	costIn    float64
	costOut   float64
	logger    *slog.Logger
}

// Stats summarizes one normalization run.
type Stats struct {
	Studies   int
	Concepts  int
	Groups    int
	Synonyms  int
	Rewritten int
	Usage     llm.Usage
	Cost      float64
}

// New creates a normalizer over the given provider and artifact store.
func New(provider llm.Provider, st *store.Store, cfg *model.Config, logger *slog.Logger) *Normalizer {
	batchSize := cfg.Batch.NormalizeBatchSize
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Normalizer{
		provider:  provider,
		store:     st,
		batchSize: batchSize,
		retry: batch.RetryPolicy{
			MaxAttempts: cfg.Batch.MaxAttempts,
			BaseDelay:   cfg.Batch.BaseDelay,
			Multiplier:  2,
		},
		costIn:  cfg.LLM.InputCostPerMTok,
		costOut: cfg.LLM.OutputCostPerMTok,
		logger:  logger,
	}
}

// Run gathers concepts, derives the mapping, persists it, and rewrites
// every artifact whose concepts changed. With fewer than two distinct
// concepts there is nothing to group and no artifact is touched.
func (n *Normalizer) Run(ctx context.Context) (*model.NormalizationMap, Stats, error) {
	stats := Stats{}

	studies, err := n.store.ListConceptStudies()
	if err != nil {
		return nil, stats, err
	}
	stats.Studies = len(studies)

	concepts, err := n.collectConcepts(studies)
	if err != nil {
		return nil, stats, err
	}
	stats.Concepts = len(concepts)
	n.logger.Info("collected distinct concepts", "concepts", len(concepts), "studies", len(studies))

	if len(concepts) < 2 {
		n.logger.Info("too few concepts to normalize")
		return nil, stats, nil
	}

	var groups []model.ConceptGroup
	for start := 0; start < len(concepts); start += n.batchSize {
		end := start + n.batchSize
		if end > len(concepts) {
			end = len(concepts)
		}
		chunk := concepts[start:end]

		var batchGroups []model.ConceptGroup
		err := n.retry.Do(ctx, n.logger, fmt.Sprintf("normalize batch %d", start/n.batchSize+1), func(ctx context.Context) error {
			var usage llm.Usage
			var err error
			batchGroups, usage, err = n.provider.GroupSynonyms(ctx, chunk)
			stats.Usage.Add(usage)
			return err
		})
		if err != nil {
			return nil, stats, err
		}
		groups = append(groups, batchGroups...)
		n.logger.Info("synonym batch done", "batch", start/n.batchSize+1, "groups", len(batchGroups))
	}
	stats.Cost = stats.Usage.Cost(n.costIn, n.costOut)

	mapping := BuildMapping(groups)
	stats.Groups = len(groups)
	stats.Synonyms = len(mapping)
	if len(mapping) == 0 {
		n.logger.Info("no synonym groups found")
		return nil, stats, nil
	}

	nm := &model.NormalizationMap{Groups: groups, Mapping: mapping}
	if err := n.store.SaveNormalizationMap(nm); err != nil {
		return nil, stats, err
	}

	for _, studyID := range studies {
		sc, err := n.store.LoadStudyConcepts(studyID)
		if err != nil {
			return nm, stats, err
		}
		if !ApplyMapping(sc, mapping) {
			continue
		}
		if err := n.store.SaveStudyConcepts(sc); err != nil {
			return nm, stats, err
		}
		stats.Rewritten++
	}

	n.logger.Info("normalization applied",
		"groups", stats.Groups, "synonyms", stats.Synonyms,
		"rewritten", stats.Rewritten, "studies", stats.Studies)
	return nm, stats, nil
}

// collectConcepts returns the sorted distinct concept set across all
// per-study artifacts.
func (n *Normalizer) collectConcepts(studies []string) ([]string, error) {
	set := make(map[string]bool)
	for _, studyID := range studies {
		sc, err := n.store.LoadStudyConcepts(studyID)
		if err != nil {
			return nil, err
		}
		for _, t := range sc.Tables {
			for _, v := range t.Variables {
				set[v.Concept] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

// BuildMapping flattens synonym groups into a synonym->canonical mapping.
// A canonical label never appears as a key: a group's own canonical is
// skipped, and so is any synonym that is another group's canonical. That
// makes the mapping a fixed point over already-canonical labels.
func BuildMapping(groups []model.ConceptGroup) map[string]string {
	canonicals := make(map[string]bool, len(groups))
	for _, g := range groups {
		canonicals[g.Canonical] = true
	}

	mapping := make(map[string]string)
	for _, g := range groups {
		for _, syn := range g.Synonyms {
			if syn == g.Canonical || canonicals[syn] {
				continue
			}
			mapping[syn] = g.Canonical
		}
	}
	return mapping
}

// ApplyMapping rewrites a study artifact's variable concepts through the
// mapping and recomputes each changed table's sorted distinct concept set.
// Returns whether anything changed, so unchanged artifacts are never
// rewritten to storage.
func ApplyMapping(sc *model.StudyConcepts, mapping map[string]string) bool {
	changed := false
	for ti := range sc.Tables {
		table := &sc.Tables[ti]
		tableChanged := false
		for vi := range table.Variables {
			if canonical, ok := mapping[table.Variables[vi].Concept]; ok {
				table.Variables[vi].Concept = canonical
				tableChanged = true
			}
		}
		if tableChanged {
			table.Concepts = distinctConcepts(table.Variables)
			changed = true
		}
	}
	return changed
}

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
