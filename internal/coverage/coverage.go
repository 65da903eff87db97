// Package coverage computes classification statistics from persisted
// classification and table sets. Everything here is derived on demand;
// nothing in this package is a source of truth.
package coverage

import (
	"math"
	"sort"

	"github.com/phenoclass/conceptor/internal/model"
)

// MinVariablesForRate is the floor for the rate ranking: studies at or
// below it are excluded so small samples don't dominate the top rates.
const MinVariablesForRate = 100

// ConceptCount is one entry of the concept histogram.
type ConceptCount struct {
	Concept string
	Count   int
}

// Report is the global roll-up over all per-study stats.
type Report struct {
	Stats []model.CoverageStats

	TotalTables         int
	ClassifiedTables    int
	TotalVariables      int
	ClassifiedVariables int
	OverallRate         float64 // percent, 0 when TotalVariables is 0

	ConceptHistogram []ConceptCount       // by variable count, descending
	TopUnclassified  []model.CoverageStats // by unclassified variables, descending
	TopByRate        []model.CoverageStats // by rate, studies above MinVariablesForRate only
}

// ComputeStudyCoverage derives one study's stats from its tables and
// classifications. The rate is 0 (not an error or NaN) for a study with no
// variables.
func ComputeStudyCoverage(tables []model.ParsedTable, classifications []model.Classification) model.CoverageStats {
	stats := model.CoverageStats{
		Concepts: make(map[string]int),
	}
	if len(tables) > 0 {
		stats.StudyID = tables[0].StudyID
		stats.StudyName = tables[0].StudyName
	}

	stats.TotalTables = len(tables)
	for _, t := range tables {
		stats.TotalVariables += t.VariableCount
	}

	classifiedDatasets := make(map[string]bool, len(classifications))
	for _, c := range classifications {
		classifiedDatasets[c.DatasetID] = true
		stats.ClassifiedVariables += c.VariableCount
		stats.Concepts[c.Concept] += c.VariableCount
	}
	for _, t := range tables {
		if classifiedDatasets[t.DatasetID] {
			stats.ClassifiedTables++
		}
	}

	stats.UnclassifiedTables = stats.TotalTables - stats.ClassifiedTables
	stats.UnclassifiedVariables = stats.TotalVariables - stats.ClassifiedVariables
	if stats.TotalVariables > 0 {
		rate := float64(stats.ClassifiedVariables) / float64(stats.TotalVariables) * 100
		stats.ClassificationRate = math.Round(rate*10) / 10
	}
	return stats
}

// Aggregate computes per-study stats plus the global roll-up. When
// studyFilter is non-empty only that study is reported. topN bounds the
// two rankings.
func Aggregate(tables []model.ParsedTable, classifications []model.Classification, studyFilter string, topN int) Report {
	byStudy := model.GroupByStudy(tables)

	classByStudy := make(map[string][]model.Classification)
	for _, c := range classifications {
		classByStudy[c.StudyID] = append(classByStudy[c.StudyID], c)
	}

	studyIDs := make([]string, 0, len(byStudy))
	for id := range byStudy {
		if studyFilter != "" && id != studyFilter {
			continue
		}
		studyIDs = append(studyIDs, id)
	}
	sort.Strings(studyIDs)

	report := Report{}
	histogram := make(map[string]int)
	for _, studyID := range studyIDs {
		stats := ComputeStudyCoverage(byStudy[studyID], classByStudy[studyID])
		report.Stats = append(report.Stats, stats)

		report.TotalTables += stats.TotalTables
		report.ClassifiedTables += stats.ClassifiedTables
		report.TotalVariables += stats.TotalVariables
		report.ClassifiedVariables += stats.ClassifiedVariables
		for concept, count := range stats.Concepts {
			histogram[concept] += count
		}
	}
	if report.TotalVariables > 0 {
		report.OverallRate = float64(report.ClassifiedVariables) / float64(report.TotalVariables) * 100
	}

	report.ConceptHistogram = sortHistogram(histogram)
	report.TopUnclassified = topByUnclassified(report.Stats, topN)
	report.TopByRate = topByRate(report.Stats, topN)
	return report
}

func sortHistogram(histogram map[string]int) []ConceptCount {
	out := make([]ConceptCount, 0, len(histogram))
	for concept, count := range histogram {
		out = append(out, ConceptCount{Concept: concept, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Concept < out[j].Concept
	})
	return out
}

func topByUnclassified(stats []model.CoverageStats, topN int) []model.CoverageStats {
	ranked := make([]model.CoverageStats, len(stats))
	copy(ranked, stats)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].UnclassifiedVariables > ranked[j].UnclassifiedVariables
	})
	return truncate(ranked, topN)
}

func topByRate(stats []model.CoverageStats, topN int) []model.CoverageStats {
	var ranked []model.CoverageStats
	for _, s := range stats {
		if s.TotalVariables > MinVariablesForRate {
			ranked = append(ranked, s)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].ClassificationRate > ranked[j].ClassificationRate
	})
	return truncate(ranked, topN)
}

func truncate(s []model.CoverageStats, n int) []model.CoverageStats {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}

// BuildSummary aggregates the global concept summary across per-study
// concept artifacts: per concept, how many variables carry it and how many
// studies it appears in.
func BuildSummary(artifacts []*model.StudyConcepts) *model.ConceptSummary {
	counts := make(map[string]int)
	studySets := make(map[string]map[string]bool)
	totalVariables := 0

	for _, sc := range artifacts {
		for _, t := range sc.Tables {
			for _, v := range t.Variables {
				counts[v.Concept]++
				if studySets[v.Concept] == nil {
					studySets[v.Concept] = make(map[string]bool)
				}
				studySets[v.Concept][sc.StudyID] = true
				totalVariables++
			}
		}
	}

	concepts := make(map[string]model.ConceptStat, len(counts))
	for concept, count := range counts {
		concepts[concept] = model.ConceptStat{
			Count:      count,
			StudyCount: len(studySets[concept]),
		}
	}

	return &model.ConceptSummary{
		TotalVariables: totalVariables,
		TotalConcepts:  len(concepts),
		Studies:        len(artifacts),
		Concepts:       concepts,
	}
}

// TopConcepts returns the summary's concepts ordered by count descending,
// bounded at n (all when n <= 0).
func TopConcepts(summary *model.ConceptSummary, n int) []ConceptCount {
	out := make([]ConceptCount, 0, len(summary.Concepts))
	for concept, stat := range summary.Concepts {
		out = append(out, ConceptCount{Concept: concept, Count: stat.Count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Concept < out[j].Concept
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
