package rules

import (
	"sort"

	"github.com/phenoclass/conceptor/internal/model"
)

// Phase1 is the phase tag for rule-based classifications.
const Phase1 = 1

// StudyOutcome summarizes one study's phase-1 pass, for reporting.
type StudyOutcome struct {
	StudyID             string
	StudyName           string
	ClassifiedVariables int
	TotalVariables      int
	Unclassified        []model.ParsedTable
}

// Rate returns the classified-variable percentage, 0 when the study has no
// variables.
func (o StudyOutcome) Rate() float64 {
	if o.TotalVariables == 0 {
		return 0
	}
	return float64(o.ClassifiedVariables) / float64(o.TotalVariables) * 100
}

// ClassifyTables runs the phase-1 rule pass over all tables, study by study
// in sorted order. When studyFilter is non-empty only that study is
// processed. Output order is deterministic: studies sorted by accession,
// tables in their input order within each study.
func ClassifyTables(store *Store, tables []model.ParsedTable, studyFilter string) ([]model.Classification, []StudyOutcome, error) {
	byStudy := model.GroupByStudy(tables)

	studyIDs := make([]string, 0, len(byStudy))
	for id := range byStudy {
		if studyFilter != "" && id != studyFilter {
			continue
		}
		studyIDs = append(studyIDs, id)
	}
	sort.Strings(studyIDs)

	var classifications []model.Classification
	var outcomes []StudyOutcome

	for _, studyID := range studyIDs {
		studyTables := byStudy[studyID]
		outcome := StudyOutcome{StudyID: studyID}
		if len(studyTables) > 0 {
			outcome.StudyName = studyTables[0].StudyName
		}

		for _, table := range studyTables {
			outcome.TotalVariables += table.VariableCount

			match, err := store.Resolve(table)
			if err != nil {
				return nil, nil, err
			}
			if match == nil {
				outcome.Unclassified = append(outcome.Unclassified, table)
				continue
			}

			classifications = append(classifications, model.Classification{
				StudyID:       studyID,
				DatasetID:     table.DatasetID,
				TableName:     table.TableName,
				Concept:       match.Rule.Concept,
				Domain:        match.Rule.Domain,
				Phase:         Phase1,
				RuleSource:    match.Provenance(),
				VariableCount: table.VariableCount,
				Variables:     table.Variables,
			})
			outcome.ClassifiedVariables += table.VariableCount
		}

		// Widest unclassified tables first: these are the best rule-authoring
		// candidates
		sort.SliceStable(outcome.Unclassified, func(i, j int) bool {
			return outcome.Unclassified[i].VariableCount > outcome.Unclassified[j].VariableCount
		})
		outcomes = append(outcomes, outcome)
	}

	return classifications, outcomes, nil
}
