package rules

import (
	"sort"

	"github.com/phenoclass/conceptor/internal/model"
)

// TableConcept is one (table, concept) classification outcome.
type TableConcept struct {
	TableName string
	Concept   string
}

// Comparison is the per-study diff between hand-written and proposed rules
// applied to the same tables.
type Comparison struct {
	StudyID       string
	Agreed        []TableConcept
	HandOnly      []TableConcept
	ProposedOnly  []TableConcept
	Disagreements map[string][2]string // table -> {hand concept, proposed concept}
}

// Compare applies both rule lists to the tables and reports agreement,
// one-sided matches, and same-table concept disagreements.
func Compare(studyID string, tables []model.ParsedTable, handRules, proposedRules []model.Rule) Comparison {
	handByTable := applyRules(tables, handRules)
	propByTable := applyRules(tables, proposedRules)

	cmp := Comparison{StudyID: studyID, Disagreements: make(map[string][2]string)}
	for name, concept := range handByTable {
		prop, ok := propByTable[name]
		switch {
		case !ok:
			cmp.HandOnly = append(cmp.HandOnly, TableConcept{name, concept})
		case prop == concept:
			cmp.Agreed = append(cmp.Agreed, TableConcept{name, concept})
		default:
			cmp.Disagreements[name] = [2]string{concept, prop}
		}
	}
	for name, concept := range propByTable {
		if _, ok := handByTable[name]; !ok {
			cmp.ProposedOnly = append(cmp.ProposedOnly, TableConcept{name, concept})
		}
	}

	sortTableConcepts(cmp.Agreed)
	sortTableConcepts(cmp.HandOnly)
	sortTableConcepts(cmp.ProposedOnly)
	return cmp
}

func applyRules(tables []model.ParsedTable, ruleList []model.Rule) map[string]string {
	out := make(map[string]string)
	for _, t := range tables {
		if rule := MatchTable(t, ruleList); rule != nil {
			out[t.TableName] = rule.Concept
		}
	}
	return out
}

func sortTableConcepts(s []TableConcept) {
	sort.Slice(s, func(i, j int) bool { return s[i].TableName < s[j].TableName })
}
