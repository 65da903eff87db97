package rules

import (
	"fmt"
	"regexp"

	"github.com/phenoclass/conceptor/internal/model"
)

// Match is a resolved rule with its source tag (the study accession or
// DefaultRuleFile).
type Match struct {
	Rule   model.Rule
	Source string
}

// Provenance renders the match as "source:field:pattern" for the
// classification record.
func (m Match) Provenance() string {
	return fmt.Sprintf("%s:%s:%s", m.Source, m.Rule.MatchField, m.Rule.Pattern)
}

// MatchTable tries rules in list order against one table and returns the
// first rule whose pattern regex-searches the selected field (substring
// search, not anchored). Earlier rules always win, even when a later rule
// would be a tighter match. Returns nil if no rule matches.
func MatchTable(table model.ParsedTable, ruleList []model.Rule) *model.Rule {
	for i, rule := range ruleList {
		var value string
		switch rule.MatchField {
		case model.MatchTableName:
			value = table.TableName
		case model.MatchDescription:
			value = table.Description
		default:
			continue
		}

		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			// Validated at load time; an unloadable pattern cannot match
			continue
		}
		if re.MatchString(value) {
			return &ruleList[i]
		}
	}
	return nil
}

// Resolve matches a table against the study-specific rules first, then the
// defaults, tagging the result with which source matched.
func (s *Store) Resolve(table model.ParsedTable) (*Match, error) {
	studyRules, err := s.StudyRules(table.StudyID)
	if err != nil {
		return nil, err
	}
	if rule := MatchTable(table, studyRules); rule != nil {
		return &Match{Rule: *rule, Source: table.StudyID}, nil
	}

	defaultRules, err := s.DefaultRules()
	if err != nil {
		return nil, err
	}
	if rule := MatchTable(table, defaultRules); rule != nil {
		return &Match{Rule: *rule, Source: DefaultRuleFile}, nil
	}

	return nil, nil
}
