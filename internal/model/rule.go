package model

import (
	"encoding/json"
	"fmt"
)

// MatchField selects which table field a rule's pattern is searched against.
type MatchField string

const (
	MatchTableName   MatchField = "tableName"
	MatchDescription MatchField = "description"
)

// Rule matches tables by name or description and assigns a concept + domain.
// Rules are ordered within a rule file; order is author-controlled and
// significant (first match wins).
type Rule struct {
	MatchField  MatchField `json:"matchField"`
	Pattern     string     `json:"pattern"` // regex, substring search (not anchored)
	Concept     string     `json:"concept"`
	Domain      string     `json:"domain"`
	Rationale   string     `json:"rationale,omitempty"`
	Description string     `json:"description,omitempty"` // example table description(s) for auditing
}

// ruleJSON is the on-disk shape: the match field and pattern are a
// single-entry object, e.g. {"match": {"tableName": "^t_physactf_"}}.
type ruleJSON struct {
	Match       map[string]string `json:"match"`
	Concept     string            `json:"concept"`
	Measure     string            `json:"measure"` // proposed rule files use "measure" for the concept slug
	Domain      string            `json:"domain"`
	Rationale   string            `json:"rationale,omitempty"`
	Description string            `json:"description,omitempty"`
}

// UnmarshalJSON decodes the rule-file entry format.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var raw ruleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Match) != 1 {
		return fmt.Errorf("rule match must have exactly one field, got %d", len(raw.Match))
	}
	for field, pattern := range raw.Match {
		r.MatchField = MatchField(field)
		r.Pattern = pattern
	}
	r.Concept = raw.Concept
	if r.Concept == "" {
		r.Concept = raw.Measure
	}
	r.Domain = raw.Domain
	r.Rationale = raw.Rationale
	r.Description = raw.Description
	return nil
}

// MarshalJSON encodes back to the rule-file entry format.
func (r Rule) MarshalJSON() ([]byte, error) {
	return json.Marshal(ruleJSON{
		Match:       map[string]string{string(r.MatchField): r.Pattern},
		Concept:     r.Concept,
		Domain:      r.Domain,
		Rationale:   r.Rationale,
		Description: r.Description,
	})
}

// RuleFile is an ordered rule set for one study, or the default set.
type RuleFile struct {
	StudyID   string `json:"studyId"`
	StudyName string `json:"studyName"`
	Rules     []Rule `json:"rules"`
}
