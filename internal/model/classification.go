package model

// Classification assigns one table to a concept via a phase-1 rule match.
// Created once by the matcher, never mutated, persisted as an array.
type Classification struct {
	StudyID       string     `json:"study_id"`
	DatasetID     string     `json:"dataset_id"`
	TableName     string     `json:"table_name"`
	Concept       string     `json:"concept"`
	Domain        string     `json:"domain"`
	Phase         int        `json:"phase"`
	RuleSource    string     `json:"rule_source"` // e.g. "phs000007:tableName:^t_physactf_"
	VariableCount int        `json:"variable_count"`
	Variables     []Variable `json:"variables"`
}

// Verdict is the inference service's classify/skip decision for one table.
// Consumed immediately into a proposed rule or a skip record.
type Verdict struct {
	TableName string `json:"table_name"`
	Classify  bool   `json:"classify"`
	Measure   string `json:"measure,omitempty"` // kebab-case slug, required when Classify
	Domain    string `json:"domain,omitempty"`  // title case, required when Classify
	Rationale string `json:"rationale"`
}

// ConceptAssignment is the inference service's concept for one variable.
type ConceptAssignment struct {
	VariableName string `json:"variable_name"`
	Concept      string `json:"concept"`
}

// VariableConcept is a persisted variable-level concept entry inside a
// per-study concept artifact.
type VariableConcept struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Concept     string `json:"concept"`
}

// TableConcepts holds one table's concept assignments. Concepts is the
// sorted distinct set of the variables' concepts.
type TableConcepts struct {
	TableName   string            `json:"tableName"`
	DatasetID   string            `json:"datasetId"`
	Description string            `json:"description,omitempty"`
	Concepts    []string          `json:"concepts"`
	Variables   []VariableConcept `json:"variables"`
}

// StudyConcepts is the per-study concept artifact (overwrite semantics).
type StudyConcepts struct {
	StudyID   string          `json:"studyId"`
	StudyName string          `json:"studyName"`
	Tables    []TableConcepts `json:"tables"`
}

// ProposedRule is a rule derived from a classify=true verdict, anchored to
// the exact table name the verdict was issued for.
type ProposedRule struct {
	Match       map[string]string `json:"match"`
	Measure     string            `json:"measure"`
	Domain      string            `json:"domain"`
	Rationale   string            `json:"rationale"`
	Description string            `json:"description,omitempty"`
}

// SkippedTable records a classify=false verdict with its rationale.
type SkippedTable struct {
	TableName string `json:"tableName"`
	Reason    string `json:"reason"`
}

// StudyProposal is the per-study output of table-verdict mode.
type StudyProposal struct {
	StudyID   string         `json:"studyId"`
	StudyName string         `json:"studyName"`
	Rules     []ProposedRule `json:"rules"`
	Skipped   []SkippedTable `json:"skipped"`
}

// ConceptGroup clusters synonymous concept names under a canonical form.
type ConceptGroup struct {
	Canonical string   `json:"canonical"`
	Synonyms  []string `json:"synonyms"`
}

// NormalizationMap is the flattened synonym clustering result. A canonical
// label never appears as a mapping key, so applying the mapping is a fixed
// point over already-canonical labels.
type NormalizationMap struct {
	Groups  []ConceptGroup    `json:"groups"`
	Mapping map[string]string `json:"mapping"` // synonym -> canonical
}

// ConceptStat is one entry of the global concept summary.
type ConceptStat struct {
	Count      int `json:"count"`      // variables carrying this concept
	StudyCount int `json:"studyCount"` // studies carrying this concept
}

// ConceptSummary is the global roll-up across all per-study artifacts.
type ConceptSummary struct {
	TotalVariables int                    `json:"totalVariables"`
	TotalConcepts  int                    `json:"totalConcepts"`
	Studies        int                    `json:"studies"`
	Concepts       map[string]ConceptStat `json:"concepts"`
}

// CoverageStats holds classification coverage for a single study. Derived,
// recomputed on demand; never a source of truth.
type CoverageStats struct {
	StudyID               string         `json:"study_id"`
	StudyName             string         `json:"study_name"`
	TotalTables           int            `json:"total_tables"`
	ClassifiedTables      int            `json:"classified_tables"`
	UnclassifiedTables    int            `json:"unclassified_tables"`
	TotalVariables        int            `json:"total_variables"`
	ClassifiedVariables   int            `json:"classified_variables"`
	UnclassifiedVariables int            `json:"unclassified_variables"`
	ClassificationRate    float64        `json:"classification_rate"` // percent, 0 when TotalVariables is 0
	Concepts              map[string]int `json:"concepts"`            // concept -> variable count
}
