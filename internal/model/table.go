package model

// Variable is a single column of a registry dataset table.
type Variable struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ID          string `json:"id,omitempty"`
}

// ParsedTable is an immutable snapshot of one registry dataset table,
// produced by the external structural parser and loaded from the cache file.
// Variables are ordered and unique by name.
type ParsedTable struct {
	StudyID       string     `json:"study_id"`   // study accession, e.g. "phs000007"
	DatasetID     string     `json:"dataset_id"` // dataset accession, e.g. "pht000030"
	TableName     string     `json:"table_name"`
	StudyName     string     `json:"study_name"`
	Description   string     `json:"description"`
	Variables     []Variable `json:"variables"`
	VariableCount int        `json:"variable_count"`
}

// GroupByStudy buckets tables by study accession. The cache file is a flat
// array; every consumer works study by study.
func GroupByStudy(tables []ParsedTable) map[string][]ParsedTable {
	byStudy := make(map[string][]ParsedTable)
	for _, t := range tables {
		byStudy[t.StudyID] = append(byStudy[t.StudyID], t)
	}
	return byStudy
}
