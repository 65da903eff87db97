// Package store persists the tool's JSON artifacts: the parsed-table cache,
// phase-1 classifications, per-study concept files, proposed rule files,
// the concept summary, the normalization map, and the coverage report.
// All writes use overwrite semantics so reruns are idempotent.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/phenoclass/conceptor/internal/model"
)

// Artifact file names under the output directory.
const (
	ClassificationsFile  = "classifications.json"
	SummaryFile          = "concept-summary.json"
	NormalizationMapFile = "concept-normalization-map.json"
	CoverageFile         = "coverage-report.json"
)

// Store reads and writes artifacts at the configured paths.
type Store struct {
	paths model.PathsConfig
}

// New creates a store over the configured paths.
func New(paths model.PathsConfig) *Store {
	return &Store{paths: paths}
}

// LoadTables reads the parsed-table cache (one flat JSON array, ungrouped).
func (s *Store) LoadTables() ([]model.ParsedTable, error) {
	var tables []model.ParsedTable
	if err := readJSON(s.paths.TablesCache, &tables); err != nil {
		return nil, fmt.Errorf("load tables cache: %w", err)
	}
	return tables, nil
}

// LoadClassifications reads the phase-1 classification array.
func (s *Store) LoadClassifications() ([]model.Classification, error) {
	var cs []model.Classification
	path := filepath.Join(s.paths.OutputDir, ClassificationsFile)
	if err := readJSON(path, &cs); err != nil {
		return nil, fmt.Errorf("load classifications: %w", err)
	}
	return cs, nil
}

// SaveClassifications overwrites the phase-1 classification array.
func (s *Store) SaveClassifications(cs []model.Classification) error {
	return writeJSON(filepath.Join(s.paths.OutputDir, ClassificationsFile), cs)
}

// StudyConceptsPath returns the per-study concept artifact path.
func (s *Store) StudyConceptsPath(studyID string) string {
	return filepath.Join(s.paths.ConceptsDir, studyID+".json")
}

// HasStudyConcepts reports whether a study already has a concept artifact.
// File presence is the resume signal: present studies are skipped unless
// the run is forced.
func (s *Store) HasStudyConcepts(studyID string) bool {
	_, err := os.Stat(s.StudyConceptsPath(studyID))
	return err == nil
}

// LoadStudyConcepts reads one per-study concept artifact.
func (s *Store) LoadStudyConcepts(studyID string) (*model.StudyConcepts, error) {
	var sc model.StudyConcepts
	if err := readJSON(s.StudyConceptsPath(studyID), &sc); err != nil {
		return nil, fmt.Errorf("load study concepts %s: %w", studyID, err)
	}
	return &sc, nil
}

// SaveStudyConcepts overwrites one per-study concept artifact.
func (s *Store) SaveStudyConcepts(sc *model.StudyConcepts) error {
	return writeJSON(s.StudyConceptsPath(sc.StudyID), sc)
}

// ListConceptStudies returns the sorted study accessions that have a
// concept artifact.
func (s *Store) ListConceptStudies() ([]string, error) {
	entries, err := os.ReadDir(s.paths.ConceptsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list concept artifacts: %w", err)
	}

	var studies []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		studies = append(studies, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(studies)
	return studies, nil
}

// ProposalPath returns the per-study proposed-rule file path.
func (s *Store) ProposalPath(studyID string) string {
	return filepath.Join(s.paths.ProposedRulesDir, studyID+".json")
}

// HasProposal reports whether a study already has a proposed rule file.
func (s *Store) HasProposal(studyID string) bool {
	_, err := os.Stat(s.ProposalPath(studyID))
	return err == nil
}

// SaveStudyProposal overwrites one per-study proposed rule file.
func (s *Store) SaveStudyProposal(sp *model.StudyProposal) error {
	return writeJSON(s.ProposalPath(sp.StudyID), sp)
}

// LoadProposedRules reads a proposed rule file back as an ordered rule
// list, for comparison against hand-written rules.
func (s *Store) LoadProposedRules(studyID string) ([]model.Rule, error) {
	var rf model.RuleFile
	if err := readJSON(s.ProposalPath(studyID), &rf); err != nil {
		return nil, fmt.Errorf("load proposed rules %s: %w", studyID, err)
	}
	return rf.Rules, nil
}

// SaveSummary overwrites the global concept summary.
func (s *Store) SaveSummary(summary *model.ConceptSummary) error {
	return writeJSON(filepath.Join(s.paths.OutputDir, SummaryFile), summary)
}

// SaveNormalizationMap overwrites the synonym normalization map.
func (s *Store) SaveNormalizationMap(nm *model.NormalizationMap) error {
	return writeJSON(filepath.Join(s.paths.OutputDir, NormalizationMapFile), nm)
}

// SaveCoverageReport overwrites the per-study coverage stats array.
func (s *Store) SaveCoverageReport(stats []model.CoverageStats) error {
	return writeJSON(filepath.Join(s.paths.OutputDir, CoverageFile), stats)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
