package store

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/phenoclass/conceptor/internal/model"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return New(model.PathsConfig{
		TablesCache:      filepath.Join(dir, "parsed-tables.json"),
		RulesDir:         filepath.Join(dir, "rules"),
		OutputDir:        filepath.Join(dir, "output"),
		ConceptsDir:      filepath.Join(dir, "output", "concepts"),
		ProposedRulesDir: filepath.Join(dir, "output", "proposed-rules"),
	})
}

func TestStore_ClassificationsRoundTrip(t *testing.T) {
	st := testStore(t)

	in := []model.Classification{
		{
			StudyID:       "phs000001",
			DatasetID:     "pht000001",
			TableName:     "t_smoke",
			Concept:       "smoking-status",
			Domain:        "Behavioral",
			Phase:         1,
			RuleSource:    "phs000001:tableName:smoking",
			VariableCount: 12,
		},
	}
	if err := st.SaveClassifications(in); err != nil {
		t.Fatal(err)
	}

	out, err := st.LoadClassifications()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip mismatch:\n in: %+v\nout: %+v", in, out)
	}
}

func TestStore_StudyConceptsResumeSignal(t *testing.T) {
	st := testStore(t)

	if st.HasStudyConcepts("phs000001") {
		t.Error("expected no artifact before save")
	}

	sc := &model.StudyConcepts{
		StudyID:   "phs000001",
		StudyName: "Test Study",
		Tables: []model.TableConcepts{{
			TableName: "t_a",
			DatasetID: "pht000001",
			Concepts:  []string{"Current Smoker"},
			Variables: []model.VariableConcept{{Name: "SMKCURR", Concept: "Current Smoker"}},
		}},
	}
	if err := st.SaveStudyConcepts(sc); err != nil {
		t.Fatal(err)
	}
	if !st.HasStudyConcepts("phs000001") {
		t.Error("expected the artifact to be detected after save")
	}

	got, err := st.LoadStudyConcepts("phs000001")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(sc, got) {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestStore_ListConceptStudies(t *testing.T) {
	st := testStore(t)

	// Missing directory is an empty list, not an error
	studies, err := st.ListConceptStudies()
	if err != nil {
		t.Fatal(err)
	}
	if len(studies) != 0 {
		t.Errorf("expected no studies, got %v", studies)
	}

	for _, id := range []string{"phs000002", "phs000001"} {
		if err := st.SaveStudyConcepts(&model.StudyConcepts{StudyID: id}); err != nil {
			t.Fatal(err)
		}
	}
	// Non-artifact files are ignored
	if err := os.WriteFile(st.StudyConceptsPath("notes")+".txt", []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	studies, err = st.ListConceptStudies()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(studies, []string{"phs000001", "phs000002"}) {
		t.Errorf("expected sorted accessions, got %v", studies)
	}
}

func TestStore_ProposalRoundTripAsRules(t *testing.T) {
	st := testStore(t)

	sp := &model.StudyProposal{
		StudyID:   "phs000001",
		StudyName: "Test Study",
		Rules: []model.ProposedRule{{
			Match:     map[string]string{"tableName": "^t_smoking$"},
			Measure:   "smoking-status",
			Domain:    "Behavioral",
			Rationale: "smoking questionnaire",
		}},
		Skipped: []model.SkippedTable{{TableName: "t_consent", Reason: "administrative"}},
	}
	if err := st.SaveStudyProposal(sp); err != nil {
		t.Fatal(err)
	}
	if !st.HasProposal("phs000001") {
		t.Error("expected the proposal to be detected after save")
	}

	// The proposal reads back as an ordered rule list: measure becomes the
	// concept, the match object becomes field+pattern
	ruleList, err := st.LoadProposedRules("phs000001")
	if err != nil {
		t.Fatal(err)
	}
	if len(ruleList) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(ruleList))
	}
	r := ruleList[0]
	if r.MatchField != model.MatchTableName || r.Pattern != "^t_smoking$" {
		t.Errorf("unexpected match %s/%s", r.MatchField, r.Pattern)
	}
	if r.Concept != "smoking-status" || r.Domain != "Behavioral" {
		t.Errorf("unexpected rule %+v", r)
	}
}

func TestStore_LoadTables(t *testing.T) {
	st := testStore(t)

	data := `[
		{"study_id": "phs000001", "dataset_id": "pht000001", "table_name": "t_a",
		 "study_name": "Test", "description": "d",
		 "variables": [{"name": "V1", "description": "var one"}], "variable_count": 1}
	]`
	if err := os.WriteFile(st.paths.TablesCache, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	tables, err := st.LoadTables()
	if err != nil {
		t.Fatal(err)
	}
	if len(tables) != 1 || tables[0].TableName != "t_a" || tables[0].Variables[0].Name != "V1" {
		t.Errorf("unexpected tables %+v", tables)
	}
}

func TestStore_WriteCreatesDirsAndTrailingNewline(t *testing.T) {
	st := testStore(t)

	if err := st.SaveSummary(&model.ConceptSummary{Studies: 1}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(st.paths.OutputDir, SummaryFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(data), "}\n") {
		t.Error("expected indented JSON with a trailing newline")
	}
}
