package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/phenoclass/conceptor/internal/llm"
	"github.com/phenoclass/conceptor/internal/model"
	"github.com/phenoclass/conceptor/internal/store"
)

// mockProvider implements llm.Provider with canned, per-call-inspectable
// behavior.
type mockProvider struct {
	mu sync.Mutex

	assignFn  func(req llm.ConceptRequest) ([]model.ConceptAssignment, error)
	judgeFn   func(req llm.TableRequest) (*model.Verdict, error)
	usage     llm.Usage
	batchLens []int
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) AssignConcepts(ctx context.Context, req llm.ConceptRequest) ([]model.ConceptAssignment, llm.Usage, error) {
	m.mu.Lock()
	m.batchLens = append(m.batchLens, len(req.Variables))
	m.mu.Unlock()

	if m.assignFn != nil {
		out, err := m.assignFn(req)
		return out, m.usage, err
	}
	out := make([]model.ConceptAssignment, 0, len(req.Variables))
	for _, v := range req.Variables {
		out = append(out, model.ConceptAssignment{VariableName: v.Name, Concept: "Concept " + v.Name})
	}
	return out, m.usage, nil
}

func (m *mockProvider) JudgeTable(ctx context.Context, req llm.TableRequest) (*model.Verdict, llm.Usage, error) {
	if m.judgeFn != nil {
		v, err := m.judgeFn(req)
		return v, m.usage, err
	}
	return &model.Verdict{TableName: req.Table.TableName, Classify: false, Rationale: "n/a"}, m.usage, nil
}

func (m *mockProvider) GroupSynonyms(ctx context.Context, concepts []string) ([]model.ConceptGroup, llm.Usage, error) {
	return nil, m.usage, nil
}

func testConfig(dir string) *model.Config {
	cfg := model.DefaultConfig()
	cfg.Batch.BaseDelay = time.Millisecond
	cfg.Paths = model.PathsConfig{
		TablesCache:      dir + "/parsed-tables.json",
		RulesDir:         dir + "/rules",
		OutputDir:        dir + "/output",
		ConceptsDir:      dir + "/output/concepts",
		ProposedRulesDir: dir + "/output/proposed-rules",
	}
	return cfg
}

func makeVariables(n int) []model.Variable {
	vars := make([]model.Variable, n)
	for i := range vars {
		vars[i] = model.Variable{Name: fmt.Sprintf("VAR%03d", i)}
	}
	return vars
}

func makeTable(studyID, datasetID, name string, nVars int) model.ParsedTable {
	return model.ParsedTable{
		StudyID:       studyID,
		DatasetID:     datasetID,
		TableName:     name,
		StudyName:     "Test Study",
		Variables:     makeVariables(nVars),
		VariableCount: nVars,
	}
}

func TestClassifyStudyConcepts_ChunkingCoversEveryVariable(t *testing.T) {
	for _, nVars := range []int{0, 100, 101, 250} {
		mock := &mockProvider{}
		cfg := testConfig(t.TempDir())
		orch := New(mock, store.New(cfg.Paths), cfg, testLogger())

		table := makeTable("phs000001", "pht000001", "t_wide", nVars)
		result, report, err := orch.ClassifyStudyConcepts(context.Background(), "phs000001", []model.ParsedTable{table})
		if err != nil {
			t.Fatalf("nVars=%d: %v", nVars, err)
		}
		if report.Errors != 0 {
			t.Fatalf("nVars=%d: expected no errors, got %d", nVars, report.Errors)
		}
		if len(result.Tables) != 1 {
			t.Fatalf("nVars=%d: expected 1 table, got %d", nVars, len(result.Tables))
		}

		got := result.Tables[0].Variables
		if len(got) != nVars {
			t.Fatalf("nVars=%d: expected one entry per variable, got %d", nVars, len(got))
		}
		// Input order preserved across chunk boundaries
		for i, vc := range got {
			if want := fmt.Sprintf("VAR%03d", i); vc.Name != want {
				t.Fatalf("nVars=%d: position %d holds %s, want %s", nVars, i, vc.Name, want)
			}
		}
		// No chunk exceeds the configured batch size
		for _, l := range mock.batchLens {
			if l > cfg.Batch.VarsPerBatch {
				t.Errorf("nVars=%d: chunk of %d exceeds batch size %d", nVars, l, cfg.Batch.VarsPerBatch)
			}
		}
	}
}

func TestClassifyStudyConcepts_DuplicateAssignmentsCollapse(t *testing.T) {
	mock := &mockProvider{
		assignFn: func(req llm.ConceptRequest) ([]model.ConceptAssignment, error) {
			out := make([]model.ConceptAssignment, 0, len(req.Variables)*2)
			for _, v := range req.Variables {
				out = append(out, model.ConceptAssignment{VariableName: v.Name, Concept: "first"})
				out = append(out, model.ConceptAssignment{VariableName: v.Name, Concept: "second"})
			}
			return out, nil
		},
	}
	cfg := testConfig(t.TempDir())
	orch := New(mock, store.New(cfg.Paths), cfg, testLogger())

	table := makeTable("phs000001", "pht000001", "t_dup", 5)
	result, _, err := orch.ClassifyStudyConcepts(context.Background(), "phs000001", []model.ParsedTable{table})
	if err != nil {
		t.Fatal(err)
	}
	for _, vc := range result.Tables[0].Variables {
		if vc.Concept != "first" {
			t.Errorf("variable %s: expected the first occurrence to win, got %s", vc.Name, vc.Concept)
		}
	}
	if got := result.Tables[0].Concepts; len(got) != 1 || got[0] != "first" {
		t.Errorf("expected distinct concept set [first], got %v", got)
	}
}

func TestClassifyStudyConcepts_MissingVariableIsSchemaViolation(t *testing.T) {
	mock := &mockProvider{
		assignFn: func(req llm.ConceptRequest) ([]model.ConceptAssignment, error) {
			out := make([]model.ConceptAssignment, 0, len(req.Variables))
			for _, v := range req.Variables {
				if v.Name == "VAR002" {
					continue
				}
				out = append(out, model.ConceptAssignment{VariableName: v.Name, Concept: "x"})
			}
			return out, nil
		},
	}
	cfg := testConfig(t.TempDir())
	orch := New(mock, store.New(cfg.Paths), cfg, testLogger())

	table := makeTable("phs000001", "pht000001", "t_gap", 5)
	result, report, err := orch.ClassifyStudyConcepts(context.Background(), "phs000001", []model.ParsedTable{table})
	if err != nil {
		t.Fatal(err)
	}
	// The gap surfaces as a per-table failure, not as a silently short artifact
	if report.Errors != 1 {
		t.Errorf("expected 1 table error, got %d", report.Errors)
	}
	if len(result.Tables) != 0 {
		t.Errorf("expected no table output, got %d", len(result.Tables))
	}
}

func TestClassifyStudyConcepts_FailureIsolation(t *testing.T) {
	mock := &mockProvider{
		assignFn: func(req llm.ConceptRequest) ([]model.ConceptAssignment, error) {
			if req.Table.TableName == "t_bad" {
				return nil, errors.New("provider exploded")
			}
			out := make([]model.ConceptAssignment, 0, len(req.Variables))
			for _, v := range req.Variables {
				out = append(out, model.ConceptAssignment{VariableName: v.Name, Concept: "ok"})
			}
			return out, nil
		},
	}
	cfg := testConfig(t.TempDir())
	orch := New(mock, store.New(cfg.Paths), cfg, testLogger())

	tables := []model.ParsedTable{
		makeTable("phs000001", "pht000003", "t_zulu", 3),
		makeTable("phs000001", "pht000002", "t_bad", 3),
		makeTable("phs000001", "pht000001", "t_alpha", 3),
	}
	result, report, err := orch.ClassifyStudyConcepts(context.Background(), "phs000001", tables)
	if err != nil {
		t.Fatal(err)
	}
	if report.Errors != 1 {
		t.Errorf("expected 1 error, got %d", report.Errors)
	}
	if report.Tables != 2 {
		t.Errorf("expected 2 surviving tables, got %d", report.Tables)
	}
	// Artifact order is by table name, not completion order
	if result.Tables[0].TableName != "t_alpha" || result.Tables[1].TableName != "t_zulu" {
		t.Errorf("unexpected table order: %s, %s", result.Tables[0].TableName, result.Tables[1].TableName)
	}
}

func TestClassifyStudyConcepts_UsageAndCost(t *testing.T) {
	mock := &mockProvider{usage: llm.Usage{InputTokens: 1000, OutputTokens: 100}}
	cfg := testConfig(t.TempDir())
	orch := New(mock, store.New(cfg.Paths), cfg, testLogger())

	tables := []model.ParsedTable{
		makeTable("phs000001", "pht000001", "t_a", 3),
		makeTable("phs000001", "pht000002", "t_b", 3),
	}
	_, report, err := orch.ClassifyStudyConcepts(context.Background(), "phs000001", tables)
	if err != nil {
		t.Fatal(err)
	}
	if report.Usage.InputTokens != 2000 || report.Usage.OutputTokens != 200 {
		t.Errorf("unexpected usage %+v", report.Usage)
	}
	// 2000 * 0.80/1e6 + 200 * 4.00/1e6
	want := 0.0024
	if diff := report.Cost - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected cost %.6f, got %.6f", want, report.Cost)
	}
}

func TestRunConcepts_SkipsExistingArtifact(t *testing.T) {
	cfg := testConfig(t.TempDir())
	st := store.New(cfg.Paths)

	// Pre-seed phs000001's artifact; a resumed run must leave it alone
	if err := st.SaveStudyConcepts(&model.StudyConcepts{StudyID: "phs000001", StudyName: "Done"}); err != nil {
		t.Fatal(err)
	}

	mock := &mockProvider{}
	orch := New(mock, st, cfg, testLogger())

	byStudy := map[string][]model.ParsedTable{
		"phs000001": {makeTable("phs000001", "pht000001", "t_a", 2)},
		"phs000002": {makeTable("phs000002", "pht000010", "t_b", 2)},
	}
	reports, err := orch.RunConcepts(context.Background(), []string{"phs000001", "phs000002"}, byStudy, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 || reports[0].StudyID != "phs000002" {
		t.Fatalf("expected only phs000002 to run, got %+v", reports)
	}

	kept, err := st.LoadStudyConcepts("phs000001")
	if err != nil {
		t.Fatal(err)
	}
	if kept.StudyName != "Done" {
		t.Errorf("existing artifact was overwritten: %+v", kept)
	}
}

func TestRunConcepts_ForceReprocesses(t *testing.T) {
	cfg := testConfig(t.TempDir())
	st := store.New(cfg.Paths)
	if err := st.SaveStudyConcepts(&model.StudyConcepts{StudyID: "phs000001", StudyName: "Stale"}); err != nil {
		t.Fatal(err)
	}

	orch := New(&mockProvider{}, st, cfg, testLogger())
	byStudy := map[string][]model.ParsedTable{
		"phs000001": {makeTable("phs000001", "pht000001", "t_a", 2)},
	}
	if _, err := orch.RunConcepts(context.Background(), []string{"phs000001"}, byStudy, true); err != nil {
		t.Fatal(err)
	}

	got, err := st.LoadStudyConcepts("phs000001")
	if err != nil {
		t.Fatal(err)
	}
	if got.StudyName != "Test Study" || len(got.Tables) != 1 {
		t.Errorf("expected the artifact to be rewritten, got %+v", got)
	}
}

func TestProposeStudyRules_VerdictsSplitRulesAndSkips(t *testing.T) {
	mock := &mockProvider{
		judgeFn: func(req llm.TableRequest) (*model.Verdict, error) {
			if req.Table.TableName == "t_smoking" {
				return &model.Verdict{
					TableName: req.Table.TableName,
					Classify:  true,
					Measure:   "smoking-status",
					Domain:    "Behavioral",
					Rationale: "smoking questionnaire",
				}, nil
			}
			return &model.Verdict{
				TableName: req.Table.TableName,
				Classify:  false,
				Rationale: "administrative table",
			}, nil
		},
	}
	cfg := testConfig(t.TempDir())
	orch := New(mock, store.New(cfg.Paths), cfg, testLogger())

	tables := []model.ParsedTable{
		makeTable("phs000001", "pht000001", "t_smoking", 3),
		makeTable("phs000001", "pht000002", "t_consent", 2),
	}
	proposal, report := orch.ProposeStudyRules(context.Background(), "phs000001", tables)

	if report.Errors != 0 || report.Tables != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(proposal.Rules) != 1 {
		t.Fatalf("expected 1 proposed rule, got %d", len(proposal.Rules))
	}
	rule := proposal.Rules[0]
	if rule.Match["tableName"] != "^t_smoking$" {
		t.Errorf("expected an exact-name anchor, got %q", rule.Match["tableName"])
	}
	if rule.Measure != "smoking-status" || rule.Domain != "Behavioral" {
		t.Errorf("unexpected rule %+v", rule)
	}
	if len(proposal.Skipped) != 1 || proposal.Skipped[0].TableName != "t_consent" {
		t.Errorf("unexpected skipped set %+v", proposal.Skipped)
	}
	if proposal.Skipped[0].Reason != "administrative table" {
		t.Errorf("skip record lost the rationale: %+v", proposal.Skipped[0])
	}
}

func TestProposeStudyRules_ErrorIsolation(t *testing.T) {
	mock := &mockProvider{
		judgeFn: func(req llm.TableRequest) (*model.Verdict, error) {
			if req.Table.TableName == "t_bad" {
				return nil, &llm.UnexpectedResponseError{Provider: "mock", Reason: "garbage"}
			}
			return &model.Verdict{TableName: req.Table.TableName, Classify: false, Rationale: "skip"}, nil
		},
	}
	cfg := testConfig(t.TempDir())
	orch := New(mock, store.New(cfg.Paths), cfg, testLogger())

	tables := []model.ParsedTable{
		makeTable("phs000001", "pht000001", "t_bad", 2),
		makeTable("phs000001", "pht000002", "t_ok", 2),
	}
	proposal, report := orch.ProposeStudyRules(context.Background(), "phs000001", tables)

	if report.Errors != 1 || report.Tables != 1 {
		t.Errorf("unexpected report %+v", report)
	}
	if len(proposal.Skipped) != 1 || proposal.Skipped[0].TableName != "t_ok" {
		t.Errorf("unexpected skipped set %+v", proposal.Skipped)
	}
}

func TestRunProposals_SkipsExistingProposal(t *testing.T) {
	cfg := testConfig(t.TempDir())
	st := store.New(cfg.Paths)
	if err := st.SaveStudyProposal(&model.StudyProposal{StudyID: "phs000001", StudyName: "Done"}); err != nil {
		t.Fatal(err)
	}

	orch := New(&mockProvider{}, st, cfg, testLogger())
	byStudy := map[string][]model.ParsedTable{
		"phs000001": {makeTable("phs000001", "pht000001", "t_a", 2)},
	}
	reports, err := orch.RunProposals(context.Background(), []string{"phs000001"}, byStudy, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 0 {
		t.Errorf("expected the study to be skipped, got %+v", reports)
	}
}
