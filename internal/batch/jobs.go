package batch

import (
	"context"

	"github.com/phenoclass/conceptor/internal/llm"
	"github.com/phenoclass/conceptor/internal/model"
	"github.com/phenoclass/conceptor/internal/worker"
)

// conceptJob classifies all variables of one table.
type conceptJob struct {
	o         *Orchestrator
	studyID   string
	studyName string
	table     model.ParsedTable
}

type conceptResult struct {
	table     model.ParsedTable
	variables []model.VariableConcept
	usage     llm.Usage
	err       error
}

func (r *conceptResult) Err() error { return r.err }

func (j *conceptJob) Execute(ctx context.Context) worker.Result {
	variables, usage, err := j.o.classifyTableConcepts(ctx, j.studyID, j.studyName, j.table)
	return &conceptResult{table: j.table, variables: variables, usage: usage, err: err}
}

// verdictJob asks for one table's classify/skip verdict.
type verdictJob struct {
	o         *Orchestrator
	studyID   string
	studyName string
	table     model.ParsedTable
}

type verdictResult struct {
	table   model.ParsedTable
	verdict *model.Verdict
	usage   llm.Usage
	err     error
}

func (r *verdictResult) Err() error { return r.err }

func (j *verdictJob) Execute(ctx context.Context) worker.Result {
	var verdict *model.Verdict
	var total llm.Usage
	err := j.o.call(ctx, "verdict:"+j.table.TableName, func(ctx context.Context) error {
		var usage llm.Usage
		var err error
		verdict, usage, err = j.o.provider.JudgeTable(ctx, llm.TableRequest{
			StudyID:   j.studyID,
			StudyName: j.studyName,
			Table:     j.table,
		})
		total.Add(usage)
		return err
	})
	return &verdictResult{table: j.table, verdict: verdict, usage: total, err: err}
}
