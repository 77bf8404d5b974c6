package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quorum/internal/types"
	"quorum/internal/worker/sandbox"
)

const dataSystemPrompt = `You are a data analyst. Given the sqlite schema below and the
user's question, suggest the exact queries that would answer it and what
each returns.`

// DataWorker inspects the sandbox database schema and suggests queries.
// It reads, never writes - mutations are the SQL worker's job.
type DataWorker struct {
	llm    types.LLMClient
	runner *sandbox.SQLRunner
}

// NewDataWorker creates a data worker.
func NewDataWorker(llm types.LLMClient, runner *sandbox.SQLRunner) *DataWorker {
	return &DataWorker{llm: llm, runner: runner}
}

func (w *DataWorker) ID() string          { return IDData }
func (w *DataWorker) DisplayName() string { return "Data Agent" }

func (w *DataWorker) Process(ctx context.Context, task types.Task) types.WorkerResult {
	started := time.Now()

	if w.runner == nil {
		return result(w.ID(), w.DisplayName(), "Data sandbox is not available.", "", 0.1, started)
	}

	schema, err := w.runner.Schema(ctx)
	if err != nil {
		return failure(w.ID(), w.DisplayName(), fmt.Errorf("schema inspection failed: %w", err), started)
	}

	if strings.Contains(schema, "(no rows)") {
		return result(w.ID(), w.DisplayName(),
			"The scratch database has no tables yet. Create tables with the SQL Agent first.",
			schema, 0.9, started)
	}

	if w.llm == nil {
		return result(w.ID(), w.DisplayName(), "Current schema:\n"+schema, schema, 0.9, started)
	}

	answer, err := w.llm.CompleteWithSystem(ctx, dataSystemPrompt,
		fmt.Sprintf("Schema:\n%s\n\nQuestion: %s", schema, task.Query))
	if err != nil {
		return failure(w.ID(), w.DisplayName(), err, started)
	}
	return result(w.ID(), w.DisplayName(), answer, schema, 0.8, started)
}
