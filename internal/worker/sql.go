package worker

import (
	"context"
	"fmt"
	"time"

	"quorum/internal/logging"
	"quorum/internal/types"
	"quorum/internal/worker/sandbox"
)

const sqlSystemPrompt = `You are a SQL generator for sqlite. Respond with ONLY one SQL
statement, no markdown, no explanation. The statement answers the user's
request against the scratch database.`

// SQLWorker executes structured queries against the sqlite sandbox. An
// exact statement embedded in the task runs as-is; otherwise the LLM
// generates one.
type SQLWorker struct {
	llm    types.LLMClient
	runner *sandbox.SQLRunner
}

// NewSQLWorker creates a SQL worker.
func NewSQLWorker(llm types.LLMClient, runner *sandbox.SQLRunner) *SQLWorker {
	return &SQLWorker{llm: llm, runner: runner}
}

func (w *SQLWorker) ID() string          { return IDSQL }
func (w *SQLWorker) DisplayName() string { return "SQL Agent" }

func (w *SQLWorker) Process(ctx context.Context, task types.Task) types.WorkerResult {
	started := time.Now()
	log := logging.Get(logging.CategoryWorkers)

	if w.runner == nil {
		return result(w.ID(), w.DisplayName(), "SQL sandbox is not available.", "", 0.1, started)
	}

	query := extractSQL(task.Query + "\n" + task.Context)
	generated := false
	if query == "" {
		if w.llm == nil {
			return result(w.ID(), w.DisplayName(),
				"No SQL statement found in the request and no LLM configured to generate one.",
				"", 0.1, started)
		}
		var err error
		query, err = w.llm.CompleteWithSystem(ctx, sqlSystemPrompt, task.Query)
		if err != nil {
			return failure(w.ID(), w.DisplayName(), fmt.Errorf("SQL generation failed: %w", err), started)
		}
		query = stripCodeFences(query)
		generated = true
	}

	log.Info("SQLWorker executing: %s", query)
	out, err := w.runner.Query(ctx, query)
	if err != nil {
		return failure(w.ID(), w.DisplayName(), err, started)
	}

	confidence := 1.0
	if generated {
		confidence = 0.8
	}
	return result(w.ID(), w.DisplayName(), out, query, confidence, started)
}
