package worker

import (
	"context"
	"time"

	"quorum/internal/types"
)

const strategySystemPrompt = `You are a strategy planner. Produce a short, numbered
action plan for solving the user's problem. Name which capability each
step needs (code execution, SQL, shell, research, math).`

// StrategyWorker produces an action plan rather than an answer. Useful
// when the evaluator wants a decomposition before committing workers.
type StrategyWorker struct {
	llm types.LLMClient
}

// NewStrategyWorker creates a strategy worker.
func NewStrategyWorker(llm types.LLMClient) *StrategyWorker {
	return &StrategyWorker{llm: llm}
}

func (w *StrategyWorker) ID() string          { return IDStrategy }
func (w *StrategyWorker) DisplayName() string { return "Strategy Agent" }

func (w *StrategyWorker) Process(ctx context.Context, task types.Task) types.WorkerResult {
	started := time.Now()

	if w.llm == nil {
		return result(w.ID(), w.DisplayName(),
			"No LLM configured - cannot draft a plan.", "", 0.0, started)
	}

	prompt := task.Query
	if task.Context != "" {
		prompt += "\n\nAdditional context:\n" + task.Context
	}
	plan, err := w.llm.CompleteWithSystem(ctx, strategySystemPrompt, prompt)
	if err != nil {
		return failure(w.ID(), w.DisplayName(), err, started)
	}
	return result(w.ID(), w.DisplayName(), plan, "", 0.7, started)
}
