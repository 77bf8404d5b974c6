package worker

import (
	"context"
	"fmt"
	"math"
	"time"

	"quorum/internal/types"
)

// GeneralWorker is the fallback for queries no specialist matches. It is
// the floor of every plan: the planner never returns an empty set because
// this worker always applies.
type GeneralWorker struct {
	llm types.LLMClient
}

// NewGeneralWorker creates a general-purpose worker.
func NewGeneralWorker(llm types.LLMClient) *GeneralWorker {
	return &GeneralWorker{llm: llm}
}

func (w *GeneralWorker) ID() string          { return IDGeneral }
func (w *GeneralWorker) DisplayName() string { return "General Agent" }

func (w *GeneralWorker) Process(ctx context.Context, task types.Task) types.WorkerResult {
	started := time.Now()

	if w.llm != nil {
		prompt := task.Query
		if task.Context != "" {
			prompt += "\n\nAdditional context:\n" + task.Context
		}
		answer, err := w.llm.Complete(ctx, prompt)
		if err != nil {
			return failure(w.ID(), w.DisplayName(), err, started)
		}
		return result(w.ID(), w.DisplayName(), answer, "", 0.7, started)
	}

	// No-LLM fallback: answer the deterministically computable forms.
	if wantsSquareRoot(task.Query) {
		if n, ok := lastNumber(task.Query); ok && n >= 0 {
			return result(w.ID(), w.DisplayName(),
				fmt.Sprintf("The square root of %s is %s", formatFloat(n), formatFloat(math.Sqrt(n))),
				"", 0.6, started)
		}
	}
	return result(w.ID(), w.DisplayName(),
		"I need more context to answer that.", "", 0.1, started)
}
