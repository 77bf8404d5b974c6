package worker

import (
	"context"
	"fmt"
	"math"
	"time"

	"quorum/internal/types"
)

const mathSystemPrompt = `You are a mathematics expert. Solve the given problem with
precise calculations, showing the key steps briefly.`

// MathWorker handles mathematical computation. Recognized forms are
// computed directly at full precision; everything else goes to the LLM.
type MathWorker struct {
	llm types.LLMClient
}

// NewMathWorker creates a math worker.
func NewMathWorker(llm types.LLMClient) *MathWorker {
	return &MathWorker{llm: llm}
}

func (w *MathWorker) ID() string          { return IDMath }
func (w *MathWorker) DisplayName() string { return "Math Agent" }

func (w *MathWorker) Process(ctx context.Context, task types.Task) types.WorkerResult {
	started := time.Now()

	if wantsSquareRoot(task.Query) {
		if n, ok := lastNumber(task.Query); ok {
			if n < 0 {
				return result(w.ID(), w.DisplayName(),
					fmt.Sprintf("The square root of %v is not a real number.", formatFloat(n)),
					"", 1.0, started)
			}
			root := math.Sqrt(n)
			// High precision on the detail line, plain form in the answer.
			return result(w.ID(), w.DisplayName(),
				fmt.Sprintf("The square root of %s is %s", formatFloat(n), formatFloat(root)),
				fmt.Sprintf("sqrt(%v) = %.10f", n, root), 1.0, started)
		}
	}

	if w.llm == nil {
		return result(w.ID(), w.DisplayName(),
			"Unable to compute: unrecognized form and no LLM configured.",
			"", 0.0, started)
	}

	prompt := task.Query
	if task.Context != "" {
		prompt += "\n\nAdditional context:\n" + task.Context
	}
	answer, err := w.llm.CompleteWithSystem(ctx, mathSystemPrompt, prompt)
	if err != nil {
		return failure(w.ID(), w.DisplayName(), err, started)
	}
	return result(w.ID(), w.DisplayName(), answer, "", 0.9, started)
}
