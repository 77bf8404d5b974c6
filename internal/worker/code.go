package worker

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"quorum/internal/logging"
	"quorum/internal/types"
	"quorum/internal/worker/sandbox"
)

const codeSystemPrompt = `You are a Go code generator. Respond with ONLY raw Go code,
no markdown fences. The code must define exactly:

    func Run() (string, error)

Run computes the answer to the user's problem and returns it as a string.
Only import from the standard library (strings, strconv, fmt, math, regexp,
encoding/json, time, sort, bytes, unicode). The code must be complete and
runnable as-is.`

// CodeWorker solves problems by generating a Go snippet with the LLM and
// executing it in the interpreter sandbox. Recognized arithmetic forms are
// computed directly, skipping the model round-trip.
type CodeWorker struct {
	llm    types.LLMClient
	runner *sandbox.CodeRunner
}

// NewCodeWorker creates a code worker.
func NewCodeWorker(llm types.LLMClient, runner *sandbox.CodeRunner) *CodeWorker {
	return &CodeWorker{llm: llm, runner: runner}
}

func (w *CodeWorker) ID() string          { return IDCode }
func (w *CodeWorker) DisplayName() string { return "Coding Agent" }

func (w *CodeWorker) Process(ctx context.Context, task types.Task) types.WorkerResult {
	started := time.Now()
	log := logging.Get(logging.CategoryWorkers)

	// Deterministic shortcut: square roots don't need a model.
	if wantsSquareRoot(task.Query) {
		if n, ok := lastNumber(task.Query); ok && n >= 0 {
			code := fmt.Sprintf("import (\n\t\"fmt\"\n\t\"math\"\n)\n\nfunc Run() (string, error) {\n\treturn fmt.Sprint(math.Sqrt(%v)), nil\n}", n)
			answer := formatFloat(math.Sqrt(n))
			log.Info("CodeWorker computed sqrt(%v) directly", n)
			return result(w.ID(), w.DisplayName(),
				fmt.Sprintf("The square root of %v is %s", formatFloat(n), answer),
				code, 1.0, started)
		}
	}

	if w.llm == nil {
		return result(w.ID(), w.DisplayName(),
			"No LLM configured - cannot generate code for this task.",
			"", 0.0, started)
	}

	prompt := task.Query
	if task.Context != "" {
		prompt += "\n\nAdditional context:\n" + task.Context
	}

	code, err := w.llm.CompleteWithSystem(ctx, codeSystemPrompt, prompt)
	if err != nil {
		return failure(w.ID(), w.DisplayName(), fmt.Errorf("code generation failed: %w", err), started)
	}
	code = stripCodeFences(code)

	if w.runner == nil {
		return result(w.ID(), w.DisplayName(), "Generated code (execution disabled):\n"+code, code, 0.5, started)
	}

	out, err := w.runner.Run(ctx, code)
	if err != nil {
		return failure(w.ID(), w.DisplayName(), fmt.Errorf("code execution failed: %w", err), started)
	}
	return result(w.ID(), w.DisplayName(), out, code, 0.8, started)
}

// stripCodeFences removes markdown fences models add despite instructions.
func stripCodeFences(code string) string {
	code = strings.TrimSpace(code)
	if strings.HasPrefix(code, "```") {
		code = strings.TrimPrefix(code, "```go")
		code = strings.TrimPrefix(code, "```")
		if idx := strings.LastIndex(code, "```"); idx >= 0 {
			code = code[:idx]
		}
	}
	return strings.TrimSpace(code)
}

// formatFloat renders a float without a trailing ".0" for whole values.
func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%v", f)
}
