package worker

import (
	"context"
	"time"

	"quorum/internal/logging"
	"quorum/internal/types"
	"quorum/internal/worker/sandbox"
)

// ShellWorker executes shell commands exactly as provided by the evaluator's
// guidance. It never invents commands: when no executable command is found
// in the task it returns a low-confidence result explaining the formats it
// accepts, so the evaluator can loop with an exact command.
type ShellWorker struct {
	runner *sandbox.ShellRunner
}

// NewShellWorker creates a shell worker. A nil runner disables execution.
func NewShellWorker(runner *sandbox.ShellRunner) *ShellWorker {
	return &ShellWorker{runner: runner}
}

func (w *ShellWorker) ID() string          { return IDShell }
func (w *ShellWorker) DisplayName() string { return "Shell Executor" }

func (w *ShellWorker) Process(ctx context.Context, task types.Task) types.WorkerResult {
	started := time.Now()
	log := logging.Get(logging.CategoryWorkers)

	if w.runner == nil {
		return result(w.ID(), w.DisplayName(),
			"Shell execution is disabled. Enable sandbox.shell_enabled to run commands.",
			"", 0.1, started)
	}

	command := extractShellCommand(task.Query + "\n" + task.Context)
	if command == "" {
		return result(w.ID(), w.DisplayName(),
			"No executable shell command found. Provide the exact command in backticks "+
				"(`ls -la`), after a keyword (Execute: ls -la), or as a direct command line.",
			"", 0.1, started)
	}

	log.Info("Executing shell command: %s", command)
	out, err := w.runner.Run(ctx, command)
	if err != nil {
		return failure(w.ID(), w.DisplayName(), err, started)
	}
	if out == "" {
		out = "(command produced no output)"
	}
	return result(w.ID(), w.DisplayName(), out, command, 1.0, started)
}
