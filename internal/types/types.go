// Package types holds the shared data model for the orchestration engine:
// tasks, worker results, evaluator decisions and the error taxonomy that
// flows between the planner, dispatcher, evaluator and controller.
package types

import (
	"context"
	"time"
)

// Task is one dispatch round's unit of work. It is immutable once built;
// each loop iteration constructs a fresh Task carrying forward the
// evaluator's refinement guidance in Context.
type Task struct {
	// Query is the original user query, unchanged across iterations.
	Query string

	// Context carries prior-iteration guidance and result digests.
	// Empty on the first iteration.
	Context string

	// Iteration is the zero-based loop iteration this task belongs to.
	Iteration int

	// MaxIterations is the hard cap on refinement loops.
	MaxIterations int
}

// ErrorKind classifies worker and orchestration failures. Worker-level
// errors are data by the time they reach the controller: they ride on
// WorkerResult.Err and flow into the evaluator like any other result.
type ErrorKind string

const (
	// ErrNone marks a successful result.
	ErrNone ErrorKind = ""

	// ErrWorkerTimeout marks a worker that exceeded its dispatch deadline.
	ErrWorkerTimeout ErrorKind = "worker_timeout"

	// ErrWorkerExecution marks a failure inside a worker's executor.
	ErrWorkerExecution ErrorKind = "worker_execution"

	// ErrEvaluator marks a malformed or unreachable decision service
	// response. Always terminal for the run.
	ErrEvaluator ErrorKind = "evaluator"

	// ErrProtocol marks a malformed or out-of-order client message.
	// Logged and ignored, never fatal to the session.
	ErrProtocol ErrorKind = "protocol"
)

// WorkerResult is the normalized outcome of one worker invocation.
// Created once at the end of Process and never mutated afterwards.
type WorkerResult struct {
	// WorkerID identifies the worker variant (e.g. "code", "sql").
	WorkerID string

	// DisplayName is the user-facing label (e.g. "Coding Agent").
	DisplayName string

	// Confidence in [0,1]; only meaningful when HasConfidence is true.
	// Deterministic executors report 1.0, estimation-based paths report
	// a heuristic score.
	Confidence    float64
	HasConfidence bool

	// Answer is the worker's answer text.
	Answer string

	// Detail optionally carries the raw code/query/prompt behind the
	// answer, shown for transparency.
	Detail string

	// Err tags the failure mode, ErrNone on success.
	Err ErrorKind

	// Elapsed is the wall time the worker spent in Process.
	Elapsed time.Duration
}

// Failed reports whether the result carries an error tag.
func (r WorkerResult) Failed() bool {
	return r.Err != ErrNone
}

// DecisionKind enumerates evaluator verdicts.
type DecisionKind string

const (
	DecisionPending  DecisionKind = "pending"
	DecisionLoop     DecisionKind = "loop"
	DecisionFinalize DecisionKind = "finalize"
	DecisionClarify  DecisionKind = "clarify"
	DecisionFailed   DecisionKind = "failed"
)

// Decision is the evaluator's verdict for one round.
// FinalAnswer is present iff Kind is DecisionFinalize.
type Decision struct {
	Kind DecisionKind

	// FinalAnswer is the answer to return to the caller (finalize only).
	FinalAnswer string

	// Reasoning explains the verdict; always present.
	Reasoning string

	// Guidance describes what the next iteration must change (loop only).
	Guidance string

	// Question is the clarifying question to ask the caller (clarify only).
	Question string

	// SelectedWorker names the worker whose answer was chosen, if any.
	SelectedWorker string

	// Err carries the underlying failure when Kind is DecisionFailed.
	Err error
}

// LLMClient is the minimal completion interface the workers and the
// evaluator use. Mirrors the decision-service contract so tests can
// substitute a canned client.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
