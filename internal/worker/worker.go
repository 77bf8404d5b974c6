// Package worker implements the capability workers the dispatcher fans out
// to. Each worker wraps exactly one capability behind a sandboxed executor
// and normalizes its output into a types.WorkerResult. Process never
// returns an error: every failure is captured on the result.
package worker

import (
	"context"
	"fmt"
	"time"

	"quorum/internal/types"
	"quorum/internal/worker/sandbox"
)

// Worker ids. The planner selects workers by these ids and the dispatcher
// resolves them through the registry - never by runtime type inspection.
const (
	IDShell     = "shell"
	IDCode      = "code"
	IDSQL       = "sql"
	IDMath      = "math"
	IDResearch  = "research"
	IDStrategy  = "strategy"
	IDData      = "data"
	IDNotes     = "notes"
	IDFileFetch = "filefetch"
	IDGeneral   = "general"
)

// Worker is one capability-specific unit of work.
type Worker interface {
	// ID returns the stable worker id used by the planner.
	ID() string

	// DisplayName returns the user-facing label for events.
	DisplayName() string

	// Process runs the task. It never returns an error; failures are
	// captured in the result's Err field.
	Process(ctx context.Context, task types.Task) types.WorkerResult
}

// Deps holds the shared executors and clients the workers delegate to.
// Nil fields disable the corresponding capability gracefully.
type Deps struct {
	LLM   types.LLMClient
	Code  *sandbox.CodeRunner
	SQL   *sandbox.SQLRunner
	Shell *sandbox.ShellRunner
	Fetch *sandbox.Fetcher
}

// Registry maps worker ids to live workers.
type Registry struct {
	workers map[string]Worker
	order   []string
}

// NewRegistry constructs every worker variant from deps.
func NewRegistry(deps Deps) *Registry {
	r := &Registry{workers: make(map[string]Worker)}
	for _, w := range []Worker{
		NewShellWorker(deps.Shell),
		NewCodeWorker(deps.LLM, deps.Code),
		NewSQLWorker(deps.LLM, deps.SQL),
		NewMathWorker(deps.LLM),
		NewResearchWorker(deps.LLM, deps.Fetch),
		NewStrategyWorker(deps.LLM),
		NewDataWorker(deps.LLM, deps.SQL),
		NewNotesWorker(deps.LLM),
		NewFileFetchWorker(deps.Fetch),
		NewGeneralWorker(deps.LLM),
	} {
		r.workers[w.ID()] = w
		r.order = append(r.order, w.ID())
	}
	return r
}

// Lookup resolves ids into workers, skipping unknown ids.
func (r *Registry) Lookup(ids []string) []Worker {
	out := make([]Worker, 0, len(ids))
	for _, id := range ids {
		if w, ok := r.workers[id]; ok {
			out = append(out, w)
		}
	}
	return out
}

// Get returns the worker for id.
func (r *Registry) Get(id string) (Worker, bool) {
	w, ok := r.workers[id]
	return w, ok
}

// IDs returns all registered worker ids in registration order.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// result builds a successful WorkerResult.
func result(id, name, answer, detail string, confidence float64, started time.Time) types.WorkerResult {
	return types.WorkerResult{
		WorkerID:      id,
		DisplayName:   name,
		Answer:        answer,
		Detail:        detail,
		Confidence:    confidence,
		HasConfidence: true,
		Elapsed:       time.Since(started),
	}
}

// failure builds a WorkerResult carrying an executor error. The error is
// data from here on: it flows into the evaluator like any other result.
func failure(id, name string, err error, started time.Time) types.WorkerResult {
	return types.WorkerResult{
		WorkerID:      id,
		DisplayName:   name,
		Answer:        fmt.Sprintf("%s failed: %v", name, err),
		Err:           types.ErrWorkerExecution,
		HasConfidence: true,
		Elapsed:       time.Since(started),
	}
}
