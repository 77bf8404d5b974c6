package worker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"quorum/internal/types"
	"quorum/internal/worker/sandbox"
)

// stubLLM returns a fixed response or error.
type stubLLM struct {
	response string
	err      error
}

func (s *stubLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return s.response, s.err
}

func (s *stubLLM) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	return s.response, s.err
}

func TestRegistryBuildsAllWorkers(t *testing.T) {
	r := NewRegistry(Deps{})

	ids := r.IDs()
	if len(ids) != 10 {
		t.Fatalf("expected 10 worker variants, got %d", len(ids))
	}
	for _, id := range []string{IDShell, IDCode, IDSQL, IDMath, IDResearch, IDStrategy, IDData, IDNotes, IDFileFetch, IDGeneral} {
		if _, ok := r.Get(id); !ok {
			t.Errorf("registry missing worker %s", id)
		}
	}
}

func TestRegistryLookupSkipsUnknown(t *testing.T) {
	r := NewRegistry(Deps{})
	ws := r.Lookup([]string{IDCode, "nope", IDMath})
	if len(ws) != 2 {
		t.Fatalf("expected 2 workers, got %d", len(ws))
	}
	if ws[0].ID() != IDCode || ws[1].ID() != IDMath {
		t.Errorf("lookup order not preserved: %s, %s", ws[0].ID(), ws[1].ID())
	}
}

func TestCodeWorkerComputesSquareRootDirectly(t *testing.T) {
	w := NewCodeWorker(nil, nil)
	r := w.Process(context.Background(), types.Task{Query: "What is the square root of 144?"})

	if r.Failed() {
		t.Fatalf("unexpected failure: %s", r.Err)
	}
	if !strings.Contains(r.Answer, "12") {
		t.Errorf("answer should contain 12: %q", r.Answer)
	}
	if r.Confidence != 1.0 {
		t.Errorf("direct computation should report confidence 1.0, got %v", r.Confidence)
	}
	if !strings.Contains(r.Detail, "math.Sqrt") {
		t.Errorf("detail should show the generated code: %q", r.Detail)
	}
}

func TestMathWorkerNegativeSquareRoot(t *testing.T) {
	w := NewMathWorker(nil)
	r := w.Process(context.Background(), types.Task{Query: "square root of -4"})
	if r.Failed() {
		t.Fatalf("unexpected failure: %s", r.Err)
	}
	if !strings.Contains(r.Answer, "not a real number") {
		t.Errorf("negative input should be called out: %q", r.Answer)
	}
}

func TestGeneralWorkerFallbackWithoutLLM(t *testing.T) {
	w := NewGeneralWorker(nil)

	r := w.Process(context.Background(), types.Task{Query: "sqrt of 81"})
	if !strings.Contains(r.Answer, "9") {
		t.Errorf("fallback should compute the root: %q", r.Answer)
	}
	if r.Confidence != 0.6 {
		t.Errorf("fallback confidence should be 0.6, got %v", r.Confidence)
	}

	r = w.Process(context.Background(), types.Task{Query: "tell me a story"})
	if r.Failed() {
		t.Fatalf("lacking an LLM is not an error: %s", r.Err)
	}
	if r.Confidence != 0.1 {
		t.Errorf("unanswerable query should score 0.1, got %v", r.Confidence)
	}
}

func TestGeneralWorkerLLMFailureIsTagged(t *testing.T) {
	w := NewGeneralWorker(&stubLLM{err: errors.New("boom")})
	r := w.Process(context.Background(), types.Task{Query: "anything"})
	if r.Err != types.ErrWorkerExecution {
		t.Fatalf("LLM failure should be tagged %s, got %s", types.ErrWorkerExecution, r.Err)
	}
	if r.Answer == "" {
		t.Error("failure results still carry a human-readable answer")
	}
}

func TestShellWorkerRefusesToInventCommands(t *testing.T) {
	w := NewShellWorker(sandbox.NewShellRunner(t.TempDir()))
	r := w.Process(context.Background(), types.Task{Query: "clean up my disk somehow"})
	if r.Failed() {
		t.Fatalf("a missing command is a low-confidence result, not an error: %s", r.Err)
	}
	if r.Confidence != 0.1 {
		t.Errorf("expected confidence 0.1, got %v", r.Confidence)
	}
	if !strings.Contains(r.Answer, "backticks") {
		t.Errorf("result should explain the accepted command formats: %q", r.Answer)
	}
}

func TestStripCodeFences(t *testing.T) {
	in := "```go\npackage main\n```"
	if got := stripCodeFences(in); got != "package main" {
		t.Errorf("got %q", got)
	}
	if got := stripCodeFences("plain"); got != "plain" {
		t.Errorf("got %q", got)
	}
}
