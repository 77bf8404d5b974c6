package evaluator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"quorum/internal/types"
)

// cannedLLM replays a fixed response or error.
type cannedLLM struct {
	response string
	err      error
	prompts  []string
}

func (c *cannedLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

func (c *cannedLLM) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	if c.err != nil {
		return "", c.err
	}
	return c.response, nil
}

func results(rs ...types.WorkerResult) []types.WorkerResult { return rs }

func TestEvaluateFinalize(t *testing.T) {
	llm := &cannedLLM{response: `{"decision": "finalize", "final_answer": "The square root of 144 is 12", "selected_agent": "Math Agent", "reasoning": "both agents agree"}`}
	s := New(llm)

	d := s.Evaluate(context.Background(), "square root of 144",
		results(types.WorkerResult{DisplayName: "Math Agent", Answer: "12", Confidence: 1.0, HasConfidence: true}),
		nil, 0, 10)

	if d.Kind != types.DecisionFinalize {
		t.Fatalf("expected finalize, got %s (%v)", d.Kind, d.Err)
	}
	if !strings.Contains(d.FinalAnswer, "12") {
		t.Errorf("final answer should carry the value: %q", d.FinalAnswer)
	}
	if d.SelectedWorker != "Math Agent" {
		t.Errorf("selected worker not carried through: %q", d.SelectedWorker)
	}
}

func TestEvaluateLoopCarriesGuidance(t *testing.T) {
	llm := &cannedLLM{response: `{"decision": "loop", "additional_guidance": "run the query against the users table", "reasoning": "missing data"}`}
	s := New(llm)

	d := s.Evaluate(context.Background(), "q", nil, nil, 0, 10)
	if d.Kind != types.DecisionLoop {
		t.Fatalf("expected loop, got %s", d.Kind)
	}
	if d.Guidance == "" {
		t.Error("loop decision must carry guidance")
	}
}

func TestEvaluateClarifyDefaultsQuestion(t *testing.T) {
	llm := &cannedLLM{response: `{"decision": "clarify", "reasoning": "ambiguous"}`}
	s := New(llm)

	d := s.Evaluate(context.Background(), "q", nil, nil, 0, 10)
	if d.Kind != types.DecisionClarify {
		t.Fatalf("expected clarify, got %s", d.Kind)
	}
	if d.Question == "" {
		t.Error("clarify decision must always carry a question")
	}
}

func TestEvaluateToleratesMarkdownFences(t *testing.T) {
	llm := &cannedLLM{response: "```json\n{\"decision\": \"finalize\", \"final_answer\": \"ok\"}\n```"}
	s := New(llm)

	d := s.Evaluate(context.Background(), "q", nil, nil, 0, 10)
	if d.Kind != types.DecisionFinalize {
		t.Fatalf("fenced JSON should parse, got %s (%v)", d.Kind, d.Err)
	}
}

func TestEvaluateFailures(t *testing.T) {
	tests := []struct {
		name string
		llm  types.LLMClient
	}{
		{"nil client", nil},
		{"transport error", &cannedLLM{err: errors.New("connection refused")}},
		{"malformed response", &cannedLLM{response: "I think the answer is 12"}},
		{"unknown decision", &cannedLLM{response: `{"decision": "retry"}`}},
		{"finalize without answer", &cannedLLM{response: `{"decision": "finalize"}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(tt.llm).Evaluate(context.Background(), "q", nil, nil, 0, 10)
			if d.Kind != types.DecisionFailed {
				t.Fatalf("expected failed decision, got %s", d.Kind)
			}
			if d.Err == nil {
				t.Error("failed decision must carry the underlying error")
			}
			if d.FinalAnswer != "" {
				t.Errorf("a failed decision must never carry a synthesized answer, got %q", d.FinalAnswer)
			}
		})
	}
}

func TestBuildPromptIncludesHistoryAndErrors(t *testing.T) {
	s := New(&cannedLLM{})

	current := results(
		types.WorkerResult{DisplayName: "Coding Agent", Answer: "12", Confidence: 1.0, HasConfidence: true},
		types.WorkerResult{DisplayName: "Shell Executor", Answer: "timed out", Err: types.ErrWorkerTimeout},
	)
	history := [][]types.WorkerResult{
		results(types.WorkerResult{DisplayName: "General Agent", Answer: "needs more work"}),
	}

	prompt := s.BuildPrompt("the query", current, history, 1, 10)

	for _, want := range []string{
		"the query",
		"Iteration: 2 of 10",
		"Coding Agent",
		"Shell Executor",
		string(types.ErrWorkerTimeout),
		"[round 1] General Agent",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildPromptEmptyRound(t *testing.T) {
	s := New(&cannedLLM{})
	prompt := s.BuildPrompt("q", nil, nil, 0, 10)
	if !strings.Contains(prompt, "No workers were selected") {
		t.Error("an empty round must be visible to the decision service")
	}
}
