package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"quorum/internal/dispatch"
	"quorum/internal/evaluator"
	"quorum/internal/notes"
	"quorum/internal/planner"
	"quorum/internal/protocol"
	"quorum/internal/types"
	"quorum/internal/worker"
)

// recordedEvent is one emitted event, in emission order.
type recordedEvent struct {
	Type        protocol.EventType
	Payload     any
	RequiresAck bool
}

// recordingEmitter captures the controller's event stream.
type recordingEmitter struct {
	mu     sync.Mutex
	next   uint64
	events []recordedEvent
}

func (e *recordingEmitter) Emit(typ protocol.EventType, payload any, requiresAck bool) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	e.events = append(e.events, recordedEvent{Type: typ, Payload: payload, RequiresAck: requiresAck})
	return e.next
}

func (e *recordingEmitter) byType(typ protocol.EventType) []recordedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []recordedEvent
	for _, ev := range e.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (e *recordingEmitter) all() []recordedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]recordedEvent(nil), e.events...)
}

// scriptLLM replays responses (or errors) in order and records prompts.
type scriptLLM struct {
	mu      sync.Mutex
	script  []func() (string, error)
	calls   int
	prompts []string
}

func respond(s string) func() (string, error) { return func() (string, error) { return s, nil } }
func fail(err error) func() (string, error)   { return func() (string, error) { return "", err } }

func (s *scriptLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return s.CompleteWithSystem(ctx, "", prompt)
}

func (s *scriptLLM) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if s.calls >= len(s.script) {
		return "", errors.New("script exhausted")
	}
	step := s.script[s.calls]
	s.calls++
	return step()
}

func (s *scriptLLM) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// newController wires a controller with deterministic workers (no worker
// LLM, no sandboxes) and the given evaluator script.
func newController(evalLLM types.LLMClient, opts Options) *Controller {
	return New(
		planner.New(),
		worker.NewRegistry(worker.Deps{}),
		dispatch.New(time.Second),
		evaluator.New(evalLLM),
		notes.NopSink{},
		opts,
	)
}

const finalizeSqrt = `{"decision": "finalize", "final_answer": "The square root of 144 is 12", "selected_agent": "Math Agent", "reasoning": "deterministic agents agree"}`

func TestRunFinalizesComputation(t *testing.T) {
	em := &recordingEmitter{}
	ctrl := newController(&scriptLLM{script: []func() (string, error){respond(finalizeSqrt)}}, Options{})

	outcome := ctrl.Run(context.Background(), "s1", "What is the square root of 144?", em)

	if outcome.Phase != PhaseFinalizing {
		t.Fatalf("expected finalizing outcome, got %s (%v)", outcome.Phase, outcome.Err)
	}
	if !strings.Contains(outcome.Answer, "12") {
		t.Errorf("answer should contain the computed value: %q", outcome.Answer)
	}

	finals := em.byType(protocol.EventFinal)
	if len(finals) != 1 {
		t.Fatalf("expected exactly one final event, got %d", len(finals))
	}
	if !finals[0].RequiresAck {
		t.Error("final event must require an ack")
	}

	events := em.all()
	if events[len(events)-1].Type != protocol.EventFinal {
		t.Errorf("final must be the last event, got %s", events[len(events)-1].Type)
	}

	// Both selected workers reported before the terminal event.
	agentResults := em.byType(protocol.EventAgentResult)
	if len(agentResults) != 2 {
		t.Fatalf("expected 2 agent_result events (code + math), got %d", len(agentResults))
	}
	for _, ev := range agentResults {
		p := ev.Payload.(protocol.AgentResultPayload)
		if !strings.Contains(p.Text, "12") {
			t.Errorf("agent %s did not compute the root: %q", p.AgentName, p.Text)
		}
		if p.Confidence == nil || *p.Confidence != 1.0 {
			t.Errorf("deterministic computation should report confidence 1.0: %v", p.Confidence)
		}
	}

	if len(em.byType(protocol.EventError)) != 0 {
		t.Error("successful run must not emit error events")
	}
}

func TestRunReportsWorkerFailureAsResult(t *testing.T) {
	em := &recordingEmitter{}

	// Worker LLM always fails, so the general agent produces an
	// execution-error result. The run still finalizes.
	workerLLM := &scriptLLM{script: nil}
	ctrl := New(
		planner.New(),
		worker.NewRegistry(worker.Deps{LLM: workerLLM}),
		dispatch.New(time.Second),
		evaluator.New(&scriptLLM{script: []func() (string, error){
			respond(`{"decision": "finalize", "final_answer": "Nothing could be determined.", "reasoning": "the only agent failed"}`),
		}}),
		notes.NopSink{},
		Options{},
	)

	outcome := ctrl.Run(context.Background(), "s1", "tell me about the weather", em)

	if outcome.Phase != PhaseFinalizing {
		t.Fatalf("worker failure must not abort the run: %s (%v)", outcome.Phase, outcome.Err)
	}

	agentResults := em.byType(protocol.EventAgentResult)
	if len(agentResults) != 1 {
		t.Fatalf("failed worker must still produce an agent_result, got %d", len(agentResults))
	}
	if len(em.byType(protocol.EventFinal)) != 1 {
		t.Error("run should still reach a final event")
	}
}

func TestRunEvaluatorFailureEmitsErrorNotFinal(t *testing.T) {
	em := &recordingEmitter{}
	script := &scriptLLM{script: []func() (string, error){
		fail(errors.New("connection refused")),
		respond(finalizeSqrt),
	}}
	ctrl := newController(script, Options{})

	outcome := ctrl.Run(context.Background(), "s1", "What is the square root of 144?", em)

	if outcome.Phase != PhaseFailed {
		t.Fatalf("expected failed outcome, got %s", outcome.Phase)
	}
	if len(em.byType(protocol.EventFinal)) != 0 {
		t.Error("a failed run must not emit a final event")
	}
	errs := em.byType(protocol.EventError)
	if len(errs) != 1 {
		t.Fatalf("expected exactly one error event, got %d", len(errs))
	}

	// The next run on the same controller works: a failed run leaves the
	// session usable.
	em2 := &recordingEmitter{}
	outcome2 := ctrl.Run(context.Background(), "s1", "What is the square root of 144?", em2)
	if outcome2.Phase != PhaseFinalizing {
		t.Fatalf("controller should recover for the next query, got %s (%v)", outcome2.Phase, outcome2.Err)
	}
}

func TestRunForcedFinalizeAtIterationLimit(t *testing.T) {
	em := &recordingEmitter{}
	ctrl := newController(&scriptLLM{script: []func() (string, error){
		respond(`{"decision": "loop", "additional_guidance": "try again with more detail"}`),
	}}, Options{MaxIterations: 1})

	outcome := ctrl.Run(context.Background(), "s1", "What is the square root of 144?", em)

	if outcome.Phase != PhaseFinalizing {
		t.Fatalf("limit-forced finalize expected, got %s (%v)", outcome.Phase, outcome.Err)
	}
	if !strings.Contains(outcome.Answer, "iteration limit") {
		t.Errorf("forced answer must be labeled as limit-forced: %q", outcome.Answer)
	}
	if !strings.Contains(outcome.Answer, "The square root of 144 is 12") {
		t.Errorf("forced answer must carry the best result verbatim: %q", outcome.Answer)
	}
	if len(em.byType(protocol.EventFinal)) != 1 {
		t.Error("forced finalize still emits exactly one final event")
	}
}

func TestRunRespectsIterationCap(t *testing.T) {
	em := &recordingEmitter{}
	loop := respond(`{"decision": "loop", "additional_guidance": "keep going"}`)
	script := &scriptLLM{script: []func() (string, error){loop, loop, loop, loop, loop}}
	ctrl := newController(script, Options{MaxIterations: 3})

	outcome := ctrl.Run(context.Background(), "s1", "What is the square root of 144?", em)

	if outcome.Phase != PhaseFinalizing {
		t.Fatalf("expected forced finalize, got %s", outcome.Phase)
	}
	if script.callCount() != 3 {
		t.Errorf("expected exactly 3 evaluations for max_iterations=3, got %d", script.callCount())
	}
	if outcome.Iterations != 3 {
		t.Errorf("expected 3 iterations, got %d", outcome.Iterations)
	}

	// Later evaluations see earlier rounds.
	if len(script.prompts) < 2 || !strings.Contains(script.prompts[1], "Previous iteration results") {
		t.Error("second evaluation should include the history window")
	}
}

func TestRunClarifyIsTerminalFinal(t *testing.T) {
	em := &recordingEmitter{}
	ctrl := newController(&scriptLLM{script: []func() (string, error){
		respond(`{"decision": "clarify", "clarification_question": "Which table do you mean?"}`),
	}}, Options{})

	outcome := ctrl.Run(context.Background(), "s1", "fix it", em)

	if outcome.Phase != PhaseClarifying {
		t.Fatalf("expected clarifying outcome, got %s", outcome.Phase)
	}
	finals := em.byType(protocol.EventFinal)
	if len(finals) != 1 {
		t.Fatalf("clarify should emit exactly one final event, got %d", len(finals))
	}
	p := finals[0].Payload.(protocol.FinalPayload)
	if p.Function != "clarify" {
		t.Errorf("clarify final must be tagged, got function %q", p.Function)
	}
	if !strings.Contains(p.Text, "Which table") {
		t.Errorf("clarify final must carry the question: %q", p.Text)
	}
}

func TestRunCancellationFails(t *testing.T) {
	em := &recordingEmitter{}
	ctrl := newController(&scriptLLM{}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := ctrl.Run(ctx, "s1", "anything", em)
	if outcome.Phase != PhaseFailed {
		t.Fatalf("cancelled run must fail, got %s", outcome.Phase)
	}
	if len(em.byType(protocol.EventFinal)) != 0 {
		t.Error("cancelled run must not emit a final event")
	}
	if len(em.byType(protocol.EventError)) != 1 {
		t.Error("cancelled run emits one terminal error event")
	}
}
