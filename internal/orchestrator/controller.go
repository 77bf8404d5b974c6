// Package orchestrator runs the bounded plan/dispatch/evaluate loop for a
// single query and streams progress events while it works.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quorum/internal/dispatch"
	"quorum/internal/evaluator"
	"quorum/internal/logging"
	"quorum/internal/notes"
	"quorum/internal/planner"
	"quorum/internal/protocol"
	"quorum/internal/types"
	"quorum/internal/worker"
)

// Phase is the controller's current position in the state machine.
type Phase string

const (
	PhasePlanning    Phase = "planning"
	PhaseDispatching Phase = "dispatching"
	PhaseEvaluating  Phase = "evaluating"
	PhaseLooping     Phase = "looping"
	PhaseFinalizing  Phase = "finalizing"
	PhaseClarifying  Phase = "clarifying"
	PhaseFailed      Phase = "failed"
)

// Emitter is the event sink the controller narrates to. Satisfied by
// *protocol.Stream.
type Emitter interface {
	Emit(typ protocol.EventType, payload any, requiresAck bool) uint64
}

// State is one run's loop state, owned exclusively by its controller.
// No two concurrent runs exist for the same session.
type State struct {
	Iteration     int
	MaxIterations int

	// History holds prior rounds' results, oldest first, capped at the
	// configured window.
	History [][]types.WorkerResult

	// Phase is the current state machine position.
	Phase Phase
}

// Outcome summarizes how a run ended.
type Outcome struct {
	Phase      Phase
	Answer     string
	Question   string
	Err        error
	Iterations int
}

// Controller drives one query through the loop. One run at a time; the
// caller serializes.
type Controller struct {
	planner    *planner.Planner
	registry   *worker.Registry
	dispatcher *dispatch.Dispatcher
	evaluator  *evaluator.Service
	sink       notes.Sink

	maxIterations int
	historyWindow int
}

// Options bound the loop.
type Options struct {
	MaxIterations int
	HistoryWindow int
}

// New creates a controller over the given components.
func New(p *planner.Planner, reg *worker.Registry, d *dispatch.Dispatcher, e *evaluator.Service, sink notes.Sink, opts Options) *Controller {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 10
	}
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 3
	}
	if sink == nil {
		sink = notes.NopSink{}
	}
	return &Controller{
		planner:       p,
		registry:      reg,
		dispatcher:    d,
		evaluator:     e,
		sink:          sink,
		maxIterations: opts.MaxIterations,
		historyWindow: opts.HistoryWindow,
	}
}

// Run executes the loop for one query, emitting events as it goes. It
// returns the outcome; the terminal event (final or error) has already
// been emitted by the time it returns. Exactly one terminal event per
// run, always last.
func (c *Controller) Run(ctx context.Context, sessionID, query string, em Emitter) Outcome {
	log := logging.Get(logging.CategoryController)
	log.Info("Run started: session=%s query=%q max_iterations=%d", sessionID, firstLine(query), c.maxIterations)

	em.Emit(protocol.EventInfo, protocol.InfoPayload{Stage: "submitted"}, false)

	st := &State{MaxIterations: c.maxIterations, Phase: PhasePlanning}
	taskContext := ""

	for {
		if err := ctx.Err(); err != nil {
			return c.fail(st, em, fmt.Errorf("run cancelled: %w", err))
		}

		// PLANNING
		st.Phase = PhasePlanning
		plan := c.planner.Plan(query, taskContext)
		em.Emit(protocol.EventAction, protocol.ActionPayload{
			Function: "processing",
			Text:     plan.Describe(),
		}, false)
		em.Emit(protocol.EventDebug, protocol.DebugPayload{
			Component: "planner",
			Prompt:    fmt.Sprintf("category=%s workers=%s rationale=%s", plan.Category, strings.Join(plan.WorkerIDs, ","), plan.Rationale),
		}, false)

		// DISPATCHING
		st.Phase = PhaseDispatching
		task := types.Task{
			Query:         query,
			Context:       taskContext,
			Iteration:     st.Iteration,
			MaxIterations: st.MaxIterations,
		}
		results := c.dispatcher.Dispatch(ctx, c.registry.Lookup(plan.WorkerIDs), task)

		if err := ctx.Err(); err != nil {
			return c.fail(st, em, fmt.Errorf("run cancelled: %w", err))
		}

		for _, r := range results {
			payload := protocol.AgentResultPayload{
				AgentName: r.DisplayName,
				Text:      r.Answer,
			}
			if r.HasConfidence {
				conf := r.Confidence
				payload.Confidence = &conf
			}
			em.Emit(protocol.EventAgentResult, payload, false)
		}

		// EVALUATING
		st.Phase = PhaseEvaluating
		em.Emit(protocol.EventDebug, protocol.DebugPayload{
			Component: "evaluator",
			Prompt:    c.evaluator.BuildPrompt(query, results, st.History, st.Iteration, st.MaxIterations),
		}, false)

		decision := c.evaluator.Evaluate(ctx, query, results, st.History, st.Iteration, st.MaxIterations)

		c.record(sessionID, query, st.Iteration, plan, results, decision)

		switch decision.Kind {
		case types.DecisionFinalize:
			st.Phase = PhaseFinalizing
			em.Emit(protocol.EventFinal, protocol.FinalPayload{
				Function: "answer",
				Text:     decision.FinalAnswer,
			}, true)
			log.Info("Run finalized after %d iteration(s)", st.Iteration+1)
			return Outcome{Phase: PhaseFinalizing, Answer: decision.FinalAnswer, Iterations: st.Iteration + 1}

		case types.DecisionClarify:
			st.Phase = PhaseClarifying
			em.Emit(protocol.EventFinal, protocol.FinalPayload{
				Function: "clarify",
				Text:     decision.Question,
			}, true)
			log.Info("Run ended asking for clarification after %d iteration(s)", st.Iteration+1)
			return Outcome{Phase: PhaseClarifying, Question: decision.Question, Iterations: st.Iteration + 1}

		case types.DecisionLoop:
			if st.Iteration+1 >= st.MaxIterations {
				// Out of budget: select the best available result
				// verbatim, labeled. Never fabricate a new answer.
				answer := forcedAnswer(results, st.History)
				st.Phase = PhaseFinalizing
				em.Emit(protocol.EventFinal, protocol.FinalPayload{
					Function: "answer",
					Text:     answer,
				}, true)
				log.Info("Run force-finalized at iteration limit (%d)", st.MaxIterations)
				return Outcome{Phase: PhaseFinalizing, Answer: answer, Iterations: st.Iteration + 1}
			}

			// LOOPING
			st.Phase = PhaseLooping
			st.History = append(st.History, results)
			if len(st.History) > c.historyWindow {
				st.History = st.History[len(st.History)-c.historyWindow:]
			}
			taskContext = appendGuidance(taskContext, st.Iteration, decision.Guidance)
			st.Iteration++
			log.Info("Looping to iteration %d: %s", st.Iteration, firstLine(decision.Guidance))

		case types.DecisionFailed:
			return c.fail(st, em, fmt.Errorf("evaluation failed: %w", decision.Err))

		default:
			return c.fail(st, em, fmt.Errorf("unexpected decision kind %q", decision.Kind))
		}
	}
}

// fail transitions to FAILED and emits the single terminal error event.
func (c *Controller) fail(st *State, em Emitter, err error) Outcome {
	st.Phase = PhaseFailed
	logging.Controller("Run failed at iteration %d: %v", st.Iteration, err)
	em.Emit(protocol.EventError, protocol.ErrorPayload{Message: err.Error()}, true)
	return Outcome{Phase: PhaseFailed, Err: err, Iterations: st.Iteration + 1}
}

// record sends the round summary to the notes sink without blocking the
// loop on a slow write.
func (c *Controller) record(sessionID, query string, iteration int, plan planner.Plan, results []types.WorkerResult, decision types.Decision) {
	sum := notes.RoundSummary{
		SessionID: sessionID,
		Query:     query,
		Iteration: iteration,
		Plan:      plan.Describe(),
		Results:   results,
		Decision:  decision.Kind,
		Reasoning: decision.Reasoning,
		At:        time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.sink.Record(ctx, sum)
	}()
}

// forcedAnswer picks the highest-confidence successful result across the
// run, preferring the current round on ties, and labels it as
// limit-forced. The selected answer itself is untouched.
func forcedAnswer(current []types.WorkerResult, history [][]types.WorkerResult) string {
	best, ok := bestResult(current)
	if !ok {
		for i := len(history) - 1; i >= 0; i-- {
			if best, ok = bestResult(history[i]); ok {
				break
			}
		}
	}
	if !ok {
		return "No usable result was produced before the iteration limit was reached."
	}
	return fmt.Sprintf("%s\n\n(Best available answer from %s; reached iteration limit.)", best.Answer, best.DisplayName)
}

func bestResult(results []types.WorkerResult) (types.WorkerResult, bool) {
	var best types.WorkerResult
	found := false
	for _, r := range results {
		if r.Failed() {
			continue
		}
		if !found || r.Confidence > best.Confidence {
			best = r
			found = true
		}
	}
	return best, found
}

// appendGuidance folds the evaluator's loop guidance into the next
// iteration's task context.
func appendGuidance(existing string, iteration int, guidance string) string {
	if strings.TrimSpace(guidance) == "" {
		return existing
	}
	line := fmt.Sprintf("Guidance from iteration %d: %s", iteration+1, guidance)
	if existing == "" {
		return line
	}
	return existing + "\n" + line
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > 80 {
		s = s[:80]
	}
	return s
}
