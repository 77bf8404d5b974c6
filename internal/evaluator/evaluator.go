// Package evaluator implements the chief reviewer: it shows the decision
// service the current round's results plus a bounded history window and
// parses a structured verdict - finalize, loop with guidance, or clarify.
//
// The evaluator never papers over a service failure: a malformed or
// unreachable response becomes a failed decision that terminates the run
// with an error event. Substituting a plausible-looking answer here would
// turn an infrastructure fault into silent misinformation.
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"quorum/internal/logging"
	"quorum/internal/types"
)

const systemPrompt = `You are the chief reviewer of a multi-agent answering engine.
Sub-agents have processed the user's query; you decide what happens next.

Assess the query and the agent responses, then respond in EXACTLY this JSON format:
{
  "decision": "finalize" or "loop" or "clarify",
  "final_answer": "the actual answer to the user's question (only if finalize)",
  "additional_guidance": "the SPECIFIC next action for the next iteration (only if loop)",
  "clarification_question": "the SPECIFIC question about the ambiguity (only if clarify)",
  "selected_agent": "the agent whose answer you used, or 'combined'",
  "reasoning": "a SPECIFIC explanation of this verdict for THIS query"
}

Rules:
- finalize when the results are sufficient and consistent.
- loop ONLY when you need one SPECIFIC additional thing; say exactly what.
- clarify ONLY when the query itself is ambiguous.
- Respond with the JSON object only, no markdown.`

// Service calls the decision service and parses its verdict.
type Service struct {
	llm types.LLMClient
}

// New creates an evaluator backed by the given decision service client.
func New(llm types.LLMClient) *Service {
	return &Service{llm: llm}
}

// decisionResponse is the decision service's wire format.
type decisionResponse struct {
	Decision              string `json:"decision"`
	FinalAnswer           string `json:"final_answer"`
	AdditionalGuidance    string `json:"additional_guidance"`
	ClarificationQuestion string `json:"clarification_question"`
	SelectedAgent         string `json:"selected_agent"`
	Reasoning             string `json:"reasoning"`
}

// Evaluate reviews the round and returns the verdict. current holds this
// round's results; history holds up to the window of prior rounds, oldest
// first. A service or parse failure returns Kind=DecisionFailed carrying
// the error - never a synthesized answer.
func (s *Service) Evaluate(ctx context.Context, query string, current []types.WorkerResult, history [][]types.WorkerResult, iteration, maxIterations int) types.Decision {
	log := logging.Get(logging.CategoryEvaluator)

	if s.llm == nil {
		return types.Decision{
			Kind: types.DecisionFailed,
			Err:  fmt.Errorf("no decision service configured"),
		}
	}

	prompt := s.BuildPrompt(query, current, history, iteration, maxIterations)

	raw, err := s.llm.CompleteWithSystem(ctx, systemPrompt, prompt)
	if err != nil {
		log.Error("Decision service unreachable: %v", err)
		return types.Decision{
			Kind: types.DecisionFailed,
			Err:  fmt.Errorf("decision service unreachable: %w", err),
		}
	}

	var resp decisionResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		log.Error("Malformed decision response: %v (raw: %.200s)", err, raw)
		return types.Decision{
			Kind: types.DecisionFailed,
			Err:  fmt.Errorf("malformed decision response: %w", err),
		}
	}

	decision := types.Decision{
		Reasoning:      resp.Reasoning,
		Guidance:       resp.AdditionalGuidance,
		Question:       resp.ClarificationQuestion,
		SelectedWorker: resp.SelectedAgent,
	}

	switch resp.Decision {
	case "finalize", "final":
		decision.Kind = types.DecisionFinalize
		decision.FinalAnswer = resp.FinalAnswer
		if decision.FinalAnswer == "" {
			return types.Decision{
				Kind: types.DecisionFailed,
				Err:  fmt.Errorf("finalize decision with empty final_answer"),
			}
		}
	case "loop":
		decision.Kind = types.DecisionLoop
	case "clarify":
		decision.Kind = types.DecisionClarify
		if decision.Question == "" {
			decision.Question = "Could you provide more details about your request?"
		}
	default:
		return types.Decision{
			Kind: types.DecisionFailed,
			Err:  fmt.Errorf("unknown decision %q", resp.Decision),
		}
	}

	log.Info("Decision: %s (selected: %s, iteration %d/%d)", decision.Kind, decision.SelectedWorker, iteration+1, maxIterations)
	return decision
}

// BuildPrompt assembles the review prompt. Exported so the controller can
// mirror the exact text into the debug event for observability.
func (s *Service) BuildPrompt(query string, current []types.WorkerResult, history [][]types.WorkerResult, iteration, maxIterations int) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "User Query: %s\n\n", query)
	fmt.Fprintf(&sb, "Current Iteration: %d of %d\n", iteration+1, maxIterations)
	fmt.Fprintf(&sb, "Remaining Loops: %d\n\n", maxIterations-iteration-1)

	if len(history) > 0 {
		sb.WriteString("Previous iteration results:\n")
		for i, round := range history {
			for _, r := range round {
				fmt.Fprintf(&sb, "- [round %d] %s: %s\n", i+1, r.DisplayName, digest(r, 200))
			}
		}
		sb.WriteString("\n")
	}

	if len(current) == 0 {
		sb.WriteString("No workers were selected this iteration.\n")
	} else {
		sb.WriteString("Agent responses from this iteration:\n")
		for _, r := range current {
			fmt.Fprintf(&sb, "\nAgent: %s\n", r.DisplayName)
			if r.HasConfidence {
				fmt.Fprintf(&sb, "Confidence: %.2f\n", r.Confidence)
			}
			if r.Failed() {
				fmt.Fprintf(&sb, "Error: %s\n", r.Err)
			}
			fmt.Fprintf(&sb, "Response: %s\n", digest(r, 500))
		}
	}

	sb.WriteString("\nBe SPECIFIC about THIS query. Only loop if you need one specific thing.")
	return sb.String()
}

// digest truncates a result's answer for prompt inclusion.
func digest(r types.WorkerResult, n int) string {
	answer := strings.TrimSpace(r.Answer)
	if len(answer) > n {
		return answer[:n] + "..."
	}
	return answer
}

// extractJSON tolerates models wrapping the object in markdown fences or
// prose by slicing from the first '{' to the last '}'.
func extractJSON(raw string) string {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return raw
	}
	return raw[start : end+1]
}
