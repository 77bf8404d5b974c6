package worker

import (
	"context"
	"fmt"
	"time"

	"quorum/internal/types"
	"quorum/internal/worker/sandbox"
)

const researchSystemPrompt = `You are a research assistant. Compile the relevant
information for the user's question into a concise, sourced summary.`

// ResearchWorker gathers information. Queries carrying a URL fetch and
// summarize that page; otherwise the LLM compiles what it knows.
type ResearchWorker struct {
	llm     types.LLMClient
	fetcher *sandbox.Fetcher
}

// NewResearchWorker creates a research worker.
func NewResearchWorker(llm types.LLMClient, fetcher *sandbox.Fetcher) *ResearchWorker {
	return &ResearchWorker{llm: llm, fetcher: fetcher}
}

func (w *ResearchWorker) ID() string          { return IDResearch }
func (w *ResearchWorker) DisplayName() string { return "Research Agent" }

func (w *ResearchWorker) Process(ctx context.Context, task types.Task) types.WorkerResult {
	started := time.Now()

	if url := extractURL(task.Query); url != "" && w.fetcher != nil {
		page, err := w.fetcher.FetchPage(ctx, url)
		if err != nil {
			return failure(w.ID(), w.DisplayName(), err, started)
		}

		answer := fmt.Sprintf("Fetched %s\nTitle: %s\n\n%s", page.URL, page.Title, page.Text)
		if w.llm != nil {
			summary, err := w.llm.CompleteWithSystem(ctx, researchSystemPrompt,
				fmt.Sprintf("Question: %s\n\nPage content from %s:\n%s", task.Query, page.URL, page.Text))
			if err == nil {
				answer = fmt.Sprintf("Source: %s (%s)\n\n%s", page.Title, page.URL, summary)
			}
		}
		return result(w.ID(), w.DisplayName(), answer, page.URL, 0.8, started)
	}

	if w.llm == nil {
		return result(w.ID(), w.DisplayName(),
			"No URL to fetch and no LLM configured for open research.",
			"", 0.1, started)
	}

	prompt := task.Query
	if task.Context != "" {
		prompt += "\n\nAdditional context:\n" + task.Context
	}
	answer, err := w.llm.CompleteWithSystem(ctx, researchSystemPrompt, prompt)
	if err != nil {
		return failure(w.ID(), w.DisplayName(), err, started)
	}
	return result(w.ID(), w.DisplayName(), answer, "", 0.7, started)
}
