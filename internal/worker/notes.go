package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"quorum/internal/types"
)

const notesSystemPrompt = `You are a note taker. Condense the findings below into an
organized note: what was asked, what was found, open questions.`

// NotesWorker documents the run's findings so far. Its output feeds the
// audit sink alongside the controller's own round summaries.
type NotesWorker struct {
	llm types.LLMClient
}

// NewNotesWorker creates a notes worker.
func NewNotesWorker(llm types.LLMClient) *NotesWorker {
	return &NotesWorker{llm: llm}
}

func (w *NotesWorker) ID() string          { return IDNotes }
func (w *NotesWorker) DisplayName() string { return "Notes Agent" }

func (w *NotesWorker) Process(ctx context.Context, task types.Task) types.WorkerResult {
	started := time.Now()

	if task.Context == "" {
		return result(w.ID(), w.DisplayName(),
			fmt.Sprintf("Noted query: %q. No prior findings to document yet.", task.Query),
			"", 0.9, started)
	}

	if w.llm == nil {
		var sb strings.Builder
		sb.WriteString("Query: " + task.Query + "\n")
		sb.WriteString("Findings so far:\n" + task.Context)
		return result(w.ID(), w.DisplayName(), sb.String(), "", 0.9, started)
	}

	note, err := w.llm.CompleteWithSystem(ctx, notesSystemPrompt,
		fmt.Sprintf("Query: %s\n\nFindings:\n%s", task.Query, task.Context))
	if err != nil {
		return failure(w.ID(), w.DisplayName(), err, started)
	}
	return result(w.ID(), w.DisplayName(), note, "", 0.8, started)
}
