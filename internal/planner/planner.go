// Package planner classifies a query and selects the worker subset for a
// dispatch round. Classification is a fixed keyword/intent table so that
// identical input always produces identical selection; everything
// model-driven happens later, in the evaluator.
package planner

import (
	"fmt"
	"regexp"
	"strings"

	"quorum/internal/logging"
	"quorum/internal/worker"
)

// Category is the recognized query type.
type Category string

const (
	CategoryFileSearch  Category = "file_search"
	CategorySQL         Category = "sql_query"
	CategoryData        Category = "data_processing"
	CategoryDerivation  Category = "mathematical_derivation"
	CategoryComputation Category = "computation"
	CategoryShell       Category = "shell_command"
	CategoryDownload    Category = "file_download"
	CategoryResearch    Category = "research"
	CategoryNotes       Category = "note_taking"
	CategoryGeneral     Category = "general_query"
)

// Plan is the planner's output for one round.
type Plan struct {
	Category  Category
	WorkerIDs []string
	Rationale string
}

// Planner selects workers from a fixed category table.
type Planner struct{}

// New creates a planner.
func New() *Planner {
	return &Planner{}
}

var (
	urlRe      = regexp.MustCompile(`https?://[^\s]+`)
	backtickRe = regexp.MustCompile("`[^`]+`")
)

var fileSearchPhrases = []string{
	"find files", "find all files", "search for files", "files on my computer",
	"files on my machine", "files related to", "search my computer",
	"look for files", "locate files", "where are", "list files", "show files",
	"what files", "files containing", "containing the word",
}

var shellWords = []string{
	"grep", "find ", "ls ", "cat ", "chmod", "mkdir", "pip install",
	"npm install", "apt-get", "brew install",
}

// Plan classifies the query and returns the worker subset with rationale.
// Context carries the evaluator's loop guidance and is classified together
// with the query, so guidance like "Execute: `ls -la`" reroutes the next
// round to the shell worker. The returned set is never empty: the general
// worker is the floor.
func (p *Planner) Plan(query, context string) Plan {
	message := query
	if context != "" {
		message = query + "\n" + context
	}
	lower := strings.ToLower(message)

	plan := p.classify(message, lower)

	logging.Planner("Classified %q as %s -> %v", firstLine(query), plan.Category, plan.WorkerIDs)
	return plan
}

func (p *Planner) classify(query, lower string) Plan {
	hasURL := urlRe.MatchString(query)
	hasBacktick := backtickRe.MatchString(query)

	// File search on the user's machine.
	for _, phrase := range fileSearchPhrases {
		if strings.Contains(lower, phrase) {
			return Plan{
				Category:  CategoryFileSearch,
				WorkerIDs: []string{worker.IDShell},
				Rationale: "File search query - only the shell executor is needed, with find/grep",
			}
		}
	}

	// Explicit SQL.
	if containsAny(lower, "sql", "select ", "create table", "database") {
		return Plan{
			Category:  CategorySQL,
			WorkerIDs: []string{worker.IDSQL},
			Rationale: "SQL operation requested - only the SQL agent is needed",
		}
	}

	// Data processing.
	if containsAny(lower, "dataset", "csv", "xlsx", "statistics", "correlation") ||
		(containsAny(lower, "data") && containsAny(lower, "analyze", "analysis", "process")) {
		return Plan{
			Category:  CategoryData,
			WorkerIDs: []string{worker.IDCode, worker.IDSQL, worker.IDData},
			Rationale: "Data task - coding agent for analysis, SQL and data agents for storage and schema",
		}
	}

	// Complex derivation.
	if containsAny(lower, "derive", "proof", "theorem", "equation") {
		return Plan{
			Category:  CategoryDerivation,
			WorkerIDs: []string{worker.IDMath, worker.IDCode},
			Rationale: "Mathematical derivation - math agent for theory, coding agent for verification",
		}
	}

	// Plain computation. Both code and math run so the evaluator can
	// cross-check exact results.
	if containsAny(lower, "calculate", "compute", "square root", "sqrt") {
		return Plan{
			Category:  CategoryComputation,
			WorkerIDs: []string{worker.IDCode, worker.IDMath},
			Rationale: "Computation - coding agent executes it, math agent cross-checks",
		}
	}

	// Shell commands.
	if hasBacktick || containsAny(lower, shellWords...) {
		return Plan{
			Category:  CategoryShell,
			WorkerIDs: []string{worker.IDShell},
			Rationale: "Shell command - only the shell executor is needed",
		}
	}

	// URL download.
	if hasURL && containsAny(lower, "download", "fetch", "save") {
		return Plan{
			Category:  CategoryDownload,
			WorkerIDs: []string{worker.IDFileFetch},
			Rationale: "URL download - only the file manager is needed",
		}
	}

	// Research.
	if hasURL || containsAny(lower, "research", "paper", "study", "literature", "citation") {
		return Plan{
			Category:  CategoryResearch,
			WorkerIDs: []string{worker.IDResearch, worker.IDGeneral},
			Rationale: "Research query - research agent gathers sources, general agent for synthesis",
		}
	}

	// Note taking.
	if containsAny(lower, "take notes", "document this", "summarize findings") {
		return Plan{
			Category:  CategoryNotes,
			WorkerIDs: []string{worker.IDNotes},
			Rationale: "Note-taking request - only the notes agent is needed",
		}
	}

	return Plan{
		Category:  CategoryGeneral,
		WorkerIDs: []string{worker.IDGeneral},
		Rationale: "General query - starting with the general agent, more can be added on loop",
	}
}

// Describe renders the plan for the progress narration event.
func (pl Plan) Describe() string {
	return fmt.Sprintf("Identified as %s. %s. Workers: %s",
		strings.ReplaceAll(string(pl.Category), "_", " "),
		pl.Rationale,
		strings.Join(pl.WorkerIDs, ", "))
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
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
