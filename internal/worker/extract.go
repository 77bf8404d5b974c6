package worker

import (
	"regexp"
	"strconv"
	"strings"
)

// Extraction helpers shared by the workers. The shell command patterns
// mirror how refinement guidance arrives from the evaluator: commands in
// backticks, after an Execute:/Run: keyword, or as a bare command line.

var (
	backtickRe = regexp.MustCompile("`([^`]+)`")
	execRe     = regexp.MustCompile(`(?i)(?:Execute|Run|Command):\s*(.+?)(?:\n|$)`)
	numberRe   = regexp.MustCompile(`\d+(?:\.\d+)?`)
	urlRe      = regexp.MustCompile(`https?://[^\s]+`)
	sqlRe      = regexp.MustCompile(`(?is)\b(SELECT|INSERT|UPDATE|DELETE|CREATE|DROP|ALTER|PRAGMA|WITH)\b.+`)
)

// knownCommands are prefixes that identify a bare line as a shell command.
var knownCommands = []string{
	"ls", "pwd", "grep", "find", "cat", "echo", "head", "tail", "wc",
	"curl", "wget", "git", "du", "df", "ps", "uname", "which", "date",
}

// extractShellCommand pulls the exact command out of a task, trying
// backticks first, then Execute:/Run: keywords, then bare command lines.
// Returns "" when no command is found.
func extractShellCommand(task string) string {
	if m := backtickRe.FindStringSubmatch(task); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := execRe.FindStringSubmatch(task); m != nil {
		return strings.TrimSpace(m[1])
	}
	for _, line := range strings.Split(task, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		first := strings.SplitN(line, " ", 2)[0]
		for _, cmd := range knownCommands {
			if first == cmd {
				return line
			}
		}
	}
	return ""
}

// extractSQL pulls a SQL statement out of the task, preferring fenced or
// backticked statements, then a keyword-anchored tail match.
func extractSQL(task string) string {
	if m := backtickRe.FindStringSubmatch(task); m != nil {
		candidate := strings.TrimSpace(m[1])
		if sqlRe.MatchString(candidate) {
			return candidate
		}
	}
	if m := sqlRe.FindString(task); m != "" {
		return strings.TrimSpace(strings.TrimSuffix(m, ";")) // tolerate trailing semicolon
	}
	return ""
}

// extractURL returns the first URL in the task, trimmed of trailing
// punctuation, or "".
func extractURL(task string) string {
	m := urlRe.FindString(task)
	return strings.TrimRight(m, ".,;:)")
}

// lastNumber returns the last number mentioned in the task. The original
// query convention puts the operand last ("square root of 144").
func lastNumber(task string) (float64, bool) {
	all := numberRe.FindAllString(task, -1)
	if len(all) == 0 {
		return 0, false
	}
	n, err := strconv.ParseFloat(all[len(all)-1], 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// wantsSquareRoot reports whether the task asks for a square root.
func wantsSquareRoot(task string) bool {
	lower := strings.ToLower(task)
	return strings.Contains(lower, "square root") || strings.Contains(lower, "sqrt")
}
