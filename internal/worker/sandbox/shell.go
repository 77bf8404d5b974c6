package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ShellRunner executes shell commands through /bin/sh. It is disabled by
// default; the server only wires it when the operator opts in.
type ShellRunner struct {
	workdir string
}

// NewShellRunner creates a shell executor rooted at workdir.
func NewShellRunner(workdir string) *ShellRunner {
	return &ShellRunner{workdir: workdir}
}

// Run executes the command and returns combined stdout/stderr. A non-zero
// exit status is an error carrying the captured output.
func (s *ShellRunner) Run(ctx context.Context, command string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", fmt.Errorf("empty command")
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	if s.workdir != "" {
		cmd.Dir = s.workdir
	}

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	out := strings.TrimRight(buf.String(), "\n")
	if ctx.Err() != nil {
		return out, fmt.Errorf("command timed out: %w", ctx.Err())
	}
	if err != nil {
		return out, fmt.Errorf("command failed: %w (output: %s)", err, truncate(out, 500))
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
