// Package sandbox provides the sandboxed executors the workers delegate
// their side effects to: an interpreted Go runner, a sqlite query runner,
// a shell runner and an HTTP fetcher. Workers never perform I/O themselves;
// they translate executor output into normalized results.
package sandbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// CodeRunner executes Go snippets with the Yaegi interpreter instead of
// compiling them. Interpretation avoids go-build hangs and dependency
// resolution entirely; only whitelisted stdlib packages may be imported.
type CodeRunner struct {
	allowedPackages map[string]bool
}

// NewCodeRunner creates a Yaegi-based code executor.
func NewCodeRunner() *CodeRunner {
	return &CodeRunner{
		allowedPackages: map[string]bool{
			"strings":       true,
			"strconv":       true,
			"fmt":           true,
			"math":          true,
			"math/big":      true,
			"regexp":        true,
			"encoding/json": true,
			"time":          true,
			"sort":          true,
			"bytes":         true,
			"unicode":       true,

			// EXPLICITLY BLOCKED (unsafe packages):
			// "os" - filesystem access
			// "os/exec" - command execution
			// "net", "net/http" - network access
			// "syscall", "unsafe"
		},
	}
}

// Run executes Go code in a sandboxed interpreter. The code must define
// a function: func Run() (string, error)
func (c *CodeRunner) Run(ctx context.Context, code string) (string, error) {
	if err := c.validateImports(code); err != nil {
		return "", fmt.Errorf("invalid imports: %w", err)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return "", fmt.Errorf("failed to load stdlib: %w", err)
	}

	fullCode := c.wrapCode(code)

	if _, err := i.Eval(fullCode); err != nil {
		return "", fmt.Errorf("code evaluation failed: %w", err)
	}

	run, err := i.Eval("main.Run")
	if err != nil {
		return "", fmt.Errorf("Run function not found: %w", err)
	}

	runFunc, ok := run.Interface().(func() (string, error))
	if !ok {
		return "", fmt.Errorf("Run has incorrect signature (expected: func() (string, error))")
	}

	resultCh := make(chan string, 1)
	errCh := make(chan error, 1)

	go func() {
		result, err := runFunc()
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- result
	}()

	select {
	case result := <-resultCh:
		return result, nil
	case err := <-errCh:
		return "", err
	case <-ctx.Done():
		return "", fmt.Errorf("code execution timed out: %w", ctx.Err())
	}
}

// validateImports checks that the code only imports allowed packages.
func (c *CodeRunner) validateImports(code string) error {
	var imports []string
	inImportBlock := false
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "import (") {
			inImportBlock = true
			continue
		}
		if inImportBlock && strings.HasPrefix(trimmed, ")") {
			inImportBlock = false
			continue
		}

		if inImportBlock {
			imports = append(imports, strings.Trim(trimmed, `"`))
		} else if strings.HasPrefix(trimmed, "import ") {
			pkg := strings.TrimPrefix(trimmed, "import ")
			imports = append(imports, strings.Trim(pkg, `"`))
		}
	}

	var forbidden []string
	for _, pkg := range imports {
		if pkg == "" {
			continue
		}
		if !c.allowedPackages[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}

	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports: %v", forbidden)
	}
	return nil
}

// wrapCode wraps the snippet in a main package if needed.
func (c *CodeRunner) wrapCode(code string) string {
	if strings.Contains(code, "package main") {
		return code
	}
	return "package main\n\n" + code
}
