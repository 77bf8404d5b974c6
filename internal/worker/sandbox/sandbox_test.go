package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestCodeRunnerExecutesSnippet(t *testing.T) {
	r := NewCodeRunner()
	out, err := r.Run(context.Background(), `import "fmt"

func Run() (string, error) {
	return fmt.Sprint(6 * 7), nil
}`)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out != "42" {
		t.Errorf("got %q", out)
	}
}

func TestCodeRunnerRejectsForbiddenImports(t *testing.T) {
	r := NewCodeRunner()
	_, err := r.Run(context.Background(), `import "os"

func Run() (string, error) {
	return os.Getenv("HOME"), nil
}`)
	if err == nil {
		t.Fatal("os import must be rejected")
	}
}

func TestCodeRunnerRequiresRunFunc(t *testing.T) {
	r := NewCodeRunner()
	_, err := r.Run(context.Background(), `func main() {}`)
	if err == nil {
		t.Fatal("snippets without func Run() (string, error) must be rejected")
	}
}

func TestSQLRunnerRoundTrip(t *testing.T) {
	r, err := NewSQLRunner(t.TempDir())
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer r.Close()

	ctx := context.Background()
	if _, err := r.Query(ctx, "CREATE TABLE users (id INTEGER, name TEXT)"); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := r.Query(ctx, "INSERT INTO users VALUES (1, 'ada')"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	out, err := r.Query(ctx, "SELECT name FROM users")
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if !strings.Contains(out, "ada") {
		t.Errorf("select output missing row: %q", out)
	}

	schema, err := r.Schema(ctx)
	if err != nil {
		t.Fatalf("schema failed: %v", err)
	}
	if !strings.Contains(schema, "users") {
		t.Errorf("schema missing table: %q", schema)
	}
}

func TestShellRunnerTimeout(t *testing.T) {
	r := NewShellRunner(t.TempDir())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx, "sleep 5")
	if err == nil {
		t.Fatal("expected a timeout error")
	}
}

func TestShellRunnerOutput(t *testing.T) {
	r := NewShellRunner(t.TempDir())
	out, err := r.Run(context.Background(), "echo hello")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if strings.TrimSpace(out) != "hello" {
		t.Errorf("got %q", out)
	}
}
