package sandbox

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLRunner executes structured queries against the session's sqlite
// scratch database. Queries from the SQL and data workers run here so the
// engine never touches a production store.
type SQLRunner struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// NewSQLRunner creates or opens the scratch database under dataDir.
func NewSQLRunner(dataDir string) (*SQLRunner, error) {
	dbPath := filepath.Join(dataDir, "scratch.db")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &SQLRunner{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection.
func (r *SQLRunner) Close() error {
	return r.db.Close()
}

// Query executes one SQL statement and renders the outcome as text.
// SELECT-like statements return a column header plus rows; other
// statements report the affected row count.
func (r *SQLRunner) Query(ctx context.Context, query string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return "", fmt.Errorf("empty query")
	}

	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH") || strings.HasPrefix(upper, "PRAGMA") {
		return r.queryRows(ctx, trimmed)
	}

	res, err := r.db.ExecContext(ctx, trimmed)
	if err != nil {
		return "", fmt.Errorf("exec failed: %w", err)
	}
	affected, _ := res.RowsAffected()
	return fmt.Sprintf("OK (%d rows affected)", affected), nil
}

// Schema returns the CREATE statements of all user tables, for the data
// worker's schema inspection.
func (r *SQLRunner) Schema(ctx context.Context) (string, error) {
	return r.Query(ctx, "SELECT name, sql FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'")
}

func (r *SQLRunner) queryRows(ctx context.Context, query string) (string, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("failed to read columns: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(cols, " | "))
	sb.WriteString("\n")

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	count := 0
	const maxRows = 200
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return "", fmt.Errorf("scan failed: %w", err)
		}
		fields := make([]string, len(cols))
		for i, v := range values {
			switch t := v.(type) {
			case nil:
				fields[i] = "NULL"
			case []byte:
				fields[i] = string(t)
			default:
				fields[i] = fmt.Sprintf("%v", t)
			}
		}
		sb.WriteString(strings.Join(fields, " | "))
		sb.WriteString("\n")
		count++
		if count >= maxRows {
			sb.WriteString(fmt.Sprintf("... (truncated at %d rows)\n", maxRows))
			break
		}
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("row iteration failed: %w", err)
	}

	if count == 0 {
		sb.WriteString("(no rows)\n")
	}
	return sb.String(), nil
}
