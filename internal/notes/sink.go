// Package notes persists a per-round audit trail of each orchestration
// run: the plan, every worker's outcome, and the evaluator's verdict.
package notes

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"quorum/internal/logging"
	"quorum/internal/types"
)

// RoundSummary is one iteration's audit record.
type RoundSummary struct {
	SessionID string
	Query     string
	Iteration int
	Plan      string
	Results   []types.WorkerResult
	Decision  types.DecisionKind
	Reasoning string
	At        time.Time
}

// Sink receives round summaries. Recording is fire-and-forget from the
// controller's point of view; a failed write never affects the run.
type Sink interface {
	Record(ctx context.Context, s RoundSummary)
	Close() error
}

// SQLiteSink stores round summaries in a local sqlite database.
type SQLiteSink struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS rounds (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	query      TEXT NOT NULL,
	iteration  INTEGER NOT NULL,
	plan       TEXT,
	results    TEXT,
	decision   TEXT,
	reasoning  TEXT,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_rounds_session ON rounds(session_id);
`

// NewSQLiteSink opens (creating if needed) the audit database under dataDir.
func NewSQLiteSink(dataDir string) (*SQLiteSink, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "notes.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open notes database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize notes schema: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// resultRow is the persisted shape of one worker outcome.
type resultRow struct {
	WorkerID   string  `json:"worker_id"`
	Confidence float64 `json:"confidence"`
	Answer     string  `json:"answer"`
	Err        string  `json:"err,omitempty"`
	ElapsedMS  int64   `json:"elapsed_ms"`
}

// Record writes one round summary. Errors are logged only.
func (s *SQLiteSink) Record(ctx context.Context, sum RoundSummary) {
	rows := make([]resultRow, 0, len(sum.Results))
	for _, r := range sum.Results {
		rows = append(rows, resultRow{
			WorkerID:   r.WorkerID,
			Confidence: r.Confidence,
			Answer:     r.Answer,
			Err:        string(r.Err),
			ElapsedMS:  r.Elapsed.Milliseconds(),
		})
	}
	data, err := json.Marshal(rows)
	if err != nil {
		logging.Get(logging.CategoryNotes).Warn("Failed to encode results: %v", err)
		return
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rounds (session_id, query, iteration, plan, results, decision, reasoning) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sum.SessionID, sum.Query, sum.Iteration, sum.Plan, string(data), string(sum.Decision), sum.Reasoning)
	if err != nil {
		logging.Get(logging.CategoryNotes).Warn("Failed to record round: %v", err)
	}
}

// Recent returns the latest n summaries for a session, newest first.
func (s *SQLiteSink) Recent(ctx context.Context, sessionID string, n int) ([]RoundSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT query, iteration, plan, decision, reasoning, created_at FROM rounds WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		sessionID, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RoundSummary
	for rows.Next() {
		sum := RoundSummary{SessionID: sessionID}
		var decision, createdAt string
		if err := rows.Scan(&sum.Query, &sum.Iteration, &sum.Plan, &decision, &sum.Reasoning, &createdAt); err != nil {
			return nil, err
		}
		sum.Decision = types.DecisionKind(decision)
		if at, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
			sum.At = at
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// NopSink discards summaries. Used in tests and when auditing is disabled.
type NopSink struct{}

func (NopSink) Record(context.Context, RoundSummary) {}
func (NopSink) Close() error                         { return nil }
