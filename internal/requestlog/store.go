package requestlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Entry represents a persistent request log event emitted by logging
// plugins, or by one internal/engine.LogObject emission of the routing
// engine (JSONPath, CacheStatus, RetryAttempt, HookSpanID).
type Entry struct {
	TraceID          string
	Stage            string
	Model            string
	Provider         string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	ErrorMessage     string
	JSONPath         string
	CacheStatus      string
	RetryAttempt     int
	HookSpanID       string
	CreatedAt        time.Time
}

// Query filters a List call.
type Query struct {
	Limit    int
	Offset   int
	Stage    string
	Model    string
	Provider string
	Since    *time.Time
}

// MaintenanceQuery filters a Delete call. Before is required: deletion is
// always bounded by age, never a blanket wipe.
type MaintenanceQuery struct {
	Before   *time.Time
	Stage    string
	Model    string
	Provider string
}

// Result is one page of Entry rows plus the total count matching the Query
// (ignoring Limit/Offset), so callers can paginate.
type Result struct {
	Data  []Entry
	Total int
}

// Writer persists request log entries.
type Writer interface {
	Write(ctx context.Context, entry Entry) error
}

// Reader lists persisted request log entries.
type Reader interface {
	List(ctx context.Context, q Query) (Result, error)
}

// Maintainer deletes persisted request log entries older than a cutoff.
type Maintainer interface {
	Delete(ctx context.Context, q MaintenanceQuery) (int, error)
}

// NoopWriter ignores all log writes.
type NoopWriter struct{}

func (NoopWriter) Write(_ context.Context, _ Entry) error { return nil }

// SQLWriter persists entries to SQLite/Postgres, and implements Reader and
// Maintainer against the same table.
type SQLWriter struct {
	db      *sql.DB
	dialect string
}

func NewSQLiteWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "ferrogw-requests.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite request log writer: %w", err)
	}
	w := &SQLWriter{db: db, dialect: "sqlite"}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func NewPostgresWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres request log writer: %w", err)
	}
	w := &SQLWriter{db: db, dialect: "postgres"}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *SQLWriter) init() error {
	if err := w.db.Ping(); err != nil {
		return fmt.Errorf("ping %s request log writer: %w", w.dialect, err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS request_logs (
	id INTEGER PRIMARY KEY,
	trace_id TEXT,
	stage TEXT NOT NULL,
	model TEXT,
	provider TEXT,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	error_message TEXT,
	json_path TEXT,
	cache_status TEXT,
	retry_attempt INTEGER NOT NULL DEFAULT 0,
	hook_span_id TEXT,
	created_at TIMESTAMP NOT NULL
);`

	if w.dialect == "postgres" {
		ddl = `
CREATE TABLE IF NOT EXISTS request_logs (
	id BIGSERIAL PRIMARY KEY,
	trace_id TEXT,
	stage TEXT NOT NULL,
	model TEXT,
	provider TEXT,
	prompt_tokens INTEGER NOT NULL,
	completion_tokens INTEGER NOT NULL,
	total_tokens INTEGER NOT NULL,
	error_message TEXT,
	json_path TEXT,
	cache_status TEXT,
	retry_attempt INTEGER NOT NULL DEFAULT 0,
	hook_span_id TEXT,
	created_at TIMESTAMPTZ NOT NULL
);`
	}

	if _, err := w.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize request log schema: %w", err)
	}
	return nil
}

func (w *SQLWriter) Write(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO request_logs(trace_id, stage, model, provider, prompt_tokens, completion_tokens, total_tokens, error_message, json_path, cache_status, retry_attempt, hook_span_id, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if w.dialect == "postgres" {
		query = `INSERT INTO request_logs(trace_id, stage, model, provider, prompt_tokens, completion_tokens, total_tokens, error_message, json_path, cache_status, retry_attempt, hook_span_id, created_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	}

	_, err := w.db.ExecContext(ctx, query,
		entry.TraceID,
		entry.Stage,
		entry.Model,
		entry.Provider,
		entry.PromptTokens,
		entry.CompletionTokens,
		entry.TotalTokens,
		entry.ErrorMessage,
		entry.JSONPath,
		entry.CacheStatus,
		entry.RetryAttempt,
		entry.HookSpanID,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("write request log: %w", err)
	}
	return nil
}

// filterClause builds the shared WHERE clause for List/Delete/logsStats:
// stage/model/provider equality filters plus an optional since/before
// bound, using the dialect's placeholder style.
func (w *SQLWriter) filterClause(stage, model, provider string, since *time.Time, sinceOp string, startArg int) (string, []any) {
	var clauses []string
	var args []any
	n := startArg

	placeholder := func() string {
		if w.dialect == "postgres" {
			n++
			return fmt.Sprintf("$%d", n)
		}
		return "?"
	}

	if stage != "" {
		clauses = append(clauses, "stage = "+placeholder())
		args = append(args, stage)
	}
	if model != "" {
		clauses = append(clauses, "model = "+placeholder())
		args = append(args, model)
	}
	if provider != "" {
		clauses = append(clauses, "provider = "+placeholder())
		args = append(args, provider)
	}
	if since != nil {
		clauses = append(clauses, "created_at "+sinceOp+" "+placeholder())
		args = append(args, *since)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// List implements Reader: it returns a page of entries newest-first plus
// the total count matching q (ignoring Limit/Offset).
func (w *SQLWriter) List(ctx context.Context, q Query) (Result, error) {
	where, args := w.filterClause(q.Stage, q.Model, q.Provider, q.Since, ">=", 0)

	countQuery := "SELECT COUNT(*) FROM request_logs" + where
	var total int
	if err := w.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return Result{}, fmt.Errorf("count request logs: %w", err)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	selectQuery := `SELECT trace_id, stage, model, provider, prompt_tokens, completion_tokens, total_tokens, error_message, json_path, cache_status, retry_attempt, hook_span_id, created_at FROM request_logs` + where + " ORDER BY created_at DESC, id DESC"
	limitArgs := append([]any{}, args...)
	if w.dialect == "postgres" {
		selectQuery += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	} else {
		selectQuery += " LIMIT ? OFFSET ?"
	}
	limitArgs = append(limitArgs, limit, offset)

	rows, err := w.db.QueryContext(ctx, selectQuery, limitArgs...)
	if err != nil {
		return Result{}, fmt.Errorf("list request logs: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.TraceID, &e.Stage, &e.Model, &e.Provider, &e.PromptTokens, &e.CompletionTokens, &e.TotalTokens, &e.ErrorMessage, &e.JSONPath, &e.CacheStatus, &e.RetryAttempt, &e.HookSpanID, &e.CreatedAt); err != nil {
			return Result{}, fmt.Errorf("scan request log row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate request log rows: %w", err)
	}

	return Result{Data: out, Total: total}, nil
}

// Delete implements Maintainer: it removes every row older than q.Before
// (plus any stage/model/provider filters) and returns the count removed.
func (w *SQLWriter) Delete(ctx context.Context, q MaintenanceQuery) (int, error) {
	if q.Before == nil {
		return 0, fmt.Errorf("delete request logs: Before is required")
	}

	where, args := w.filterClause(q.Stage, q.Model, q.Provider, q.Before, "<", 0)

	result, err := w.db.ExecContext(ctx, "DELETE FROM request_logs"+where, args...)
	if err != nil {
		return 0, fmt.Errorf("delete request logs: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete request logs: %w", err)
	}
	return int(affected), nil
}

func (w *SQLWriter) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}
