package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rl1809/coffee-order/internal/core/saga"

	_ "modernc.org/sqlite"
)

// sagaLogSchema is append-only: one row per transition. The latest row of a
// saga is its current state.
const sagaLogSchema = `
CREATE TABLE IF NOT EXISTS saga_logs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    saga_id         TEXT        NOT NULL,
    status          TEXT        NOT NULL,
    current_step    TEXT        NOT NULL DEFAULT '',
    payload         TEXT,
    error_messages  TEXT        NOT NULL DEFAULT '[]',
    trace_id        TEXT        NOT NULL DEFAULT '',
    span_id         TEXT        NOT NULL DEFAULT '',
    updated_at      TEXT        NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_saga_logs_saga_id ON saga_logs(saga_id, id);
CREATE INDEX IF NOT EXISTS idx_saga_logs_trace_id ON saga_logs(trace_id);
`

const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

type SagaLogRepository struct {
	db *sql.DB
}

// OpenSagaLog opens (or creates) the SQLite file at path in WAL mode,
// creating its directory if needed.
func OpenSagaLog(path string) (*SagaLogRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: create directory for %q: %w", path, err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sagaLogSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &SagaLogRepository{db: db}, nil
}

func (r *SagaLogRepository) Close() error {
	return r.db.Close()
}

func (r *SagaLogRepository) Save(ctx context.Context, entry *saga.LogEntry) error {
	errs := entry.Errors
	if errs == nil {
		errs = []string{}
	}
	errJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("sqlite: encode errors: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO saga_logs
			(saga_id, status, current_step, payload, error_messages, trace_id, span_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.SagaID,
		string(entry.Status),
		entry.CurrentStep,
		nullableString(entry.Payload),
		string(errJSON),
		entry.TraceID,
		entry.SpanID,
		entry.UpdatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save saga log for %q: %w", entry.SagaID, err)
	}
	return nil
}

// History returns every recorded transition of a saga, oldest first.
func (r *SagaLogRepository) History(ctx context.Context, sagaID string) ([]*saga.LogEntry, error) {
	return r.query(ctx, `
		SELECT saga_id, status, current_step, COALESCE(payload, ''), error_messages, trace_id, span_id, updated_at
		FROM saga_logs WHERE saga_id = ? ORDER BY id`, sagaID)
}

func (r *SagaLogRepository) ListStalled(ctx context.Context, status saga.Status, before time.Time) ([]*saga.LogEntry, error) {
	return r.query(ctx, `
		SELECT l.saga_id, l.status, l.current_step, COALESCE(l.payload, ''), l.error_messages, l.trace_id, l.span_id, l.updated_at
		FROM saga_logs l
		JOIN (SELECT saga_id, MAX(id) AS id FROM saga_logs GROUP BY saga_id) latest ON latest.id = l.id
		WHERE l.status = ? AND l.updated_at < ?
		ORDER BY l.id`,
		string(status), before.UTC().Format(sqliteTimeLayout))
}

func (r *SagaLogRepository) query(ctx context.Context, q string, args ...any) ([]*saga.LogEntry, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query saga logs: %w", err)
	}
	defer rows.Close()

	var out []*saga.LogEntry
	for rows.Next() {
		var (
			entry     saga.LogEntry
			status    string
			errJSON   string
			updatedAt string
		)
		if err := rows.Scan(&entry.SagaID, &status, &entry.CurrentStep, &entry.Payload, &errJSON,
			&entry.TraceID, &entry.SpanID, &updatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan saga log: %w", err)
		}
		entry.Status = saga.Status(status)
		if err := json.Unmarshal([]byte(errJSON), &entry.Errors); err != nil {
			return nil, fmt.Errorf("sqlite: decode errors: %w", err)
		}
		if len(entry.Errors) == 0 {
			entry.Errors = nil
		}
		if entry.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: parse time %q: %w", updatedAt, err)
		}
		out = append(out, &entry)
	}
	return out, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
