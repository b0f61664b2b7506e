package approval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// DecisionLog is a durable record of approval request lifecycles in SQLite.
// The in-memory registry remains the source of truth for pendency; this log
// exists for after-the-fact review of what the assistant asked for and what
// the user decided.
type DecisionLog struct {
	dsn string

	mu sync.Mutex
	db *sql.DB
}

func NewDecisionLog(dsn string) (*DecisionLog, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("missing sqlite dsn")
	}
	l := &DecisionLog{dsn: dsn}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

// Record upserts the row for the event's request id. A "requested" event
// inserts; terminal events stamp the status and resolution time.
func (l *DecisionLog) Record(ctx context.Context, e Event) error {
	if l == nil {
		return fmt.Errorf("nil decision log")
	}
	if err := l.ensureOpen(); err != nil {
		return err
	}

	id := strings.TrimSpace(e.RequestID)
	if id == "" {
		return fmt.Errorf("missing request id")
	}
	at := e.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	if e.Kind == "requested" {
		paramsJSON, _ := json.Marshal(e.Request.Action.Params)
		_, err := l.db.ExecContext(ctx, `
INSERT INTO approval_log (
  id, action_type, params_json, response_text, query, status, created_at_unix
) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING
`, id, string(e.Request.Action.Type), string(paramsJSON),
			strings.TrimSpace(e.Request.ResponseText), strings.TrimSpace(e.Request.Query),
			"pending", at.Unix())
		return err
	}

	_, err := l.db.ExecContext(ctx, `
UPDATE approval_log
SET status = ?, resolved_at_unix = ?
WHERE id = ? AND status = 'pending'
`, e.Kind, at.Unix(), id)
	return err
}

// Entry is one row of the decision log.
type Entry struct {
	ID         string
	ActionType string
	Params     map[string]any
	Query      string
	Status     string
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

// Recent returns the newest entries, capped at limit.
func (l *DecisionLog) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if l == nil {
		return nil, fmt.Errorf("nil decision log")
	}
	if err := l.ensureOpen(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := l.db.QueryContext(ctx, `
SELECT id, action_type, params_json, query, status, created_at_unix, resolved_at_unix
FROM approval_log
ORDER BY created_at_unix DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e              Entry
			paramsJSON     string
			createdAtUnix  int64
			resolvedAtUnix sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.ActionType, &paramsJSON, &e.Query, &e.Status, &createdAtUnix, &resolvedAtUnix); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
		if resolvedAtUnix.Valid {
			t := time.Unix(resolvedAtUnix.Int64, 0).UTC()
			e.ResolvedAt = &t
		}
		_ = json.Unmarshal([]byte(paramsJSON), &e.Params)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *DecisionLog) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

func (l *DecisionLog) open() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db != nil {
		return nil
	}
	db, err := sql.Open("sqlite", l.dsn)
	if err != nil {
		return err
	}
	l.db = db
	return l.migrate()
}

func (l *DecisionLog) ensureOpen() error {
	if l.db != nil {
		return nil
	}
	return l.open()
}

func (l *DecisionLog) migrate() error {
	if l.db == nil {
		return fmt.Errorf("sqlite db is not open")
	}
	_, err := l.db.Exec(`
CREATE TABLE IF NOT EXISTS approval_log (
  id TEXT PRIMARY KEY,
  action_type TEXT,
  params_json TEXT,
  response_text TEXT,
  query TEXT,
  status TEXT NOT NULL,
  created_at_unix INTEGER NOT NULL,
  resolved_at_unix INTEGER
);
CREATE INDEX IF NOT EXISTS idx_approval_log_status ON approval_log(status);
`)
	return err
}
