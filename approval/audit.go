package approval

import (
	"context"
	"log/slog"
	"time"
)

// Event is one transition in an approval request's lifecycle: requested,
// approved, denied or expired.
type Event struct {
	Kind      string
	RequestID string
	Request   Request
	At        time.Time
}

// Auditor fans approval events out to the configured sinks. Every method is
// nil-safe so wiring stays optional.
type Auditor struct {
	JSONL *JSONLSink
	Store *DecisionLog
	Log   *slog.Logger
}

func NewAuditor(jsonl *JSONLSink, store *DecisionLog, log *slog.Logger) *Auditor {
	if log == nil {
		log = slog.Default()
	}
	return &Auditor{JSONL: jsonl, Store: store, Log: log}
}

// Record writes the event to all sinks. Sink failures are logged and
// swallowed: auditing must never block or fail an approval.
func (a *Auditor) Record(ctx context.Context, e Event) {
	if a == nil {
		return
	}
	if a.JSONL != nil {
		if err := a.JSONL.Emit(ctx, e); err != nil {
			a.Log.Warn("approval_audit_jsonl_error", "error", err.Error())
		}
	}
	if a.Store != nil {
		if err := a.Store.Record(ctx, e); err != nil {
			a.Log.Warn("approval_audit_store_error", "error", err.Error())
		}
	}
}

// Close releases sink resources.
func (a *Auditor) Close() {
	if a == nil {
		return
	}
	if a.JSONL != nil {
		_ = a.JSONL.Close()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
}
