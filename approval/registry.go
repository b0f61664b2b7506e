// Package approval implements the human-in-the-loop gate for assistant
// actions: a registry of pending requests, a prompt presenter contract and
// the workflow that awaits the user's decision or a timeout.
package approval

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/donghwi-dev/portfolio-agent/action"
)

type Status string

const (
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusExpired  Status = "expired"
)

// Request captures one action awaiting approval, with the response text that
// proposed it and the originating user query for the audit trail.
type Request struct {
	Action       action.Action
	ResponseText string
	Query        string
}

// Pending is a read-only snapshot of a registry entry.
type Pending struct {
	ID        string
	Request   Request
	CreatedAt time.Time
}

type pendingEntry struct {
	id        string
	req       Request
	createdAt time.Time

	// settled exactly once via Resolve; buffered so the resolver never
	// blocks on an abandoned waiter.
	decision chan Status
}

// Registry holds pending approval requests keyed by id for the lifetime of
// the process. All mutation paths (Create, Resolve, SweepExpired) are
// serialized by the mutex.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*pendingEntry

	log *slog.Logger
	now func() time.Time
}

func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		entries: make(map[string]*pendingEntry),
		log:     log,
		now:     time.Now,
	}
}

// Create stores a new pending entry and returns its id together with the
// channel that receives the eventual decision. Always succeeds.
func (r *Registry) Create(req Request) (string, <-chan Status) {
	id := "act_" + randHex(12)
	entry := &pendingEntry{
		id:        id,
		req:       req,
		createdAt: r.now().UTC(),
		decision:  make(chan Status, 1),
	}

	r.mu.Lock()
	r.entries[id] = entry
	r.mu.Unlock()

	r.log.Debug("approval_created", "id", id, "action_type", string(req.Action.Type))
	return id, entry.decision
}

// Resolve completes the pending entry with the given status and removes it.
// A decision for an unknown or already-resolved id is a recoverable no-op:
// it is logged and reported as false, never an error.
func (r *Registry) Resolve(id string, st Status) bool {
	switch st {
	case StatusApproved, StatusDenied, StatusExpired:
	default:
		r.log.Error("approval_invalid_status", "id", id, "status", string(st))
		return false
	}

	r.mu.Lock()
	entry, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok {
		r.log.Warn("approval_unknown_id", "id", id, "status", string(st))
		return false
	}

	entry.decision <- st
	r.log.Info("approval_resolved", "id", id, "status", string(st))
	return true
}

// SweepExpired resolves every entry older than maxAge as expired and returns
// how many were swept. Running it when nothing qualifies mutates nothing.
func (r *Registry) SweepExpired(maxAge time.Duration) int {
	cutoff := r.now().UTC().Add(-maxAge)

	r.mu.Lock()
	var stale []*pendingEntry
	for id, entry := range r.entries {
		if entry.createdAt.Before(cutoff) {
			stale = append(stale, entry)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, entry := range stale {
		entry.decision <- StatusExpired
		r.log.Warn("approval_swept", "id", entry.id, "age", r.now().UTC().Sub(entry.createdAt).String())
	}
	return len(stale)
}

const (
	defaultSweepInterval = 5 * time.Minute
	defaultSweepMaxAge   = 5 * time.Minute
)

// StartSweeper runs the defensive background sweep until ctx is canceled.
// It is a safety net for waiters that leaked past the per-request timeout.
func (r *Registry) StartSweeper(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if maxAge <= 0 {
		maxAge = defaultSweepMaxAge
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.SweepExpired(maxAge); n > 0 {
					r.log.Info("approval_sweep", "expired", n)
				}
			}
		}
	}()
}

// Len reports how many requests are currently pending.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Snapshot returns the pending entry for id, if present.
func (r *Registry) Snapshot(id string) (Pending, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	if !ok {
		return Pending{}, false
	}
	return Pending{ID: entry.id, Request: entry.req, CreatedAt: entry.createdAt}, true
}

func randHex(nbytes int) string {
	if nbytes <= 0 {
		nbytes = 12
	}
	b := make([]byte, nbytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
