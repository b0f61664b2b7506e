// Package session keeps per-visitor conversation history in memory. Chat
// history is deliberately ephemeral and never persisted; idle sessions are
// swept by the manager.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/donghwi-dev/portfolio-agent/internal/strutil"
)

const (
	// Identical consecutive messages from one sender within this window are
	// dropped; retry-happy clients double-submit.
	dedupeWindow = time.Second

	summaryClipRunes   = 200
	backendContextSize = 5
)

type Message struct {
	Sender   string         `json:"sender"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	At       time.Time      `json:"at"`
}

type Session struct {
	ID string

	mu          sync.Mutex
	messages    []Message
	currentPage string
	context     map[string]any
	lastActive  time.Time

	now func() time.Time
}

func newSession(now func() time.Time) *Session {
	s := &Session{
		ID:      "sess_" + randHex(12),
		context: make(map[string]any),
		now:     now,
	}
	s.lastActive = s.now()
	return s
}

// AddMessage appends a message unless it duplicates the previous one from
// the same sender within the dedupe window. Reports whether it was recorded.
func (s *Session) AddMessage(sender, content string, metadata map[string]any) bool {
	sender = strings.TrimSpace(sender)
	content = strings.TrimSpace(content)
	if content == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.lastActive = now
	if n := len(s.messages); n > 0 {
		last := s.messages[n-1]
		if last.Sender == sender && last.Content == content && now.Sub(last.At) < dedupeWindow {
			return false
		}
	}
	s.messages = append(s.messages, Message{
		Sender:   sender,
		Content:  content,
		Metadata: metadata,
		At:       now,
	})
	return true
}

// History returns up to limit most recent messages, oldest first. A limit of
// zero or less returns everything.
func (s *Session) History(limit int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// SetContext merges partial values into the session context. The "page" key
// additionally tracks the visitor's current page.
func (s *Session) SetContext(partial map[string]any) {
	if len(partial) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastActive = s.now()
	for k, v := range partial {
		s.context[k] = v
		if k == "page" {
			if page, ok := v.(string); ok {
				s.currentPage = page
			}
		}
	}
}

// SetPage records the visitor's current page, called before navigation.
func (s *Session) SetPage(page string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = s.now()
	s.currentPage = page
	s.context["page"] = page
}

func (s *Session) CurrentPage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPage
}

// Summary renders the last maxMessages messages as one-line entries with
// content clipped, for inclusion in upstream context payloads.
func (s *Session) Summary(maxMessages int) string {
	if maxMessages <= 0 {
		maxMessages = backendContextSize
	}
	var b strings.Builder
	for _, m := range s.History(maxMessages) {
		fmt.Fprintf(&b, "%s: %s\n", m.Sender, strutil.ClipRunes(m.Content, summaryClipRunes))
	}
	return strings.TrimSpace(b.String())
}

// BackendContext builds the context payload sent alongside upstream queries:
// recent history, the current page and a clipped summary.
func (s *Session) BackendContext() map[string]any {
	recent := s.History(backendContextSize)
	history := make([]map[string]any, 0, len(recent))
	for _, m := range recent {
		history = append(history, map[string]any{
			"sender":  m.Sender,
			"content": strutil.ClipRunes(m.Content, summaryClipRunes),
		})
	}

	s.mu.Lock()
	page := s.currentPage
	s.mu.Unlock()

	ctx := map[string]any{
		"session_id": s.ID,
		"history":    history,
	}
	if page != "" {
		ctx["current_page"] = page
	}
	if summary := s.Summary(backendContextSize); summary != "" {
		ctx["summary"] = summary
	}
	return ctx
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActive)
}

// Manager owns all live sessions.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	now func() time.Time
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

func (m *Manager) Create() *Session {
	s := newSession(m.clock())
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get returns the session for id, or nil when unknown.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[strings.TrimSpace(id)]
}

// GetOrCreate resolves id to an existing session, creating a fresh one for
// blank or unknown ids. Unknown ids are common after daemon restarts.
func (m *Manager) GetOrCreate(id string) *Session {
	if s := m.Get(id); s != nil {
		return s
	}
	return m.Create()
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// SweepIdle drops sessions idle longer than maxIdle and returns the count.
func (m *Manager) SweepIdle(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	now := m.clock()()

	m.mu.Lock()
	var stale []string
	for id, s := range m.sessions {
		if s.idleSince(now) > maxIdle {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	return len(stale)
}

func (m *Manager) clock() func() time.Time {
	if m.now != nil {
		return m.now
	}
	return time.Now
}

func randHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
