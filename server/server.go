// Package server exposes the daemon's HTTP surface: chat task submission,
// per-task SSE streams, approval decisions, the page registry and blog REST.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/donghwi-dev/portfolio-agent/action"
	"github.com/donghwi-dev/portfolio-agent/approval"
	"github.com/donghwi-dev/portfolio-agent/backend"
	"github.com/donghwi-dev/portfolio-agent/blog"
	"github.com/donghwi-dev/portfolio-agent/chat"
	"github.com/donghwi-dev/portfolio-agent/fallback"
	"github.com/donghwi-dev/portfolio-agent/session"
	"github.com/donghwi-dev/portfolio-agent/site"
)

const (
	defaultSweepInterval = 5 * time.Minute
	defaultPromptMaxAge  = 5 * time.Minute
	defaultSessionTTL    = time.Hour
)

type Config struct {
	Addr          string
	TaskTimeout   time.Duration
	SweepInterval time.Duration
	PromptMaxAge  time.Duration
	SessionTTL    time.Duration

	// NavigateDelay overrides the pre-navigation pause; zero keeps the
	// executor default, negative disables it.
	NavigateDelay time.Duration
}

type Server struct {
	cfg Config

	registry *approval.Registry
	audit    *approval.Auditor
	backend  *backend.Client
	fallback *fallback.Responder
	sessions *session.Manager
	tasks    *TaskStore
	posts    *blog.Store
	content  *site.Library

	log *slog.Logger
}

// Deps carries the wired components. Backend, Audit, Posts and Content may
// be nil; the matching surfaces degrade instead of failing.
type Deps struct {
	Registry *approval.Registry
	Audit    *approval.Auditor
	Backend  *backend.Client
	Fallback *fallback.Responder
	Sessions *session.Manager
	Posts    *blog.Store
	Content  *site.Library
	Log      *slog.Logger
}

func New(cfg Config, deps Deps) *Server {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.PromptMaxAge <= 0 {
		cfg.PromptMaxAge = defaultPromptMaxAge
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	if deps.Registry == nil {
		deps.Registry = approval.NewRegistry(log)
	}
	if deps.Fallback == nil {
		deps.Fallback = fallback.New()
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewManager()
	}
	return &Server{
		cfg:      cfg,
		registry: deps.Registry,
		audit:    deps.Audit,
		backend:  deps.Backend,
		fallback: deps.Fallback,
		sessions: deps.Sessions,
		tasks:    NewTaskStore(0),
		posts:    deps.Posts,
		content:  deps.Content,
		log:      log,
	}
}

// Start launches the background loops: the chat worker, the approval
// sweeper and the idle-session sweeper. It returns immediately.
func (s *Server) Start(ctx context.Context) {
	go s.workLoop(ctx)
	s.registry.StartSweeper(ctx, s.cfg.SweepInterval, s.cfg.PromptMaxAge)
	go s.sessionSweepLoop(ctx)
}

func (s *Server) Close() {
	s.tasks.Close()
	if s.audit != nil {
		s.audit.Close()
	}
}

func (s *Server) sessionSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.sessions.SweepIdle(s.cfg.SessionTTL); n > 0 {
				s.log.Info("sessions_swept", "count", n)
			}
		}
	}
}

// workLoop drains the task queue one task at a time. Chat turns within a
// task are already sequential; serializing tasks keeps approval prompts
// from two tasks from interleaving on one screen.
func (s *Server) workLoop(ctx context.Context) {
	for {
		t, ok := s.tasks.Next()
		if !ok {
			return
		}
		s.runTask(t)
	}
}

func (s *Server) runTask(t *chatTask) {
	defer t.cancel()
	defer t.closeEvents()

	s.tasks.Update(t.info.ID, func(info *TaskInfo) { info.Status = TaskRunning })
	t.publish(Event{Type: eventStatus, Data: map[string]any{"status": "thinking"}})

	pub := &taskPublisher{task: t}
	workflow := approval.NewWorkflow(s.registry, pub, s.log)
	workflow.Audit = s.audit
	executor := action.NewExecutor(pub, s.log)
	if s.cfg.NavigateDelay != 0 {
		executor.NavigateDelay = s.cfg.NavigateDelay
	}

	orch := &chat.Orchestrator{
		Backend:   s.backend,
		Fallback:  s.fallback,
		Approvals: workflow,
		Executor:  executor,
		Sessions:  s.sessions,
		Log:       s.log,
	}

	result, err := orch.Process(t.ctx, t.info.SessionID, t.info.Query, chat.Hooks{
		OnChunk: func(chunk, cumulative string) {
			t.publish(Event{Type: eventContent, Data: map[string]any{
				"chunk":      chunk,
				"cumulative": cumulative,
			}})
		},
		OnNotice: func(notice string) {
			t.publish(Event{Type: eventNotice, Data: map[string]any{"text": notice}})
		},
	})

	now := time.Now()
	if err != nil {
		s.log.Error("task_failed", "task_id", t.info.ID, "error", err.Error())
		t.publish(Event{Type: eventError, Data: map[string]any{"error": err.Error()}})
		s.tasks.Update(t.info.ID, func(info *TaskInfo) {
			info.Status = TaskFailed
			info.Error = err.Error()
			info.FinishedAt = &now
		})
		return
	}

	if len(result.Metadata) > 0 {
		t.publish(Event{Type: eventMetadata, Data: result.Metadata})
	}
	t.publish(Event{Type: eventComplete, Data: map[string]any{
		"text":       result.Text,
		"session_id": t.info.SessionID,
	}})
	s.tasks.Update(t.info.ID, func(info *TaskInfo) {
		info.Status = TaskDone
		info.FinishedAt = &now
	})
	if t.dropped > 0 {
		s.log.Warn("task_events_dropped", "task_id", t.info.ID, "dropped", t.dropped)
	}
}

// Handler builds the route table. Registered on the stdlib mux with method
// and wildcard patterns.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/chat/stream/{task_id}", s.handleChatStream)
	mux.HandleFunc("POST /api/approvals/{id}", s.handleApproval)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/pages", s.handlePages)
	mux.HandleFunc("GET /api/pages/{name}", s.handlePage)
	mux.HandleFunc("GET /api/blog/posts", s.handleBlogList)
	mux.HandleFunc("POST /api/blog/posts", s.handleBlogCreate)
	mux.HandleFunc("GET /api/blog/posts/{id}", s.handleBlogGet)
	mux.HandleFunc("PUT /api/blog/posts/{id}", s.handleBlogUpdate)
	mux.HandleFunc("DELETE /api/blog/posts/{id}", s.handleBlogDelete)
	return s.recoverMiddleware(mux)
}

// ListenAndServe blocks until ctx is canceled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	s.log.Info("server_listening", "addr", s.cfg.Addr)
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("handler_panic", "path", r.URL.Path, "panic", rec)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
