package chat

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/donghwi-dev/portfolio-agent/action"
	"github.com/donghwi-dev/portfolio-agent/approval"
	"github.com/donghwi-dev/portfolio-agent/backend"
	"github.com/donghwi-dev/portfolio-agent/fallback"
	"github.com/donghwi-dev/portfolio-agent/session"
)

type recordingFrontend struct {
	mu        sync.Mutex
	navigated []string
	scrolled  []string
	opened    []string
	failWith  error
}

func (f *recordingFrontend) Navigate(ctx context.Context, page string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.navigated = append(f.navigated, page)
	return nil
}

func (f *recordingFrontend) Scroll(ctx context.Context, element string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrolled = append(f.scrolled, element)
	return nil
}

func (f *recordingFrontend) Download(ctx context.Context, url, filename string) error {
	return nil
}

func (f *recordingFrontend) OpenLink(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, url)
	return nil
}

// decidingPresenter resolves every presented prompt with a fixed status, as
// if the user clicked instantly.
type decidingPresenter struct {
	registry *approval.Registry
	status   approval.Status

	mu        sync.Mutex
	presented int
}

func (p *decidingPresenter) Present(ctx context.Context, prompt approval.Prompt) {
	p.mu.Lock()
	p.presented++
	p.mu.Unlock()
	go p.registry.Resolve(prompt.ID, p.status)
}

func (p *decidingPresenter) Dismiss(ctx context.Context, id string) {}

func (p *decidingPresenter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.presented
}

func instantFallback() *fallback.Responder {
	r := fallback.New()
	r.TokenDelay = 0
	r.TokenJitter = 0
	return r
}

func newTestOrchestrator(t *testing.T, status approval.Status) (*Orchestrator, *recordingFrontend, *decidingPresenter) {
	t.Helper()
	registry := approval.NewRegistry(nil)
	presenter := &decidingPresenter{registry: registry, status: status}
	workflow := approval.NewWorkflow(registry, presenter, nil)

	frontend := &recordingFrontend{}
	executor := action.NewExecutor(frontend, nil)
	executor.NavigateDelay = 0

	o := &Orchestrator{
		Fallback:  instantFallback(),
		Approvals: workflow,
		Executor:  executor,
		Sessions:  session.NewManager(),
	}
	return o, frontend, presenter
}

func TestProcess_FallbackApprovedNavigate(t *testing.T) {
	o, frontend, presenter := newTestOrchestrator(t, approval.StatusApproved)

	var chunks int
	result, err := o.Process(context.Background(), "", "포트폴리오를 보여줘", Hooks{
		OnChunk: func(chunk, cumulative string) { chunks++ },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chunks == 0 {
		t.Fatal("expected streamed chunks")
	}
	if len(result.Actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(result.Actions))
	}
	if presenter.count() != 1 {
		t.Fatalf("expected 1 prompt, got %d", presenter.count())
	}
	if len(frontend.navigated) != 1 || frontend.navigated[0] != "portfolio" {
		t.Fatalf("expected navigate to portfolio, got %v", frontend.navigated)
	}
}

func TestProcess_RejectedActionSkipsExecution(t *testing.T) {
	o, frontend, _ := newTestOrchestrator(t, approval.StatusDenied)

	var notices []string
	_, err := o.Process(context.Background(), "", "이력서 좀 볼까", Hooks{
		OnNotice: func(n string) { notices = append(notices, n) },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frontend.navigated) != 0 {
		t.Fatalf("rejected action must not execute, got %v", frontend.navigated)
	}
	if len(notices) != 1 || !strings.Contains(notices[0], "취소") {
		t.Fatalf("expected rejection notice, got %v", notices)
	}
}

func TestProcess_ExpiredActionIsSilent(t *testing.T) {
	o, frontend, _ := newTestOrchestrator(t, approval.StatusExpired)

	var notices []string
	_, err := o.Process(context.Background(), "", "블로그 보여줘", Hooks{
		OnNotice: func(n string) { notices = append(notices, n) },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frontend.navigated) != 0 {
		t.Fatalf("expired action must not execute, got %v", frontend.navigated)
	}
	if len(notices) != 0 {
		t.Fatalf("expired prompts disappear silently, got %v", notices)
	}
}

func TestProcess_UngatedActionSkipsWorkflow(t *testing.T) {
	o, frontend, presenter := newTestOrchestrator(t, approval.StatusDenied)
	// Replace the fallback with a backend that emits an ungated action.
	srv := fakeBackend(t, `{"type":"complete","content":"스크롤합니다","actions":[{"type":"scroll","params":{"element":"top"},"requires_approval":false}]}`)
	o.Backend = newBackendClient(srv)

	_, err := o.Process(context.Background(), "", "위로 올려줘", Hooks{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if presenter.count() != 0 {
		t.Fatalf("ungated action must not prompt, got %d prompts", presenter.count())
	}
	if len(frontend.scrolled) != 1 || frontend.scrolled[0] != "top" {
		t.Fatalf("expected scroll to execute, got %v", frontend.scrolled)
	}
}

func TestProcess_ActionFailureDoesNotBlockRest(t *testing.T) {
	o, frontend, _ := newTestOrchestrator(t, approval.StatusApproved)
	frontend.failWith = errors.New("frontend detached")
	srv := fakeBackend(t, `{"type":"complete","content":"이동합니다","actions":[{"type":"navigate","params":{"page":"resume"}},{"type":"external_link","params":{"url":"https://github.com/donghwi-dev"}}]}`)
	o.Backend = newBackendClient(srv)

	var notices []string
	_, err := o.Process(context.Background(), "", "이력서랑 깃허브", Hooks{
		OnNotice: func(n string) { notices = append(notices, n) },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Navigate failed, but the external link still ran.
	if len(frontend.opened) != 1 {
		t.Fatalf("second action should still run, got %v", frontend.opened)
	}
	if len(notices) != 1 || !strings.Contains(notices[0], "실패") {
		t.Fatalf("expected failure notice, got %v", notices)
	}
}

func TestProcess_BackendErrorDegradesToFallback(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, approval.StatusApproved)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/health" {
			io.WriteString(w, `{"status":"healthy"}`)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	o.Backend = newBackendClient(srv)

	result, err := o.Process(context.Background(), "", "안녕하세요", Hooks{})
	if err != nil {
		t.Fatalf("expected fallback to cover backend failure, got %v", err)
	}
	if result.Metadata["source"] != "fallback" {
		t.Fatalf("expected fallback result, got metadata %v", result.Metadata)
	}
}

func TestProcess_UnhealthyBackendUsesFallback(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, approval.StatusApproved)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"starting"}`)
	}))
	t.Cleanup(srv.Close)
	o.Backend = newBackendClient(srv)

	result, err := o.Process(context.Background(), "", "안녕", Hooks{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Metadata["source"] != "fallback" {
		t.Fatalf("expected fallback result, got metadata %v", result.Metadata)
	}
}

func TestProcess_RecordsHistory(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, approval.StatusApproved)
	sess := o.Sessions.Create()

	if _, err := o.Process(context.Background(), sess.ID, "포트폴리오 보여줘", Hooks{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	history := sess.History(0)
	if len(history) < 3 {
		t.Fatalf("expected user+assistant+system messages, got %d", len(history))
	}
	if history[0].Sender != "user" || history[1].Sender != "assistant" {
		t.Fatalf("unexpected history order: %+v", history)
	}
	last := history[len(history)-1]
	if last.Sender != "system" || !strings.Contains(last.Content, "승인") {
		t.Fatalf("expected approval system message, got %+v", last)
	}
	if sess.CurrentPage() != "portfolio" {
		t.Fatalf("expected session page updated, got %q", sess.CurrentPage())
	}
}

func TestProcess_EmptyQuery(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, approval.StatusApproved)
	if _, err := o.Process(context.Background(), "", "   ", Hooks{}); err == nil {
		t.Fatal("expected error for blank query")
	}
}

// fakeBackend serves a healthy health check, accepts any chat message and
// streams the given SSE payloads for its task.
func fakeBackend(t *testing.T, events ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/health":
			io.WriteString(w, `{"status":"healthy"}`)
		case r.URL.Path == "/api/agent/chat":
			io.WriteString(w, `{"task_id":"task_test"}`)
		case strings.HasPrefix(r.URL.Path, "/api/agent/chat/stream/"):
			w.Header().Set("Content-Type", "text/event-stream")
			for _, ev := range events {
				io.WriteString(w, "data: "+ev+"\n\n")
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newBackendClient(srv *httptest.Server) *backend.Client {
	c := backend.NewClient(srv.URL)
	c.HTTPClient = srv.Client()
	return c
}
