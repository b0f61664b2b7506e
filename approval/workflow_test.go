package approval

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/donghwi-dev/portfolio-agent/action"
)

type recordingPresenter struct {
	mu        sync.Mutex
	presented []Prompt
	dismissed []string
}

func (p *recordingPresenter) Present(_ context.Context, prompt Prompt) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.presented = append(p.presented, prompt)
}

func (p *recordingPresenter) Dismiss(_ context.Context, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dismissed = append(p.dismissed, id)
}

func (p *recordingPresenter) lastPrompt() (Prompt, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.presented) == 0 {
		return Prompt{}, false
	}
	return p.presented[len(p.presented)-1], true
}

// newTestWorkflow returns a workflow whose prompt timer is user-controlled.
func newTestWorkflow(pres Presenter) (*Workflow, chan time.Time) {
	w := NewWorkflow(NewRegistry(nil), pres, nil)
	timeoutCh := make(chan time.Time)
	w.after = func(time.Duration) <-chan time.Time { return timeoutCh }
	return w, timeoutCh
}

func TestRequestApproval_Approved(t *testing.T) {
	pres := &recordingPresenter{}
	w, _ := newTestWorkflow(pres)

	type result struct {
		dec Decision
		err error
	}
	done := make(chan result, 1)
	go func() {
		dec, err := w.RequestApproval(context.Background(), navigateRequest("blog"))
		done <- result{dec, err}
	}()

	// Wait for the prompt to appear, then click approve.
	var prompt Prompt
	deadline := time.After(2 * time.Second)
	for {
		if p, ok := pres.lastPrompt(); ok {
			prompt = p
			break
		}
		select {
		case <-deadline:
			t.Fatal("prompt never presented")
		case <-time.After(time.Millisecond):
		}
	}

	if !w.Registry.Resolve(prompt.ID, StatusApproved) {
		t.Fatal("Resolve failed for presented prompt")
	}

	res := <-done
	if res.err != nil {
		t.Fatalf("unexpected error: %v", res.err)
	}
	if !res.dec.Approved || res.dec.ActionType != action.TypeNavigate {
		t.Fatalf("unexpected decision: %#v", res.dec)
	}
	if page, _ := res.dec.Params["page"].(string); page != "blog" {
		t.Fatalf("unexpected params: %#v", res.dec.Params)
	}
	if w.Registry.Len() != 0 {
		t.Fatalf("registry should be empty, Len() = %d", w.Registry.Len())
	}
}

func TestRequestApproval_Rejected(t *testing.T) {
	pres := &recordingPresenter{}
	w, _ := newTestWorkflow(pres)

	done := make(chan error, 1)
	go func() {
		_, err := w.RequestApproval(context.Background(), navigateRequest("resume"))
		done <- err
	}()

	var prompt Prompt
	deadline := time.After(2 * time.Second)
	for {
		if p, ok := pres.lastPrompt(); ok {
			prompt = p
			break
		}
		select {
		case <-deadline:
			t.Fatal("prompt never presented")
		case <-time.After(time.Millisecond):
		}
	}

	w.Registry.Resolve(prompt.ID, StatusDenied)

	if err := <-done; !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
	if w.Registry.Len() != 0 {
		t.Fatal("registry entry leaked after rejection")
	}
}

func TestRequestApproval_Timeout(t *testing.T) {
	pres := &recordingPresenter{}
	w, timeoutCh := newTestWorkflow(pres)

	done := make(chan error, 1)
	go func() {
		_, err := w.RequestApproval(context.Background(), navigateRequest("blog"))
		done <- err
	}()

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := pres.lastPrompt(); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("prompt never presented")
		case <-time.After(time.Millisecond):
		}
	}

	// Fire the 30s auto-cancel.
	timeoutCh <- time.Time{}

	if err := <-done; !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
	if w.Registry.Len() != 0 {
		t.Fatal("registry entry leaked after timeout")
	}
}

func TestRequestApproval_ContextCanceled(t *testing.T) {
	pres := &recordingPresenter{}
	w, _ := newTestWorkflow(pres)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := w.RequestApproval(ctx, navigateRequest("blog"))
		done <- err
	}()

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := pres.lastPrompt(); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("prompt never presented")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if w.Registry.Len() != 0 {
		t.Fatal("registry entry leaked after cancellation")
	}
}

// Cancellation mid-wait must still leave a terminal event in the audit
// trail, not just the "requested" one.
func TestRequestApproval_ContextCanceledAuditsExpiry(t *testing.T) {
	pres := &recordingPresenter{}
	w, _ := newTestWorkflow(pres)

	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := NewJSONLSink(path, 0)
	if err != nil {
		t.Fatalf("NewJSONLSink: %v", err)
	}
	w.Audit = NewAuditor(sink, nil, nil)
	defer w.Audit.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := w.RequestApproval(ctx, navigateRequest("blog"))
		done <- err
	}()

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := pres.lastPrompt(); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("prompt never presented")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit file: %v", err)
	}
	var kinds []string
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		var ev struct {
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("bad audit line %q: %v", line, err)
		}
		kinds = append(kinds, ev.Kind)
	}
	if len(kinds) != 2 || kinds[0] != "requested" || kinds[1] != "expired" {
		t.Fatalf("audit kinds = %v, want [requested expired]", kinds)
	}
}

func TestRequestApproval_SweepWhileWaiting(t *testing.T) {
	pres := &recordingPresenter{}
	w, _ := newTestWorkflow(pres)

	done := make(chan error, 1)
	go func() {
		_, err := w.RequestApproval(context.Background(), navigateRequest("blog"))
		done <- err
	}()

	deadline := time.After(2 * time.Second)
	for {
		if w.Registry.Len() == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("entry never registered")
		case <-time.After(time.Millisecond):
		}
	}

	// The defensive sweep fires before the prompt timer.
	if n := w.Registry.SweepExpired(0); n != 1 {
		t.Fatalf("SweepExpired = %d, want 1", n)
	}

	if err := <-done; !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
}

// Back-to-back requests: each keeps its own pendency even though only the
// newest prompt stays visible; resolving one settles only that one, and all
// entries drain eventually.
func TestRequestApproval_ConcurrentRequestsResolveIndependently(t *testing.T) {
	pres := &recordingPresenter{}
	w, timeoutCh := newTestWorkflow(pres)

	errs := make(chan error, 2)
	go func() {
		_, err := w.RequestApproval(context.Background(), navigateRequest("portfolio"))
		errs <- err
	}()
	go func() {
		_, err := w.RequestApproval(context.Background(), navigateRequest("blog"))
		errs <- err
	}()

	deadline := time.After(2 * time.Second)
	for {
		if w.Registry.Len() == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("both entries never registered")
		case <-time.After(time.Millisecond):
		}
	}

	prompt, _ := pres.lastPrompt()
	w.Registry.Resolve(prompt.ID, StatusApproved)

	first := <-errs

	// Expire the superseded request.
	timeoutCh <- time.Time{}
	second := <-errs

	approvals, rejections := 0, 0
	for _, err := range []error{first, second} {
		switch {
		case err == nil:
			approvals++
		case errors.Is(err, ErrExpired):
			rejections++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if approvals != 1 || rejections != 1 {
		t.Fatalf("approvals=%d rejections=%d, want 1/1", approvals, rejections)
	}
	if w.Registry.Len() != 0 {
		t.Fatalf("registry should drain, Len() = %d", w.Registry.Len())
	}
}
