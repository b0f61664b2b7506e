package approval

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/donghwi-dev/portfolio-agent/action"
)

var (
	// ErrRejected is returned when the user explicitly denies the action.
	ErrRejected = errors.New("action rejected by user")
	// ErrExpired is returned when no decision arrived before the prompt
	// timeout or the background sweep. Callers treat it like ErrRejected
	// ("do not execute") but may surface different copy.
	ErrExpired = errors.New("approval request expired")
)

// Decision is the successful outcome of RequestApproval.
type Decision struct {
	Approved   bool           `json:"approved"`
	ActionType action.Type    `json:"action_type"`
	Params     map[string]any `json:"action_params,omitempty"`
}

const defaultPromptTimeout = 30 * time.Second

// Workflow is the single entry point for gating an action behind approval:
// it registers the request, presents the prompt and waits for the decision.
type Workflow struct {
	Registry  *Registry
	Presenter Presenter

	// Timeout auto-cancels a prompt the user never acted on. Distinct from
	// the registry sweep, which catches entries this timer missed.
	Timeout time.Duration

	Audit *Auditor
	Log   *slog.Logger

	after func(time.Duration) <-chan time.Time
}

func NewWorkflow(reg *Registry, pres Presenter, log *slog.Logger) *Workflow {
	if pres == nil {
		pres = NopPresenter{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Workflow{
		Registry:  reg,
		Presenter: pres,
		Timeout:   defaultPromptTimeout,
		Log:       log,
		after:     time.After,
	}
}

// RequestApproval blocks until the user decides, the prompt times out, or
// ctx is canceled. On approval it returns the decision; denial and expiry
// come back as ErrRejected and ErrExpired.
func (w *Workflow) RequestApproval(ctx context.Context, req Request) (Decision, error) {
	id, decisionCh := w.Registry.Create(req)
	w.Audit.Record(ctx, Event{Kind: "requested", RequestID: id, Request: req, At: time.Now().UTC()})

	w.Presenter.Present(ctx, Prompt{
		ID:           id,
		Info:         action.Describe(req.Action),
		ResponseText: req.ResponseText,
	})

	after := w.after
	if after == nil {
		after = time.After
	}
	timeout := w.Timeout
	if timeout <= 0 {
		timeout = defaultPromptTimeout
	}

	var st Status
	select {
	case st = <-decisionCh:

	case <-after(timeout):
		// Whichever of resolve/timeout/sweep fires first wins; a lost race
		// here just means the channel already holds the real decision.
		w.Registry.Resolve(id, StatusExpired)
		st = <-decisionCh

	case <-ctx.Done():
		w.Registry.Resolve(id, StatusExpired)
		st = <-decisionCh
		// ctx is already dead; detach so the terminal event still lands.
		bg := context.Background()
		w.Presenter.Dismiss(bg, id)
		w.Audit.Record(bg, Event{Kind: string(st), RequestID: id, Request: req, At: time.Now().UTC()})
		return Decision{}, ctx.Err()
	}

	w.Presenter.Dismiss(ctx, id)
	w.Audit.Record(ctx, Event{Kind: string(st), RequestID: id, Request: req, At: time.Now().UTC()})

	switch st {
	case StatusApproved:
		return Decision{
			Approved:   true,
			ActionType: req.Action.Type,
			Params:     req.Action.Params,
		}, nil
	case StatusDenied:
		return Decision{}, ErrRejected
	default:
		return Decision{}, ErrExpired
	}
}
