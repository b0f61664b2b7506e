package action

import (
	"context"
	"log/slog"
	"time"
)

// Frontend performs the concrete UI side effect of an approved action. The
// HTTP server implements it by emitting directives on the client's event
// stream; the browser does the DOM work.
type Frontend interface {
	Navigate(ctx context.Context, page string) error
	Scroll(ctx context.Context, element string) error
	Download(ctx context.Context, url, filename string) error
	OpenLink(ctx context.Context, url string) error
}

const defaultNavigateDelay = 1500 * time.Millisecond

// Executor dispatches actions to a Frontend.
type Executor struct {
	Frontend Frontend

	// NavigateDelay keeps the approval confirmation and response text on
	// screen before the page switches.
	NavigateDelay time.Duration

	// OnNavigate runs before the delayed page switch, so session context
	// reflects the destination immediately.
	OnNavigate func(page string)

	Log *slog.Logger

	after func(time.Duration) <-chan time.Time
}

func NewExecutor(frontend Frontend, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		Frontend:      frontend,
		NavigateDelay: defaultNavigateDelay,
		Log:           log,
		after:         time.After,
	}
}

// Execute performs one approved action. Missing required params and unknown
// action types are logged no-ops, never errors; only Frontend failures
// propagate.
func (e *Executor) Execute(ctx context.Context, a Action) error {
	if e == nil || e.Frontend == nil {
		return nil
	}
	switch a.Type {
	case TypeNavigate:
		page := a.StringParam("page")
		if page == "" {
			e.Log.Warn("action_missing_param", "type", a.Type, "param", "page")
			return nil
		}
		if e.OnNavigate != nil {
			e.OnNavigate(page)
		}
		if err := e.waitNavigateDelay(ctx); err != nil {
			return err
		}
		return e.Frontend.Navigate(ctx, page)

	case TypeScroll:
		element := a.StringParam("element")
		if element == "" {
			e.Log.Warn("action_missing_param", "type", a.Type, "param", "element")
			return nil
		}
		return e.Frontend.Scroll(ctx, element)

	case TypeDownload:
		url := a.StringParam("url")
		if url == "" {
			e.Log.Warn("action_missing_param", "type", a.Type, "param", "url")
			return nil
		}
		filename := a.StringParam("filename")
		if filename == "" {
			filename = "download"
		}
		return e.Frontend.Download(ctx, url, filename)

	case TypeExternalLink:
		url := a.StringParam("url")
		if url == "" {
			e.Log.Warn("action_missing_param", "type", a.Type, "param", "url")
			return nil
		}
		return e.Frontend.OpenLink(ctx, url)

	default:
		e.Log.Warn("unknown_action_type", "type", string(a.Type))
		return nil
	}
}

func (e *Executor) waitNavigateDelay(ctx context.Context) error {
	d := e.NavigateDelay
	if d <= 0 {
		return nil
	}
	after := e.after
	if after == nil {
		after = time.After
	}
	select {
	case <-after(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
