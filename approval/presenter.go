package approval

import (
	"context"

	"github.com/donghwi-dev/portfolio-agent/action"
)

// Prompt is everything a client needs to render one confirmation affordance.
// The description copy is pre-rendered so the client stays free of
// action-type knowledge.
type Prompt struct {
	ID           string      `json:"id"`
	Info         action.Info `json:"info"`
	ResponseText string      `json:"response_text,omitempty"`
}

// Presenter renders at most one confirmation prompt at a time. Presenting a
// new prompt visually supersedes the previous one; the superseded request's
// registry entry stays pending until its own timeout or sweep. Dismiss
// removes the visual only and never mutates registry state.
type Presenter interface {
	Present(ctx context.Context, p Prompt)
	Dismiss(ctx context.Context, id string)
}

// NopPresenter renders nothing. Useful for headless runs and tests.
type NopPresenter struct{}

func (NopPresenter) Present(context.Context, Prompt)      {}
func (NopPresenter) Dismiss(context.Context, string)      {}
