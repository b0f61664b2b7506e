package server

import (
	"context"
	"sync"

	"github.com/donghwi-dev/portfolio-agent/approval"
)

// Event is one SSE message on a chat task stream. The browser switches on
// Type and renders; it carries no action semantics of its own.
type Event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

const (
	eventStatus        = "status"
	eventContent       = "content"
	eventActionPrompt  = "action_prompt"
	eventPromptDismiss = "prompt_dismiss"
	eventAction        = "action"
	eventNotice        = "notice"
	eventMetadata      = "metadata"
	eventComplete      = "complete"
	eventError         = "error"
)

// taskPublisher adapts one task's event channel to the interfaces the chat
// pipeline needs: the approval prompt surface and the action frontend. It
// lives for a single task run.
type taskPublisher struct {
	task *chatTask

	mu      sync.Mutex
	visible string
}

// Present shows an approval prompt. Only one prompt is ever visible: a new
// prompt first tears down the current one. The superseded request stays
// pending in the registry and expires on its own clock.
func (p *taskPublisher) Present(ctx context.Context, prompt approval.Prompt) {
	p.mu.Lock()
	prev := p.visible
	p.visible = prompt.ID
	p.mu.Unlock()

	if prev != "" && prev != prompt.ID {
		p.task.publish(Event{Type: eventPromptDismiss, Data: map[string]any{"id": prev}})
	}
	p.task.publish(Event{Type: eventActionPrompt, Data: map[string]any{
		"id":            prompt.ID,
		"icon":          prompt.Info.Icon,
		"title":         prompt.Info.Title,
		"description":   prompt.Info.Description,
		"response_text": prompt.ResponseText,
	}})
}

// Dismiss tears down the prompt if it is still the visible one. Dismissing
// a superseded prompt is a no-op; its teardown already happened.
func (p *taskPublisher) Dismiss(ctx context.Context, id string) {
	p.mu.Lock()
	if p.visible != id {
		p.mu.Unlock()
		return
	}
	p.visible = ""
	p.mu.Unlock()

	p.task.publish(Event{Type: eventPromptDismiss, Data: map[string]any{"id": id}})
}

// The Frontend side: each approved action becomes a directive event the
// browser executes against the DOM.

func (p *taskPublisher) Navigate(ctx context.Context, page string) error {
	p.task.publish(Event{Type: eventAction, Data: map[string]any{
		"action": "navigate",
		"page":   page,
	}})
	return nil
}

func (p *taskPublisher) Scroll(ctx context.Context, element string) error {
	p.task.publish(Event{Type: eventAction, Data: map[string]any{
		"action":  "scroll",
		"element": element,
	}})
	return nil
}

func (p *taskPublisher) Download(ctx context.Context, url, filename string) error {
	p.task.publish(Event{Type: eventAction, Data: map[string]any{
		"action":   "download",
		"url":      url,
		"filename": filename,
	}})
	return nil
}

func (p *taskPublisher) OpenLink(ctx context.Context, url string) error {
	p.task.publish(Event{Type: eventAction, Data: map[string]any{
		"action": "external_link",
		"url":    url,
	}})
	return nil
}
