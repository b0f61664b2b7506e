// Package action models the UI actions an assistant response can suggest:
// page navigation, scrolling, file downloads and external links. Actions are
// gated behind user approval by default.
package action

import (
	"fmt"
	"strings"
)

type Type string

const (
	TypeNavigate     Type = "navigate"
	TypeScroll       Type = "scroll"
	TypeDownload     Type = "download"
	TypeExternalLink Type = "external_link"
)

// Action is the wire shape emitted by the agent backend alongside a response.
// Unknown Type values are tolerated everywhere: they describe generically and
// execute as a logged no-op.
type Action struct {
	Type             Type           `json:"type"`
	Params           map[string]any `json:"params,omitempty"`
	RequiresApproval *bool          `json:"requires_approval,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Gated reports whether the action must pass user approval before executing.
// A missing requires_approval field means gated.
func (a Action) Gated() bool {
	return a.RequiresApproval == nil || *a.RequiresApproval
}

// StringParam returns the named param as a trimmed string. Non-string values
// are rendered with fmt; missing keys return "".
func (a Action) StringParam(key string) string {
	if a.Params == nil {
		return ""
	}
	v, ok := a.Params[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(fmt.Sprintf("%v", v))
}

// Bool is a convenience for building the RequiresApproval pointer field.
func Bool(v bool) *bool { return &v }
