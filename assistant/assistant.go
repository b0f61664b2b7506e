package assistant

import (
	"github.com/donghwi-dev/portfolio-agent/action"
)

// Result is the structured outcome of one chat turn, produced by either the
// live agent backend or the fallback responder. The two paths must be
// indistinguishable to callers.
type Result struct {
	Text     string          `json:"text"`
	Actions  []action.Action `json:"actions,omitempty"`
	Metadata map[string]any  `json:"metadata,omitempty"`
	TaskID   string          `json:"task_id,omitempty"`
}

// ChunkFunc receives incremental response text: the newly arrived chunk and
// the cumulative text so far.
type ChunkFunc func(chunk string, cumulative string)
