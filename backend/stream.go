package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/donghwi-dev/portfolio-agent/action"
	"github.com/donghwi-dev/portfolio-agent/assistant"
	"github.com/donghwi-dev/portfolio-agent/internal/jsonutil"
)

// streamEvent is one decoded SSE data payload from the agent stream.
type streamEvent struct {
	Type     string          `json:"type"`
	Content  string          `json:"content"`
	Action   *action.Action  `json:"action"`
	Actions  []action.Action `json:"actions"`
	Metadata map[string]any  `json:"metadata"`
	Error    string          `json:"error"`
}

// StreamTask consumes the SSE stream for a previously submitted task,
// invoking onChunk for each content fragment, and returns the assembled
// result once the stream completes. The whole stream is bounded by
// StreamTimeout; a stream that neither completes nor errors in time fails.
func (c *Client) StreamTask(ctx context.Context, taskID string, onChunk assistant.ChunkFunc) (assistant.Result, error) {
	var result assistant.Result
	if c == nil || c.BaseURL == "" {
		return result, fmt.Errorf("backend not configured")
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		return result, fmt.Errorf("empty task id")
	}
	result.TaskID = taskID

	ctx, cancel := context.WithTimeout(ctx, c.streamDeadline())
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/api/agent/chat/stream/"+taskID, nil)
	if err != nil {
		return result, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return result, fmt.Errorf("open stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return result, fmt.Errorf("open stream: status %d", resp.StatusCode)
	}

	var text strings.Builder
	completed := false

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			// Comments, event names and blank separators carry nothing here.
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			// Some upstream events arrive with stray prose around the JSON.
			if derr := jsonutil.DecodeLoose(data, &ev); derr != nil {
				c.logger().Warn("stream_event_undecodable", "task_id", taskID, "error", err.Error())
				continue
			}
		}

		switch ev.Type {
		case "status":
			// Progress chatter for the UI status line; not part of the result.
		case "content":
			if ev.Content == "" {
				continue
			}
			text.WriteString(ev.Content)
			if onChunk != nil {
				onChunk(ev.Content, strings.TrimSpace(text.String()))
			}
		case "action":
			if ev.Action != nil {
				result.Actions = append(result.Actions, *ev.Action)
			}
			result.Actions = append(result.Actions, ev.Actions...)
		case "metadata":
			result.Metadata = mergeMetadata(result.Metadata, ev.Metadata)
		case "complete":
			if ev.Content != "" && text.Len() == 0 {
				text.WriteString(ev.Content)
			}
			result.Actions = append(result.Actions, ev.Actions...)
			result.Metadata = mergeMetadata(result.Metadata, ev.Metadata)
			completed = true
		case "error":
			msg := strings.TrimSpace(ev.Error)
			if msg == "" {
				msg = "upstream stream error"
			}
			return result, fmt.Errorf("stream error: %s", msg)
		default:
			c.logger().Debug("stream_event_ignored", "task_id", taskID, "event_type", ev.Type)
		}
		if completed {
			break
		}
	}
	if err := scanner.Err(); err != nil && !completed {
		if ctx.Err() == context.DeadlineExceeded {
			return result, fmt.Errorf("stream timed out after %s", c.streamDeadline())
		}
		return result, fmt.Errorf("read stream: %w", err)
	}
	if !completed {
		if ctx.Err() == context.DeadlineExceeded {
			return result, fmt.Errorf("stream timed out after %s", c.streamDeadline())
		}
		return result, fmt.Errorf("stream ended without completion")
	}

	result.Text = strings.TrimSpace(text.String())
	return result, nil
}

func mergeMetadata(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// streamDeadline is the effective per-stream timeout.
func (c *Client) streamDeadline() time.Duration {
	if c.StreamTimeout > 0 {
		return c.StreamTimeout
	}
	return defaultStreamTimeout
}
