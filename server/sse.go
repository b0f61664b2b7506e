package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const heartbeatInterval = 30 * time.Second

// handleChatStream attaches the browser to a task's event stream. Each task
// has exactly one consumer; reconnecting to a finished task replays nothing
// and ends with an error event.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")
	t := s.tasks.get(taskID)
	if t == nil {
		writeError(w, http.StatusNotFound, "unknown task")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.log.Debug("stream_client_detached", "task_id", taskID)
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case ev, open := <-t.events:
			if !open {
				// Task finished and every event was delivered.
				return
			}
			if err := writeSSE(w, ev); err != nil {
				s.log.Debug("stream_write_failed", "task_id", taskID, "error", err.Error())
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev Event) error {
	payload := map[string]any{"type": ev.Type}
	for k, v := range ev.Data {
		payload[k] = v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
