package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/donghwi-dev/portfolio-agent/approval"
	"github.com/donghwi-dev/portfolio-agent/site"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "healthy",
	}
	if s.backend != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		status := "unreachable"
		if s.backend.CheckHealth(ctx) {
			status = "healthy"
		}
		resp["agent_server"] = map[string]any{"status": status}
	}
	writeJSON(w, http.StatusOK, resp)
}

type chatRequest struct {
	Message   string         `json:"message"`
	SessionID string         `json:"session_id"`
	Context   map[string]any `json:"context"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		writeError(w, http.StatusBadRequest, "empty message")
		return
	}

	sess := s.sessions.GetOrCreate(req.SessionID)
	if len(req.Context) > 0 {
		sess.SetContext(req.Context)
	}

	// The task outlives this request; it is bounded by its own timeout.
	info, err := s.tasks.Enqueue(context.Background(), sess.ID, message, s.cfg.TaskTimeout)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	s.log.Info("chat_enqueued", "task_id", info.ID, "session_id", sess.ID)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id":    info.ID,
		"session_id": sess.ID,
		"status":     string(info.Status),
	})
}

type approvalRequest struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

// handleApproval resolves a pending prompt. An unknown or already-resolved
// id is not an error: the prompt may have expired a moment before the click
// arrived, so the response just reports resolved=false.
func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing approval id")
		return
	}
	var req approvalRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status := approval.StatusDenied
	if req.Approved {
		status = approval.StatusApproved
	}
	resolved := s.registry.Resolve(id, status)
	writeJSON(w, http.StatusOK, map[string]any{
		"resolved": resolved,
		"status":   string(status),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"pending_approvals": s.registry.Len(),
		"active_sessions":   s.sessions.Len(),
		"tasks":             s.tasks.Len(),
		"backend_connected": false,
	}
	if s.backend != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if s.backend.CheckHealth(ctx) {
			resp["backend_connected"] = true
			if agents, err := s.backend.ListAgents(ctx); err == nil {
				resp["agents"] = agents
			}
		}
	}
	if s.audit != nil && s.audit.Store != nil {
		if entries, err := s.audit.Store.Recent(r.Context(), 10); err == nil {
			resp["recent_decisions"] = entries
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePages(w http.ResponseWriter, r *http.Request) {
	pages := site.Pages()
	out := make([]map[string]string, 0, len(pages))
	for _, p := range pages {
		out = append(out, map[string]string{
			"name":  p.Name,
			"title": p.Title,
			"icon":  p.Icon,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"pages": out})
}

func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	page, ok := site.Lookup(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown page")
		return
	}
	resp := map[string]any{
		"name":  page.Name,
		"title": page.Title,
		"icon":  page.Icon,
	}
	if s.content != nil {
		if doc, err := s.content.Load(page.Name); err == nil {
			resp["content"] = doc.Body
			resp["meta"] = doc.Meta
		} else {
			s.log.Debug("page_content_unavailable", "page", page.Name, "error", err.Error())
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
