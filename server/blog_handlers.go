package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/donghwi-dev/portfolio-agent/blog"
)

const postPasswordHeader = "X-Post-Password"

type blogPostRequest struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Tags     []string `json:"tags"`
	Password string   `json:"password"`
}

func (s *Server) handleBlogList(w http.ResponseWriter, r *http.Request) {
	if s.posts == nil {
		writeError(w, http.StatusNotImplemented, "blog storage not configured")
		return
	}
	posts, err := s.posts.List(r.Context())
	if err != nil {
		s.log.Error("blog_list_failed", "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to list posts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

func (s *Server) handleBlogCreate(w http.ResponseWriter, r *http.Request) {
	if s.posts == nil {
		writeError(w, http.StatusNotImplemented, "blog storage not configured")
		return
	}
	var req blogPostRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	post, err := s.posts.Create(r.Context(), req.Title, req.Content, req.Tags, req.Password)
	if err != nil {
		if errors.Is(err, blog.ErrPasswordRequired) {
			writeError(w, http.StatusBadRequest, "password required")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) handleBlogGet(w http.ResponseWriter, r *http.Request) {
	if s.posts == nil {
		writeError(w, http.StatusNotImplemented, "blog storage not configured")
		return
	}
	id, ok := parsePostID(w, r)
	if !ok {
		return
	}
	post, err := s.posts.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, blog.ErrNotFound) {
			writeError(w, http.StatusNotFound, "post not found")
			return
		}
		s.log.Error("blog_get_failed", "post_id", id, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to load post")
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) handleBlogUpdate(w http.ResponseWriter, r *http.Request) {
	if s.posts == nil {
		writeError(w, http.StatusNotImplemented, "blog storage not configured")
		return
	}
	id, ok := parsePostID(w, r)
	if !ok {
		return
	}
	var req blogPostRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	post, err := s.posts.Update(r.Context(), id, req.Title, req.Content, req.Tags, mutationPassword(r, req))
	if err != nil {
		writeBlogMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) handleBlogDelete(w http.ResponseWriter, r *http.Request) {
	if s.posts == nil {
		writeError(w, http.StatusNotImplemented, "blog storage not configured")
		return
	}
	id, ok := parsePostID(w, r)
	if !ok {
		return
	}
	if err := s.posts.Delete(r.Context(), id, r.Header.Get(postPasswordHeader)); err != nil {
		writeBlogMutationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

// mutationPassword prefers the header and falls back to the body field, so
// simple clients can keep sending one JSON document.
func mutationPassword(r *http.Request, req blogPostRequest) string {
	if pw := strings.TrimSpace(r.Header.Get(postPasswordHeader)); pw != "" {
		return pw
	}
	return req.Password
}

func parsePostID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		writeError(w, http.StatusBadRequest, "invalid post id")
		return 0, false
	}
	return uint(id), true
}

func writeBlogMutationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, blog.ErrNotFound):
		writeError(w, http.StatusNotFound, "post not found")
	case errors.Is(err, blog.ErrPasswordRequired):
		writeError(w, http.StatusUnauthorized, "password required")
	case errors.Is(err, blog.ErrPasswordMismatch):
		writeError(w, http.StatusForbidden, "password mismatch")
	default:
		writeError(w, http.StatusInternalServerError, "blog operation failed")
	}
}
