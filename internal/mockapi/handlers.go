package mockapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rflorenc/avi-test-automation/internal/models"
)

// Register creates a user from a JSON {"username", "password"} body.
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if body.Username == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	if !s.Store.Register(body.Username, body.Password) {
		writeError(w, http.StatusBadRequest, "user already exists")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": "user registered"})
}

// Login exchanges basic auth credentials for a bearer token.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok {
		writeError(w, http.StatusUnauthorized, "basic auth required")
		return
	}
	token, ok := s.Store.Login(user, pass)
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// listHandler serves a collection, paginated when page_size is given.
func (s *Server) listHandler(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items := s.Store.List(kind)
		resp := models.Collection{Count: len(items), Results: items}

		if v := r.URL.Query().Get("page_size"); v != "" {
			size, err := strconv.Atoi(v)
			if err != nil || size < 1 {
				writeError(w, http.StatusBadRequest, "invalid page_size")
				return
			}
			page := 1
			if p := r.URL.Query().Get("page"); p != "" {
				page, err = strconv.Atoi(p)
				if err != nil || page < 1 {
					writeError(w, http.StatusBadRequest, "invalid page")
					return
				}
			}
			start := (page - 1) * size
			if start > len(items) {
				start = len(items)
			}
			end := start + size
			if end > len(items) {
				end = len(items)
			}
			resp.Results = items[start:end]
			if end < len(items) {
				next := fmt.Sprintf("%s?page=%d&page_size=%d", r.URL.Path, page+1, size)
				resp.Next = &next
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Server) getHandler(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		obj, ok := s.Store.Get(kind, chi.URLParam(r, "uuid"))
		if !ok {
			writeError(w, http.StatusNotFound, kind+" not found")
			return
		}
		writeJSON(w, http.StatusOK, obj)
	}
}

func (s *Server) updateHandler(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch models.Resource
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		obj, ok := s.Store.Update(kind, chi.URLParam(r, "uuid"), patch)
		if !ok {
			writeError(w, http.StatusNotFound, kind+" not found")
			return
		}
		writeJSON(w, http.StatusOK, obj)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
