// Package api serves a tool table over HTTP: the GET /tools listing that
// registry discovery reads, POST /tools/{name} calls and recent logs.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jordanhubbard/mmgen/internal/logging"
	"github.com/jordanhubbard/mmgen/internal/mcpgen"
	"github.com/jordanhubbard/mmgen/internal/registry"
)

// Server is the HTTP face of a toolbox.
type Server struct {
	tools      *mcpgen.Toolbox
	logManager *logging.Manager
}

// NewServer creates a server for tb. logs may be nil, in which case /logs
// is not served.
func NewServer(tb *mcpgen.Toolbox, logs *logging.Manager) *Server {
	return &Server{tools: tb, logManager: logs}
}

// SetupRoutes returns the HTTP handler.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/tools", s.handleTools)
	mux.HandleFunc("/tools/", s.handleTool)
	if s.logManager != nil {
		mux.HandleFunc("/logs", s.handleLogsRecent)
	}
	return s.loggingMiddleware(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTools lists tools in the shape registry.HTTPSource consumes.
func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	specs := s.tools.Tools()
	tools := make([]registry.Tool, 0, len(specs))
	for _, spec := range specs {
		tools = append(tools, registry.Tool{
			Name:        spec.Name,
			Description: spec.Description,
			Required:    spec.Required(),
		})
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"tools": tools})
}

// handleTool calls one tool with a JSON object of arguments.
func (s *Server) handleTool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/tools/")
	if name == "" || strings.Contains(name, "/") {
		s.respondError(w, http.StatusBadRequest, "tool name required")
		return
	}

	args := map[string]any{}
	if r.ContentLength != 0 {
		if err := s.parseJSON(r, &args); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid JSON arguments: "+err.Error())
			return
		}
	}

	out, err := s.tools.Call(r.Context(), name, mcpgen.StringArgs(args))
	switch {
	case errors.Is(err, mcpgen.ErrUnknownTool):
		s.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, mcpgen.ErrMissingArgument):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		s.respondJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error(), "result": out})
	default:
		s.respondJSON(w, http.StatusOK, map[string]string{"result": out})
	}
}

// handleLogsRecent returns buffered log entries, newest first, filtered by
// the level, source and limit query parameters.
func (s *Server) handleLogsRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	limit := 100
	if v := q.Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l <= 0 {
			s.respondError(w, http.StatusBadRequest, "invalid limit: "+v)
			return
		}
		limit = l
	}

	logs := s.logManager.GetRecent(limit, q.Get("level"), q.Get("source"))
	if logs == nil {
		logs = []logging.LogEntry{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"count": len(logs),
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("[API] %s %s (%s)", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) parseJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}
