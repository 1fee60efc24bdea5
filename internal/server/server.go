// Package server serves the bootstrap page that hosts the live preview.
//
// The page server is independent of the websocket hub: it only reads the
// hub's current state to inline first-paint content and tells the page which
// port to open its update channel against.
package server

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"time"

	"github.com/a-h/templ"
	"github.com/conneroisu/mdpreview/internal/assets"
	"github.com/conneroisu/mdpreview/internal/logging"
	"github.com/conneroisu/mdpreview/internal/renderer"
	"github.com/conneroisu/mdpreview/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// State is the read-only view of the pipeline the page needs.
type State interface {
	Current() types.Update
	Len() int
}

// Options configures the page server.
type Options struct {
	// Document is the previewed file; its base name is the fallback title.
	Document      string
	WebSocketPort int
	// HighlightCSS is served at /static/highlight.css; empty disables the link.
	HighlightCSS string
	Version      string
}

// Server builds the HTTP handler for the bootstrap page and its assets.
type Server struct {
	opts    Options
	state   State
	logger  logging.Logger
	started time.Time
	router  chi.Router
}

// New creates a page server reading from state.
func New(opts Options, state State, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}

	s := &Server{
		opts:    opts,
		state:   state,
		logger:  logger.WithComponent("server"),
		started: time.Now(),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)

	r.Group(func(r chi.Router) {
		r.Use(middleware.NoCache)
		r.Get("/", s.handleIndex)
		r.Get("/api/update", s.handleUpdate)
		r.Get("/healthz", s.handleHealth)
	})

	r.Get("/static/highlight.css", s.handleHighlightCSS)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(assets.Static())))

	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	current := s.state.Current()
	content := current.ContentOrEmpty()

	title := renderer.Title(content)
	if title == "" {
		title = filepath.Base(s.opts.Document)
	}

	page := Page(PageData{
		Title:         title,
		WebSocketPort: s.opts.WebSocketPort,
		Content:       content,
		Stylesheet:    current.StylesheetOrEmpty(),
		Highlight:     s.opts.HighlightCSS != "",
	})

	templ.Handler(page,
		templ.WithErrorHandler(func(r *http.Request, err error) http.Handler {
			s.logger.Error(r.Context(), err, "Failed to render page")
			return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "failed to render page", http.StatusInternalServerError)
			})
		}),
	).ServeHTTP(w, r)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.state.Current())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"version":   s.opts.Version,
		"viewers":   s.state.Len(),
		"document":  s.opts.Document,
	}
	s.writeJSON(w, r, http.StatusOK, health)
}

func (s *Server) handleHighlightCSS(w http.ResponseWriter, r *http.Request) {
	if s.opts.HighlightCSS == "" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	_, _ = w.Write([]byte(s.opts.HighlightCSS))
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn(r.Context(), err, "Failed to encode response", "path", r.URL.Path)
	}
}
