package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsHandler())
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(handleNotFound)
	r.MethodNotAllowed(handleMethodNotAllowed)

	r.Get("/health", s.handleHealth)

	if s.logs != nil {
		r.Get("/log", s.handleListLogs)
		r.Post("/log", s.handleInsertLog)
		r.Options("/log", handlePreflight)
	}

	if s.status != nil {
		r.Get("/status", s.handleStatus)
	}

	if s.hub != nil {
		path := s.wsCfg.Path
		if path == "" {
			path = "/ws"
		}
		r.Get(path, s.handleWebSocket)
	}

	return r
}

// corsHandler allows every origin unless the config narrows it.
func (s *Server) corsHandler() func(http.Handler) http.Handler {
	origins := s.cfg.CORS.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	methods := s.cfg.CORS.AllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	headers := s.cfg.CORS.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Content-Type", "X-Request-ID"}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: methods,
		AllowedHeaders: headers,
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         86400,
		// Preflights reach the routes so OPTIONS /log answers 200 itself.
		OptionsPassthrough: true,
	})
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// handleStatus returns the presented connection status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Status())
}

// handlePreflight answers OPTIONS with 200 and no body.
func handlePreflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
