package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"nlcal/internal/assistant"
	"nlcal/internal/config"
	"nlcal/internal/gateway"
	appLog "nlcal/internal/log"
	"nlcal/internal/metrics"
)

// maxChatBody caps POST /api/chat and PUT /api/session bodies.
const maxChatBody = 64 << 10

// Assistant is the part of *assistant.Assistant the HTTP layer needs.
type Assistant interface {
	Handle(ctx context.Context, utterance string) assistant.Response
	IsConnected() bool
}

// Server exposes the assistant over HTTP.
type Server struct {
	cfg       *config.Config
	assistant Assistant
	// session is nil when the backend has no credential (ics).
	session *gateway.Session
	metrics *metrics.Metrics
	mux     *http.ServeMux
}

// NewServer constructs a new Server. session and m may be nil.
func NewServer(cfg *config.Config, a Assistant, session *gateway.Session, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:       cfg,
		assistant: a,
		session:   session,
		metrics:   m,
		mux:       http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// HTTPServer wraps Handler in an *http.Server bound to cfg.Listen. The caller
// owns ListenAndServe and Shutdown.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Blank credentials disable auth rather than locking everyone out.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="nlcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/chat", s.handleChat)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("PUT /api/session", s.handleSessionPut)
	s.mux.HandleFunc("DELETE /api/session", s.handleSessionDelete)
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type chatRequest struct {
	Message string `json:"message"`
}

// handleChat runs one utterance through the assistant.
//
// POST /api/chat {"message": "..."}
//
// Every assistant outcome, including failures, is a 200 with a reply; only
// malformed requests get an error status.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	writeJSON(w, http.StatusOK, s.assistant.Handle(r.Context(), req.Message))
}

type statusResponse struct {
	Connected bool   `json:"connected"`
	Backend   string `json:"backend"`
}

func (s *Server) status() statusResponse {
	return statusResponse{Connected: s.assistant.IsConnected(), Backend: s.cfg.Backend}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

// handleSessionPut installs an OAuth2 token obtained elsewhere.
//
// PUT /api/session {"access_token": "...", "refresh_token": "...", "expiry": "..."}
func (s *Server) handleSessionPut(w http.ResponseWriter, r *http.Request) {
	if s.session == nil {
		writeError(w, http.StatusNotImplemented, "backend does not use a session")
		return
	}
	var tok oauth2.Token
	if err := decodeBody(w, r, &tok); err != nil {
		writeError(w, http.StatusBadRequest, "invalid token body")
		return
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "access_token or refresh_token is required")
		return
	}
	s.session.Set(&tok)
	writeJSON(w, http.StatusOK, s.status())
}

// handleSessionDelete disconnects the calendar.
func (s *Server) handleSessionDelete(w http.ResponseWriter, _ *http.Request) {
	if s.session == nil {
		writeError(w, http.StatusNotImplemented, "backend does not use a session")
		return
	}
	s.session.Clear()
	writeJSON(w, http.StatusOK, s.status())
}

// decodeBody decodes a single JSON object from a size-limited body.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
