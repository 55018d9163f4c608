// Package httpapi exposes the dedupe coordinator over HTTP: GET /health,
// POST /claims/check-duplicate, POST /claims/check-duplicate-batch.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/factengine/claimdedupe/internal/dedupe/apperr"
	"github.com/factengine/claimdedupe/internal/dedupe/coordinator"
)

const (
	minTopK     = 1
	maxTopK     = 50
	defaultTopK = 5

	minBatchSize = 1
	maxBatchSize = 200
)

// Coordinator is the server's view of the dedupe pipeline.
type Coordinator interface {
	CheckDuplicate(ctx context.Context, text string, k int) (coordinator.Response, error)
	CheckDuplicateBatch(ctx context.Context, texts []string, k int) ([]coordinator.Response, error)
}

// Server exposes the dedupe coordinator over HTTP.
type Server struct {
	coordinator Coordinator
	logger      *zerolog.Logger
	router      *mux.Router
	server      *http.Server
}

// Config configures the HTTP server's network behavior.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// New builds a Server wired to coord and ready to Start.
func New(coord Coordinator, logger *zerolog.Logger, cfg Config) *Server {
	router := mux.NewRouter()

	s := &Server{
		coordinator: coord,
		logger:      logger,
		router:      router,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/claims/check-duplicate", s.handleCheckDuplicate).Methods(http.MethodPost)
	s.router.HandleFunc("/claims/check-duplicate-batch", s.handleCheckDuplicateBatch).Methods(http.MethodPost)
}

// Start begins serving; it blocks until the listener errors or Shutdown closes it.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("starting dedupe HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type checkDuplicateRequest struct {
	ClaimText string `json:"claim_text"`
	TopK      int    `json:"top_k"`
}

func (s *Server) handleCheckDuplicate(w http.ResponseWriter, r *http.Request) {
	var req checkDuplicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: %w", apperr.ErrEmptyText, err))
		return
	}

	k, err := normalizeTopK(req.TopK)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if req.ClaimText == "" {
		s.writeError(w, apperr.ErrEmptyText)
		return
	}

	resp, err := s.coordinator.CheckDuplicate(r.Context(), req.ClaimText, k)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type checkDuplicateBatchRequest struct {
	Claims []string `json:"claims"`
	TopK   int      `json:"top_k"`
}

type checkDuplicateBatchResponse struct {
	Results []coordinator.Response `json:"results"`
}

func (s *Server) handleCheckDuplicateBatch(w http.ResponseWriter, r *http.Request) {
	var req checkDuplicateBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: %w", apperr.ErrBatchEmpty, err))
		return
	}

	k, err := normalizeTopK(req.TopK)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if len(req.Claims) < minBatchSize || len(req.Claims) > maxBatchSize {
		s.writeError(w, apperr.ErrBatchTooLarge)
		return
	}

	results, err := s.coordinator.CheckDuplicateBatch(r.Context(), req.Claims, k)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, checkDuplicateBatchResponse{Results: results})
}

func normalizeTopK(k int) (int, error) {
	if k == 0 {
		return defaultTopK, nil
	}

	if k < minTopK || k > maxTopK {
		return 0, apperr.ErrTopKOutOfRange
	}

	return k, nil
}

// writeError maps the apperr taxonomy onto HTTP status codes: input errors
// are 4xx (caught before any write), everything else — embedding failure,
// storage failure, invariant violation — is 5xx with a detail string.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case apperr.Is(err, apperr.ErrEmptyText),
		apperr.Is(err, apperr.ErrTopKOutOfRange),
		apperr.Is(err, apperr.ErrBatchTooLarge),
		apperr.Is(err, apperr.ErrBatchEmpty):
		status = http.StatusBadRequest
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}

	writeJSON(w, status, map[string]string{"detail": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
