// Package server exposes the classifier over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/straja-ai/triage/internal/auth"
	"github.com/straja-ai/triage/internal/config"
	"github.com/straja-ai/triage/internal/evidence"
	"github.com/straja-ai/triage/internal/logging"
)

// Classifier is the pipeline the HTTP layer fronts.
type Classifier interface {
	Classify(ctx context.Context, in evidence.AnalysisInput) evidence.AnalysisResult
	ClassifyBatch(ctx context.Context, inputs []evidence.AnalysisInput) evidence.BatchResult
}

// Server wraps the HTTP routes for the classifier.
type Server struct {
	router     chi.Router
	classifier Classifier
	cfg        config.ServerConfig
	auth       *auth.Auth
	logger     zerolog.Logger
}

// New creates a server with all routes registered. gatherer backs /metrics;
// nil leaves the route unregistered. A nil or empty authz leaves /v1 open.
func New(cfg config.ServerConfig, c Classifier, gatherer prometheus.Gatherer, authz *auth.Auth) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 8 << 20
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = 1000
	}

	s := &Server{
		router:     chi.NewRouter(),
		classifier: c,
		cfg:        cfg,
		auth:       authz,
		logger:     logging.New("server"),
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.logRequests)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/classify", s.handleClassify)
		r.Post("/classify/batch", s.handleClassifyBatch)
	})
	if gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found", "not_found")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed")
	})
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves on cfg.Addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("triage API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.auth.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := auth.ParseBearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing or malformed bearer token", "authentication_error")
			return
		}
		client, ok := s.auth.Lookup(token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unknown api key", "authentication_error")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithClient(r.Context(), client)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	var in evidence.AnalysisInput
	if !s.decode(w, r, &in) {
		return
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	writeJSON(w, http.StatusOK, s.classifier.Classify(r.Context(), in))
}

type batchRequest struct {
	Inputs []evidence.AnalysisInput `json:"inputs"`
}

func (s *Server) handleClassifyBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Inputs) > s.cfg.MaxBatch {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("batch of %d inputs exceeds limit of %d", len(req.Inputs), s.cfg.MaxBatch), "batch_too_large")
		return
	}
	for i := range req.Inputs {
		if req.Inputs[i].ID == "" {
			req.Inputs[i].ID = uuid.NewString()
		}
	}
	writeJSON(w, http.StatusOK, s.classifier.ClassifyBatch(r.Context(), req.Inputs))
}

// decode reads a size-limited JSON body into dst and writes the error
// response itself when it fails.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit), "body_too_large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error(), "invalid_request")
		return false
	}
	return true
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func writeError(w http.ResponseWriter, status int, message, typ string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Message: message, Type: typ}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
