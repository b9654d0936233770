// Package httpapi exposes the job API over HTTP with a chi router.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-orchestrator/internal/core"
	"github.com/book-expert/tts-orchestrator/internal/orchestrator"
	"github.com/book-expert/tts-orchestrator/internal/tts/ttsutils"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Defaults.
const (
	DefaultMaxUploadBytes = 20 << 20
	DefaultHistoryLimit   = 20
	readHeaderTimeout     = 10 * time.Second
)

// JobService is the part of the orchestrator the HTTP API exposes.
type JobService interface {
	Submit(ctx context.Context, params core.GenerationParameters) (orchestrator.SubmitResult, error)
	Status(id string) (orchestrator.StatusResult, error)
	Download(ctx context.Context, id string) (orchestrator.Artifact, error)
	Health() orchestrator.HealthReport
	Unload() bool
	History(ctx context.Context, limit int) ([]core.HistoryRecord, error)
}

// Options tune the HTTP API.
type Options struct {
	MaxUploadBytes int64
	// Metrics mounts the Prometheus handler on /metrics.
	Metrics bool
}

// Server holds the handlers of the job API.
type Server struct {
	service JobService
	opts    Options
	log     *logger.Logger
}

// NewServer creates the handlers. log may be nil.
func NewServer(service JobService, opts Options, log *logger.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}

	return &Server{service: service, opts: opts, log: log}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(s.requestLogger)
	router.Use(middleware.Recoverer)

	router.Post("/jobs", s.handleSubmit)
	router.Get("/jobs/{id}", s.handleStatus)
	router.Get("/jobs/{id}/download", s.handleDownload)
	router.Get("/health", s.handleHealth)
	router.Post("/unload", s.handleUnload)
	router.Get("/languages", s.handleLanguages)
	router.Get("/presets", s.handlePresets)
	router.Get("/history", s.handleHistory)

	if s.opts.Metrics {
		router.Handle("/metrics", promhttp.Handler())
	}

	return router
}

// NewHTTPServer wraps the router in an http.Server listening on addr.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(wrapped, r)

		if s.log != nil {
			s.log.Info("%s %s -> %d (%d bytes) in %s [%s]", r.Method, r.URL.Path, wrapped.Status(),
				wrapped.BytesWritten(), time.Since(started).Round(time.Microsecond), middleware.GetReqID(r.Context()))
		}
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(body)
	if err != nil && s.log != nil {
		s.log.Warn("Failed to write response: %v", err)
	}
}

// writeError maps the error taxonomy onto status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError && s.log != nil {
		s.log.Error("Request failed: %v", err)
	}

	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrValidation), errors.Is(err, ttsutils.ErrUnsupportedAudio):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
