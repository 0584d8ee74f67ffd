package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-aggregator/internal/config"
	"github.com/JakeFAU/progress-aggregator/internal/metrics"
	"github.com/JakeFAU/progress-aggregator/internal/policy/ratelimit"
	"github.com/JakeFAU/progress-aggregator/internal/simulate"
	"github.com/JakeFAU/progress-aggregator/internal/store"
)

// Launcher starts simulations in the background.
type Launcher interface {
	Launch(ctx context.Context, opts simulate.Options) (uuid.UUID, error)
}

// ReadinessCheck reports whether downstream dependencies can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// Server wires HTTP handlers to the progress repository and launcher.
type Server struct {
	router   chi.Router
	progress *ProgressHandler
	launcher Launcher
	ready    ReadinessCheck
	cfg      config.Config
	logger   *zap.Logger
}

const (
	requestTimeout    = 60 * time.Second
	maxSimulationBody = 1 << 16
	maxContributors   = 256
	maxSteps          = 100000
)

// NewServer constructs a Server with middleware and routes. A nil launcher
// disables POST /v1/simulations and a nil ready check always reports ready.
func NewServer(
	repo store.ProgressRepository,
	launcher Launcher,
	ready ReadinessCheck,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		progress: NewProgressHandler(repo, logger),
		launcher: launcher,
		ready:    ready,
		cfg:      cfg,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/trackers", func(r chi.Router) {
			r.Get("/", s.progress.ListTrackers)
			r.Route("/{tracker_id}", func(r chi.Router) {
				r.Get("/", s.progress.GetTracker)
				r.Get("/contributors", s.progress.ListContributors)
			})
		})
		r.With(ratelimit.New(ratelimit.Config{
			RPS:   cfg.RateLimit.SimulationsRPS,
			Burst: cfg.RateLimit.SimulationsBurst,
		}).Middleware).Post("/simulations", s.launchSimulation)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), progressTimeout)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type simulationRequest struct {
	Name         string `json:"name"`
	Contributors *int   `json:"contributors"`
	Steps        *int   `json:"steps"`
}

func (req simulationRequest) toOptions() (simulate.Options, error) {
	opts := simulate.Options{Name: req.Name}
	if req.Contributors != nil {
		if *req.Contributors <= 0 || *req.Contributors > maxContributors {
			return simulate.Options{}, fmt.Errorf("contributors must be between 1 and %d", maxContributors)
		}
		opts.Contributors = *req.Contributors
	}
	if req.Steps != nil {
		if *req.Steps <= 0 || *req.Steps > maxSteps {
			return simulate.Options{}, fmt.Errorf("steps must be between 1 and %d", maxSteps)
		}
		opts.Steps = *req.Steps
	}
	return opts, nil
}

func (s *Server) launchSimulation(w http.ResponseWriter, r *http.Request) {
	if s.launcher == nil {
		writeError(w, http.StatusServiceUnavailable, "simulations disabled")
		return
	}
	var req simulationRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxSimulationBody))
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	opts, err := req.toOptions()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := s.launcher.Launch(r.Context(), opts)
	if err != nil {
		s.logger.Error("launch simulation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to launch simulation")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"tracker_id": id.String()})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			reqID, _ := r.Context().Value(requestIDKey{}).(string)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", reqID),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
