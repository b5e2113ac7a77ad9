package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/himanishpuri/AcousticID/pkg/acousticid"
	"github.com/himanishpuri/AcousticID/pkg/metrics"
)

// setupRoutes registers all HTTP routes and middleware
func (s *Server) setupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware(s.log))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware(s.config.AllowedOrigins))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Normalized contract
	r.Post("/v1/analyze", s.handleAnalyze)
	r.Post("/api/analyze", s.handleAnalyze)
	r.Post("/fingerprint", s.handleAnalyze)

	// Raw passthrough contract
	r.Post("/v1/analyze/raw", s.handleAnalyzeRaw)
	r.Post("/analyze", s.handleAnalyzeRaw)

	r.Route("/api/analyses", func(r chi.Router) {
		r.Get("/", s.handleListAnalyses)
		r.Get("/{id}", s.handleGetAnalysis)
		r.Delete("/{id}", s.handleDeleteAnalysis)
	})

	return r
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				allowed = true
			} else {
				for _, allowedOrigin := range allowedOrigins {
					if allowedOrigin == origin {
						w.Header().Set("Access-Control-Allow-Origin", origin)
						w.Header().Add("Vary", "Origin")
						allowed = true
						break
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
				w.Header().Set("Access-Control-Max-Age", "3600")
			}

			// Handle preflight requests
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// loggingMiddleware logs all HTTP requests
func loggingMiddleware(log acousticid.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			log.Debugf("%s %s from %s", r.Method, r.URL.Path, getClientIP(r))

			next.ServeHTTP(wrapped, r)

			log.Infof("%s %s -> %d (%s)", r.Method, r.URL.Path, wrapped.statusCode,
				time.Since(start).Round(time.Millisecond))
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// getClientIP returns the client address without its port. RealIP has
// already applied X-Forwarded-For / X-Real-IP by the time this runs.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Start runs the HTTP server until SIGINT or SIGTERM, then drains in-flight
// analyses before returning.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Infof("AcousticID server starting on %s", addr)
	s.log.Infof("   Upload dir: %s (max %s)", s.config.UploadDir, humanize.IBytes(uint64(s.config.MaxUploadBytes)))
	if s.config.DBPath != "" {
		s.log.Infof("   History DB: %s", s.config.DBPath)
	} else {
		s.log.Infof("   History DB: disabled")
	}
	s.log.Infof("   CORS Origins: %v", s.config.AllowedOrigins)
	s.log.Infof("Endpoints:")
	s.log.Infof("   GET    /                     - Liveness")
	s.log.Infof("   GET    /health               - Health check")
	s.log.Infof("   GET    /metrics              - Prometheus metrics")
	s.log.Infof("   POST   /v1/analyze           - Identify audio (normalized candidates)")
	s.log.Infof("   POST   /v1/analyze/raw       - Identify audio (raw AcoustID response)")
	s.log.Infof("   POST   /api/analyze          - Alias of /v1/analyze")
	s.log.Infof("   POST   /fingerprint          - Alias of /v1/analyze")
	s.log.Infof("   POST   /analyze              - Alias of /v1/analyze/raw")
	s.log.Infof("   GET    /api/analyses         - Recent analyses")
	s.log.Infof("   GET    /api/analyses/{id}    - One analysis")
	s.log.Infof("   DELETE /api/analyses/{id}    - Delete an analysis")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
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

	s.log.Infof("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
