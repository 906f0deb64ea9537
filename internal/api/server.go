// Package api exposes the WCS engine over HTTP: frame registration, solve
// summaries, footprints, and batch coordinate conversion.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/AstroAir/skymap-wcs/internal/auth"
	"github.com/AstroAir/skymap-wcs/internal/convert"
	"github.com/AstroAir/skymap-wcs/internal/frame"
	"github.com/AstroAir/skymap-wcs/internal/metrics"
)

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, store *frame.Store, pool *convert.Pool, convertCfg convert.Config, maxConcurrentPerIP int, trustProxy bool) *Server {
	mux := http.NewServeMux()
	limiter := newConvertLimiter(maxConcurrentPerIP)

	// Register routes.
	mux.HandleFunc("GET /healthz", healthz)
	mux.HandleFunc("GET /readyz", readyz)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /api/v1/frames", registerFrameHandler(logger, store))
	mux.HandleFunc("GET /api/v1/frames", listFramesHandler(store))
	mux.HandleFunc("GET /api/v1/frames/{frame_id}", getFrameHandler(store))
	mux.HandleFunc("DELETE /api/v1/frames/{frame_id}", deleteFrameHandler(logger, store))
	mux.HandleFunc("GET /api/v1/frames/{frame_id}/summary", summaryHandler(store))
	mux.HandleFunc("GET /api/v1/frames/{frame_id}/footprint", footprintHandler(store))
	mux.HandleFunc("POST /api/v1/frames/{frame_id}/pixel-to-world",
		pixelToWorldHandler(store, pool, convertCfg, limiter, trustProxy))
	mux.HandleFunc("POST /api/v1/frames/{frame_id}/world-to-pixel",
		worldToPixelHandler(store, pool, convertCfg, limiter, trustProxy))

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = loggingMiddleware(logger, trustProxy)(handler)
	handler = metrics.Middleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// readyz reports ready unconditionally: the engine holds no external
// dependencies, so a process that is serving is a process that is ready.
func readyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready\n"))
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", clientIP(r, trustProxy),
			)
		})
	}
}
