package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skywcs_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skywcs_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	convertPointsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skywcs_convert_points_total",
			Help: "Total number of coordinate points converted, by direction and outcome.",
		},
		[]string{"direction", "outcome"},
	)

	convertDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skywcs_convert_duration_seconds",
			Help:    "Batch coordinate conversion duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"direction"},
	)

	sipInverseIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skywcs_sip_inverse_iterations",
			Help:    "Iterations used by the iterative SIP distortion inverse.",
			Buckets: prometheus.LinearBuckets(1, 1, 10),
		},
	)

	framesRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skywcs_frames_registered",
			Help: "Number of solved frames currently registered.",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpDurationSeconds)
	prometheus.MustRegister(convertPointsTotal)
	prometheus.MustRegister(convertDurationSeconds)
	prometheus.MustRegister(sipInverseIterations)
	prometheus.MustRegister(framesRegistered)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordConversion records the outcome of one batch conversion.
// Converted and failed are point counts; direction is "pixel_to_world"
// or "world_to_pixel".
func RecordConversion(direction string, duration time.Duration, converted, failed int) {
	convertDurationSeconds.WithLabelValues(direction).Observe(duration.Seconds())
	convertPointsTotal.WithLabelValues(direction, "ok").Add(float64(converted))
	convertPointsTotal.WithLabelValues(direction, "error").Add(float64(failed))
}

// ObserveSIPInverseIterations records the iteration count of one iterative
// SIP inverse solve.
func ObserveSIPInverseIterations(n int) {
	sipInverseIterations.Observe(float64(n))
}

// SetFramesRegistered updates the registered-frames gauge.
func SetFramesRegistered(n int) {
	framesRegistered.Set(float64(n))
}

// knownRoutes are the exact paths served by the API; anything else collapses
// to "other" so scanner traffic cannot inflate label cardinality.
var knownRoutes = map[string]bool{
	"/healthz":       true,
	"/readyz":        true,
	"/metrics":       true,
	"/":              true,
	"/api/v1/frames": true,
}

// frameSubroutes are the per-frame operations; the frame id path segment is
// collapsed to a placeholder.
var frameSubroutes = map[string]bool{
	"summary":        true,
	"footprint":      true,
	"pixel-to-world": true,
	"world-to-pixel": true,
	"":               true, // GET/DELETE /api/v1/frames/{frame_id}
}

// normalizeRoute maps a request path to a bounded set of metric labels.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/frames/"); ok {
		_, op, _ := strings.Cut(rest, "/")
		if frameSubroutes[op] {
			if op == "" {
				return "/api/v1/frames/{frame_id}"
			}
			return "/api/v1/frames/{frame_id}/" + op
		}
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
