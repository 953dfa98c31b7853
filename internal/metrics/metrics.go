// Package metrics exposes Prometheus counters/histograms for the
// interview backend, adapted from the teacher's voice service's HTTP
// middleware (services/voice/internal/metrics/metrics.go), generalized
// with domain counters for anti-cheat strikes, AI fallback usage, and
// sandbox runs that the voice-only original never needed.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peerprep",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "path", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "peerprep",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	httpInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "peerprep",
		Name:      "http_in_flight_requests",
		Help:      "Current number of in-flight HTTP requests",
	})

	// StrikesTotal counts anti-cheat strikes issued, by event type and
	// severity, so an operator can watch for a noisy proctoring signal.
	StrikesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peerprep",
		Name:      "anticheat_strikes_total",
		Help:      "Total anti-cheat strikes issued",
	}, []string{"event_type", "severity"})

	// ChainBreaksTotal counts rejected anti-cheat event batches, a signal
	// of client tampering or a buggy client.
	ChainBreaksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "peerprep",
		Name:      "anticheat_chain_breaks_total",
		Help:      "Total anti-cheat event batches rejected for a broken hash chain",
	})

	// AIFallbackTotal counts how often the AI Proxy had to fall through
	// to the deterministic provider, by call kind.
	AIFallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peerprep",
		Name:      "ai_fallback_total",
		Help:      "Total AI Proxy calls that fell through to the deterministic fallback",
	}, []string{"kind"})

	// SandboxRunsTotal counts code-eval runs by language and outcome.
	SandboxRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "peerprep",
		Name:      "sandbox_runs_total",
		Help:      "Total code-eval sandbox runs",
	}, []string{"language", "outcome"})

	// SandboxRunDuration observes wall-clock time spent inside the
	// sandbox container per run.
	SandboxRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "peerprep",
		Name:      "sandbox_run_duration_seconds",
		Help:      "Duration of sandbox code-eval runs in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"language"})
)

type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("metrics: underlying ResponseWriter does not support hijacking")
}

// Middleware records request counters, latency, and in-flight gauge for
// every HTTP request the router serves.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		labels := prometheus.Labels{
			"method": r.Method,
			"path":   routePattern(r),
			"status": strconv.Itoa(rec.status),
		}
		httpRequests.With(labels).Inc()
		httpLatency.With(labels).Observe(time.Since(start).Seconds())
	})
}

// routePattern prefers chi's matched route pattern over the raw path so
// path-parameterized routes (e.g. /interview/{id}) don't explode label
// cardinality.
func routePattern(r *http.Request) string {
	if rc := chiRouteContext(r); rc != "" {
		return rc
	}
	return r.URL.Path
}

// Handler exposes the default Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
