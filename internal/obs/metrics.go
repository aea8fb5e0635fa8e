package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	initOnce sync.Once

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	forcedLogouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accountd_forced_logouts_total",
			Help: "Sessions revoked by lifecycle operations, by reason.",
		},
		[]string{"reason"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accountd_notifications_total",
			Help: "Push events by outcome (delivered, dropped, offline).",
		},
		[]string{"event", "result"},
	)

	sessionRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accountd_session_rejections_total",
			Help: "Authenticated requests refused by the session validity check.",
		},
		[]string{"cause"},
	)

	loginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accountd_login_attempts_total",
			Help: "Login attempts by result.",
		},
		[]string{"result"},
	)

	liveConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "accountd_live_connections",
		Help: "Open push connections.",
	})

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "accountd_ready",
		Help: "1 while the readiness probe passes.",
	})
)

// Init registers all collectors in the default registry. Safe to call more
// than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			forcedLogouts, notifications, sessionRejections, loginAttempts,
			liveConnections, ready,
		)
	})
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records in-flight, count and latency per canonical path.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath strips the query and replaces numeric segments with :id so
// label cardinality stays bounded.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimRight(path, "/")
	if path == "" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if _, err := strconv.ParseInt(seg, 10, 64); err == nil {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}

// ForcedLogout counts a revocation caused by reason.
func ForcedLogout(reason string) { forcedLogouts.WithLabelValues(reason).Inc() }

// Notification counts a push attempt for event with the given result.
func Notification(event, result string) { notifications.WithLabelValues(event, result).Inc() }

// SessionRejected counts a request refused by the validity check.
func SessionRejected(cause string) { sessionRejections.WithLabelValues(cause).Inc() }

// LoginAttempt counts a login by result.
func LoginAttempt(result string) { loginAttempts.WithLabelValues(result).Inc() }

// SetLiveConnections publishes the number of open push connections.
func SetLiveConnections(n int) { liveConnections.Set(float64(n)) }

// SetReady flips the readiness gauge.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming handlers working behind the instrumentation wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
