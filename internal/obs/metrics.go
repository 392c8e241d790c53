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

	tokensIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokens_issued_total",
		Help: "Session tokens issued.",
	})

	tokenValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_validations_total",
			Help: "Session token validations by outcome.",
		},
		[]string{"result"},
	)

	tokensRevoked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tokens_revoked_total",
		Help: "Session tokens explicitly revoked.",
	})

	ledgerEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "revocation_ledger_entries",
		Help: "Revoked tokens not yet past their expiry.",
	})

	initOnce sync.Once
)

// Init registers all collectors in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			tokensIssued, tokenValidations, tokensRevoked, ledgerEntries,
		)
	})
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

func TokenIssued() { tokensIssued.Inc() }

// TokenValidated counts a validation; result is "ok" or the rejection reason.
func TokenValidated(result string) { tokenValidations.WithLabelValues(result).Inc() }

func TokenRevoked() { tokensRevoked.Inc() }

func SetLedgerEntries(n int) { ledgerEntries.Set(float64(n)) }

// Instrument records in-flight count, totals and latency per canonical path.
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

var collections = map[string]struct{}{
	"clients":     {},
	"permissions": {},
	"roles":       {},
	"users":       {},
}

// CanonicalPath collapses entity ids so label cardinality stays bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) >= 3 && parts[0] == "api" {
		if _, ok := collections[parts[1]]; ok {
			parts[2] = ":id"
			return "/" + strings.Join(parts, "/")
		}
	}
	return p
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
