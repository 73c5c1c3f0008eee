// Package httptransport builds the HTTP servers and middleware shared by the binaries.
package httptransport

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ServerConfig contains tunables for the HTTP server.
type ServerConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns the timeouts used by the API.
func DefaultServerConfig(address string) ServerConfig {
	return ServerConfig{
		Address:      address,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewServer creates *http.Server with provided handler.
func NewServer(cfg ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Address,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// NewMetricsServer serves the default Prometheus registry on /metrics and a health probe.
func NewMetricsServer(address string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return NewServer(DefaultServerConfig(address), mux)
}

var requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "activity_sync",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by method and status code.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "code"})

func init() {
	prometheus.MustRegister(requestDuration)
}

// RequestLogger logs every request at debug level, and server errors at error level,
// and observes its latency.
func RequestLogger(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		requestDuration.WithLabelValues(r.Method, http.StatusText(rec.status)).Observe(elapsed.Seconds())

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", elapsed),
		}
		if rec.status >= http.StatusInternalServerError {
			logger.Error("request failed", fields...)
			return
		}
		logger.Debug("request served", fields...)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
