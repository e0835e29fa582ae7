// Package metrics provides Prometheus metrics for the Redis-compatible server.
package metrics

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CommandsTotal counts the total number of commands processed
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redisqlite_commands_total",
			Help: "Total number of Redis commands processed",
		},
		[]string{"command"},
	)

	// CommandDuration measures the duration of command execution
	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redisqlite_command_duration_seconds",
			Help:    "Duration of Redis command execution in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 0.1ms to ~3.3s
		},
		[]string{"command"},
	)

	// CommandErrors counts the number of command errors
	CommandErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redisqlite_command_errors_total",
			Help: "Total number of Redis command errors",
		},
		[]string{"command"},
	)

	// ActiveConnections tracks the number of active client connections.
	// Use IncActiveConnections/DecActiveConnections rather than this
	// gauge's own Inc/Dec so the plain-integer mirror used by INFO
	// (ActiveConnectionsValue) stays consistent.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "redisqlite_active_connections",
			Help: "Number of active client connections",
		},
	)

	// ConnectionsTotal counts the total number of connections accepted
	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redisqlite_connections_total",
			Help: "Total number of connections accepted",
		},
	)
)

var activeConnections int64

// ActiveConnectionsValue reads the current connection count, for INFO's
// connected_clients line. Tracked separately from the ActiveConnections
// gauge since prometheus.Gauge exposes no read accessor.
func ActiveConnectionsValue() int {
	return int(atomic.LoadInt64(&activeConnections))
}

// IncActiveConnections records a newly accepted connection.
func IncActiveConnections() {
	atomic.AddInt64(&activeConnections, 1)
	ActiveConnections.Inc()
}

// DecActiveConnections records a closed connection.
func DecActiveConnections() {
	atomic.AddInt64(&activeConnections, -1)
	ActiveConnections.Dec()
}

// RecordCommand records metrics for a command execution
func RecordCommand(command string, duration time.Duration, isError bool) {
	CommandsTotal.WithLabelValues(command).Inc()
	CommandDuration.WithLabelValues(command).Observe(duration.Seconds())
	if isError {
		CommandErrors.WithLabelValues(command).Inc()
	}
}

// Server represents a metrics HTTP server
type Server struct {
	server *http.Server
}

// NewServer creates a new metrics server
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start starts the metrics server in the background. errs, if non-nil,
// receives ListenAndServe's terminal error (nil on a clean Stop).
func (s *Server) Start(errs chan<- error) {
	go func() {
		err := s.server.ListenAndServe()
		if err == http.ErrServerClosed {
			err = nil
		}
		if errs != nil {
			errs <- err
		}
	}()
}

// Stop gracefully stops the metrics server, waiting up to ctx's deadline
// for in-flight scrapes to finish.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
