package observability

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NodeMetrics holds the Prometheus metrics for node API traffic. It
// satisfies the node client's Metrics interface.
type NodeMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewNodeMetrics creates and registers the node metrics with reg.
func NewNodeMetrics(reg prometheus.Registerer) *NodeMetrics {
	return &NodeMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pocket",
				Name:      "node_requests_total",
				Help:      "Total node API requests by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"}, // outcome=ok/unauthorized/not_found/invalid/connection/error
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "pocket",
				Name:      "node_request_duration_seconds",
				Help:      "Node API request duration in seconds",
				Buckets:   prometheus.DefBuckets, // 5ms to 10s
			},
			[]string{"endpoint"},
		),
	}
}

// ObserveRequest records one node API request.
func (m *NodeMetrics) ObserveRequest(endpoint, outcome string, seconds float64) {
	m.requestsTotal.WithLabelValues(endpoint, outcome).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(seconds)
}

// NewRegistry creates a registry preloaded with the standard process and
// Go runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// DebugServer exposes /metrics on a local address for long-running modes
// (agent, watch). It is never started unless a debug address is configured.
type DebugServer struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewDebugServer builds the debug listener for addr.
func NewDebugServer(addr string, reg *prometheus.Registry, logger *slog.Logger) *DebugServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &DebugServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start serves in a background goroutine until Shutdown.
func (d *DebugServer) Start() {
	go func() {
		d.logger.Info("debug metrics listener started", "addr", d.srv.Addr)
		if err := d.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("debug metrics listener failed", "error", err)
		}
	}()
}

// Shutdown stops the listener, waiting for in-flight scrapes.
func (d *DebugServer) Shutdown(ctx context.Context) error {
	return d.srv.Shutdown(ctx)
}
