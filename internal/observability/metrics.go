// Package observability exposes prometheus instrumentation for the
// rewriter and the verifier. Metrics are registered on a private
// registry; Serve exposes them on an optional listener.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// readHeaderTimeout bounds header reads on the metrics listener.
const readHeaderTimeout = 10 * time.Second

// Metrics holds the counters both subsystems report into.
type Metrics struct {
	registry *prometheus.Registry

	// CommitsRead counts upstream commits inspected by the rewriter.
	CommitsRead prometheus.Counter
	// CommitsEmitted counts commits written to the filtered branch.
	CommitsEmitted prometheus.Counter
	// CommitsElided counts upstream commits skipped as filtered no-ops.
	CommitsElided prometheus.Counter

	// Emerges counts per-package build results by outcome ("pass",
	// "fail").
	Emerges *prometheus.CounterVec
}

// NewMetrics creates and registers the metric set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		CommitsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forklift_commits_read_total",
			Help: "Upstream commits inspected by the rewriter.",
		}),
		CommitsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forklift_commits_emitted_total",
			Help: "Commits written to the filtered branch.",
		}),
		CommitsElided: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forklift_commits_elided_total",
			Help: "Upstream commits skipped as filtered no-ops.",
		}),
		Emerges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forklift_emerges_total",
			Help: "Per-package emerge results.",
		}, []string{"result"}),
	}

	registry.MustRegister(m.CommitsRead, m.CommitsEmitted, m.CommitsElided, m.Emerges)

	return m
}

// Serve exposes /metrics on addr in a background goroutine. The returned
// server can be closed by the caller; listen errors end the goroutine.
func (m *Metrics) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		_ = server.ListenAndServe()
	}()

	return server
}
