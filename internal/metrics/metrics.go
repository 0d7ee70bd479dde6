// Package metrics exposes a run's trial activity to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fakeyudi/fuzzherd/internal/outcome"
)

// Metrics holds the collectors of one run on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	trials           prometheus.Counter
	outcomes         *prometheus.CounterVec
	mutationFailures prometheus.Counter
	trialDuration    prometheus.Histogram
}

// New registers the run collectors on a fresh registry.
func New(session string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	labels := prometheus.Labels{"session": session}
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		trials: f.NewCounter(prometheus.CounterOpts{
			Namespace:   "fuzzherd",
			Name:        "trials_total",
			Help:        "Completed trials.",
			ConstLabels: labels,
		}),
		outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "fuzzherd",
			Name:        "outcomes_total",
			Help:        "Trial outcomes by kind and intentional exit code.",
			ConstLabels: labels,
		}, []string{"kind", "code"}),
		mutationFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace:   "fuzzherd",
			Name:        "mutation_failures_total",
			Help:        "Trials skipped because the mutator failed.",
			ConstLabels: labels,
		}),
		trialDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "fuzzherd",
			Name:        "trial_duration_seconds",
			Help:        "Target execution time per trial.",
			ConstLabels: labels,
			Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
	}
}

// ObserveTrial records a completed trial.
func (m *Metrics) ObserveTrial(o outcome.Outcome, d time.Duration) {
	m.trials.Inc()
	code := ""
	if o.Kind == outcome.Intentional {
		code = strconv.Itoa(o.Code)
	}
	m.outcomes.WithLabelValues(o.Kind.String(), code).Inc()
	m.trialDuration.Observe(d.Seconds())
}

// ObserveMutationFailure records a skipped trial.
func (m *Metrics) ObserveMutationFailure() {
	m.mutationFailures.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	log.Info("serving metrics", "addr", ln.Addr().String())

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
