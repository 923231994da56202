// Package metrics holds the bridge's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mil-ad/pmbridge/internal/sdk"
)

const namespace = "pmbridge"

// Command outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeFailed    = "failed"
	OutcomeError     = "error"
	OutcomeAbandoned = "abandoned"
)

type Metrics struct {
	Commands        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ConnectionState prometheus.Gauge
	StreamSamples   *prometheus.CounterVec
	Disconnects     *prometheus.CounterVec

	registry *prometheus.Registry
}

func New() *Metrics {
	m := &Metrics{
		Commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "Commands dispatched, by outcome (ok, failed, error, abandoned)",
			},
			[]string{"command", "outcome"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sdk_request_duration_seconds",
				Help:      "Time from issuing a device request to its callback",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ConnectionState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connection_state",
				Help:      "Link state (0=disconnected, 1=connecting, 2=connected)",
			},
		),
		StreamSamples: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_samples_total",
				Help:      "Stream sample attempts, by outcome",
			},
			[]string{"outcome"},
		),
		Disconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "disconnects_total",
				Help:      "Disconnect notifications, by reason",
			},
			[]string{"reason"},
		),
		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(
		m.Commands,
		m.RequestDuration,
		m.ConnectionState,
		m.StreamSamples,
		m.Disconnects,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) RecordCommand(command, outcome string) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(command, outcome).Inc()
}

func (m *Metrics) ObserveRequest(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) SetConnectionState(s sdk.State) {
	if m == nil {
		return
	}
	m.ConnectionState.Set(float64(s))
}

func (m *Metrics) RecordSample(ok bool) {
	if m == nil {
		return
	}
	outcome := OutcomeOK
	if !ok {
		outcome = OutcomeFailed
	}
	m.StreamSamples.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordDisconnect(reason sdk.DisconnectReason) {
	if m == nil {
		return
	}
	m.Disconnects.WithLabelValues(reason.String()).Inc()
}

// Handler serves /metrics and /health.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return mux
}

// Serve runs the metrics endpoint on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, log *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	srv := &http.Server{Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics serve: %w", err)
	}
	return nil
}
