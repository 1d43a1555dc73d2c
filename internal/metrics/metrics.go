// Package metrics exposes engine counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/bgmute/internal/domain"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	PassesTotal       prometheus.Counter
	PassDuration      prometheus.Histogram
	RefreshesTotal    prometheus.Counter
	FocusChanges      prometheus.Counter
	MuteCalls         *prometheus.CounterVec
	FocusErrors       prometheus.Counter
	EnumerationErrors prometheus.Counter
	TrackedSessions   prometheus.Gauge
	MutedSessions     prometheus.Gauge
}

// New creates collectors registered on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		PassesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "bgmute_passes_total",
			Help: "Total number of reconciliation passes",
		}),
		PassDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "bgmute_pass_duration_seconds",
			Help:    "Reconciliation pass duration",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5},
		}),
		RefreshesTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "bgmute_session_refreshes_total",
			Help: "Total number of audio session enumerations",
		}),
		FocusChanges: f.NewCounter(prometheus.CounterOpts{
			Name: "bgmute_focus_changes_total",
			Help: "Total number of observed foreground process changes",
		}),
		MuteCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "bgmute_mute_calls_total",
			Help: "SetMute calls issued by the engine",
		}, []string{"result"}),
		FocusErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "bgmute_focus_errors_total",
			Help: "Failed foreground queries",
		}),
		EnumerationErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "bgmute_enumeration_errors_total",
			Help: "Failed audio session enumerations",
		}),
		TrackedSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "bgmute_tracked_sessions",
			Help: "Audio sessions tracked after the last pass",
		}),
		MutedSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "bgmute_muted_sessions",
			Help: "Audio sessions muted by the engine after the last pass",
		}),
	}
}

// ObservePass records the outcome of one reconciliation pass.
func (m *Metrics) ObservePass(r domain.PassResult) {
	m.PassesTotal.Inc()
	m.PassDuration.Observe(r.Duration.Seconds())
	if r.Refreshed {
		m.RefreshesTotal.Inc()
	}
	if r.FocusChanged {
		m.FocusChanges.Inc()
	}
	if r.FocusErr != nil {
		m.FocusErrors.Inc()
	}
	if r.ListErr != nil {
		m.EnumerationErrors.Inc()
	}

	failed := len(r.Failures)
	m.MuteCalls.WithLabelValues("ok").Add(float64(r.MuteCalls - failed))
	m.MuteCalls.WithLabelValues("error").Add(float64(failed))

	m.TrackedSessions.Set(float64(r.Tracked))
	m.MutedSessions.Set(float64(r.Muted))
}

// Handler returns the exposition handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is canceled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics exporter listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
