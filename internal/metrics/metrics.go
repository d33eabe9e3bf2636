// Package metrics exposes session activity as prometheus collectors on a
// private registry.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	actions          *prometheus.CounterVec
	rewards          *prometheus.HistogramVec
	selections       *prometheus.CounterVec
	promptScores     *prometheus.GaugeVec
	ledgerWrites     *prometheus.CounterVec
	failures         *prometheus.CounterVec
	generationTiming *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "respin_human_actions_total",
			Help: "Operator decisions by action",
		}, []string{"action"}),
		rewards: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "respin_reward",
			Help:    "Computed rewards by action",
			Buckets: prometheus.LinearBuckets(-15, 2.5, 13), // -15 to 15
		}, []string{"action"}),
		selections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "respin_prompt_selections_total",
			Help: "Prompt selections by mode (exploit, explore, fallback, custom, generated)",
		}, []string{"mode"}),
		promptScores: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "respin_prompt_score",
			Help: "Current score per prompt",
		}, []string{"prompt"}),
		ledgerWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "respin_ledger_writes_total",
			Help: "Ledger entries written by type",
		}, []string{"type"}),
		failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "respin_collaborator_failures_total",
			Help: "Failed collaborator calls by collaborator",
		}, []string{"collaborator"}),
		generationTiming: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "respin_generation_duration_seconds",
			Help:    "Model call latency by role",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2m
		}, []string{"role"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveAction records an operator decision and its reward.
func (m *Metrics) ObserveAction(action string, reward float64) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(action).Inc()
	m.rewards.WithLabelValues(action).Observe(reward)
}

// ObserveSelection records how a prompt was chosen.
func (m *Metrics) ObserveSelection(mode string) {
	if m == nil {
		return
	}
	m.selections.WithLabelValues(mode).Inc()
}

// SetPromptScore records a prompt's current score.
func (m *Metrics) SetPromptScore(prompt string, score float64) {
	if m == nil {
		return
	}
	m.promptScores.WithLabelValues(prompt).Set(score)
}

// ObserveLedgerWrite counts a stored entry.
func (m *Metrics) ObserveLedgerWrite(entryType string) {
	if m == nil {
		return
	}
	m.ledgerWrites.WithLabelValues(entryType).Inc()
}

// ObserveFailure counts a failed collaborator call.
func (m *Metrics) ObserveFailure(collaborator string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(collaborator).Inc()
}

// ObserveGeneration records the latency of a model call started at start.
func (m *Metrics) ObserveGeneration(role string, start time.Time) {
	if m == nil {
		return
	}
	m.generationTiming.WithLabelValues(role).Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
