// Package prommetrics exports fitmeter metering, streak and inference metrics to Prometheus.
package prommetrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics implements fitmeter.Metrics and inference.Metrics using Prometheus.
type Metrics struct {
	usageUnitsTotal            *prometheus.CounterVec
	usageRemaining             *prometheus.HistogramVec
	quotaCheckDuration         *prometheus.HistogramVec
	quotaDeniedTotal           *prometheus.CounterVec
	mealsLoggedTotal           *prometheus.CounterVec
	streakResetsTotal          prometheus.Counter
	malformedStateTotal        *prometheus.CounterVec
	storageOpsDuration         *prometheus.HistogramVec
	storageOpsErrors           *prometheus.CounterVec
	circuitBreakerStateChanges *prometheus.CounterVec
	inferenceDuration          *prometheus.HistogramVec
	inferenceErrors            *prometheus.CounterVec
}

// NewMetrics creates a new Prometheus metrics implementation registered on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		usageUnitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_units_total",
			Help:      "Total units recorded against feature quotas.",
		}, []string{"feature"}),

		usageRemaining: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "usage_remaining_units",
			Help:      "Units left in the quota after recording usage.",
			Buckets:   []float64{0, 100, 500, 1000, 2500, 5000, 10000, 50000},
		}, []string{"feature"}),

		quotaCheckDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quota_check_duration_seconds",
			Help:      "Latency of quota checks.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"feature"}),

		quotaDeniedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_denied_total",
			Help:      "Total requests rejected because the quota was exhausted.",
		}, []string{"feature"}),

		mealsLoggedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meals_logged_total",
			Help:      "Total meals logged, by whether the meal earned streak credit.",
		}, []string{"streak_credited"}),

		streakResetsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streak_resets_total",
			Help:      "Total streaks that dropped back to zero.",
		}),

		malformedStateTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_state_total",
			Help:      "Total persisted fields treated as absent because they could not be decoded.",
		}, []string{"field"}),

		storageOpsDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_duration_seconds",
			Help:      "Latency of storage operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		storageOpsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operation_errors_total",
			Help:      "Total number of storage operation errors.",
		}, []string{"operation"}),

		circuitBreakerStateChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state_changes_total",
			Help:      "Total number of circuit breaker state changes.",
		}, []string{"state"}),

		inferenceDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_request_duration_seconds",
			Help:      "Latency of inference provider calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"operation"}),

		inferenceErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_request_errors_total",
			Help:      "Total failed inference provider calls.",
		}, []string{"operation"}),
	}
}

func (m *Metrics) RecordUsage(feature string, units, remaining uint64) {
	m.usageUnitsTotal.WithLabelValues(feature).Add(float64(units))
	m.usageRemaining.WithLabelValues(feature).Observe(float64(remaining))
}

func (m *Metrics) RecordQuotaCheck(feature string, duration time.Duration) {
	m.quotaCheckDuration.WithLabelValues(feature).Observe(duration.Seconds())
}

func (m *Metrics) RecordQuotaDenied(feature string) {
	m.quotaDeniedTotal.WithLabelValues(feature).Inc()
}

func (m *Metrics) RecordMealLogged(streakCredited bool) {
	m.mealsLoggedTotal.WithLabelValues(strconv.FormatBool(streakCredited)).Inc()
}

func (m *Metrics) RecordStreakReset() {
	m.streakResetsTotal.Inc()
}

func (m *Metrics) RecordMalformedState(field string) {
	m.malformedStateTotal.WithLabelValues(field).Inc()
}

func (m *Metrics) RecordStorageOperation(operation string, duration time.Duration, err error) {
	m.storageOpsDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.storageOpsErrors.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) RecordCircuitBreakerStateChange(state string) {
	m.circuitBreakerStateChanges.WithLabelValues(state).Inc()
}

func (m *Metrics) RecordInferenceRequest(operation string, duration time.Duration, err error) {
	m.inferenceDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.inferenceErrors.WithLabelValues(operation).Inc()
	}
}

// DefaultMetrics returns a Metrics implementation using the default Prometheus registerer.
func DefaultMetrics(namespace string) *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer, namespace)
}
