package fitmeter

import "time"

// Metrics defines the interface for tracking metering and streak operations.
type Metrics interface {
	// RecordUsage records units added to a feature and the units left afterwards.
	RecordUsage(feature string, units, remaining uint64)

	// RecordQuotaCheck records the duration of a quota read.
	RecordQuotaCheck(feature string, duration time.Duration)

	// RecordQuotaDenied records a request rejected because the quota is exhausted.
	RecordQuotaDenied(feature string)

	// RecordMealLogged records a logged meal and whether it earned streak credit.
	RecordMealLogged(streakCredited bool)

	// RecordStreakReset records a streak that dropped back to zero.
	RecordStreakReset()

	// RecordMalformedState records a persisted field that had to be treated as absent.
	RecordMalformedState(field string)

	// RecordStorageOperation records the duration and status of a storage operation.
	RecordStorageOperation(operation string, duration time.Duration, err error)

	// RecordCircuitBreakerStateChange records a circuit breaker state change.
	RecordCircuitBreakerStateChange(state string)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordUsage(feature string, units, remaining uint64)                        {}
func (n *NoopMetrics) RecordQuotaCheck(feature string, duration time.Duration)                    {}
func (n *NoopMetrics) RecordQuotaDenied(feature string)                                           {}
func (n *NoopMetrics) RecordMealLogged(streakCredited bool)                                       {}
func (n *NoopMetrics) RecordStreakReset()                                                         {}
func (n *NoopMetrics) RecordMalformedState(field string)                                          {}
func (n *NoopMetrics) RecordStorageOperation(operation string, duration time.Duration, err error) {}
func (n *NoopMetrics) RecordCircuitBreakerStateChange(state string)                               {}
