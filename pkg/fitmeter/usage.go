// Package fitmeter meters monthly usage of paid features and tracks daily meal
// logging streaks. The metering and streak rules are pure functions; Manager
// wires them to a Storage backend.
package fitmeter

import "math"

// MaxUnits is the largest consumption a usage record holds; documents store it as a signed integer.
const MaxUnits uint64 = math.MaxInt64

// RecordUsage adds unitsToAdd to existing usage for the current period.
// A missing record or a record from another period is replaced rather than
// accumulated, so quotas hard-reset at the month boundary. Consumption
// saturates at MaxUnits.
func RecordUsage(existing *FeatureUsage, unitsToAdd uint64, current UsagePeriod) FeatureUsage {
	unitsToAdd = min(unitsToAdd, MaxUnits)
	if existing == nil || existing.Period != current {
		return FeatureUsage{Period: current, UnitsConsumed: unitsToAdd}
	}
	consumed := min(existing.UnitsConsumed, MaxUnits)
	if unitsToAdd > MaxUnits-consumed {
		return FeatureUsage{Period: current, UnitsConsumed: MaxUnits}
	}
	return FeatureUsage{Period: current, UnitsConsumed: consumed + unitsToAdd}
}

// Remaining returns the units left under limit, never below zero
func Remaining(usage FeatureUsage, limit uint64) uint64 {
	if usage.UnitsConsumed >= limit {
		return 0
	}
	return limit - usage.UnitsConsumed
}

// UsageMeter applies RecordUsage and Remaining for one feature and one limit.
// The plan generation and image analysis meters share the algorithm but never state.
type UsageMeter struct {
	Feature Feature
	Limit   uint64
}

// NewUsageMeter creates a meter for feature with the given monthly limit
func NewUsageMeter(feature Feature, limit uint64) UsageMeter {
	return UsageMeter{Feature: feature, Limit: limit}
}

// Record returns record with this meter's usage advanced by units
func (m UsageMeter) Record(record *UserRecord, units uint64, current UsagePeriod) FeatureUsage {
	next := RecordUsage(record.Usage(m.Feature), units, current)
	record.SetUsage(m.Feature, next)
	return next
}

// Current returns the usage as seen in the current period: stale usage counts as zero
func (m UsageMeter) Current(record *UserRecord, current UsagePeriod) FeatureUsage {
	u := record.Usage(m.Feature)
	if u == nil || u.Period != current {
		return FeatureUsage{Period: current}
	}
	return *u
}

// Remaining returns the units left for usage under this meter's limit
func (m UsageMeter) Remaining(usage FeatureUsage) uint64 {
	return Remaining(usage, m.Limit)
}
