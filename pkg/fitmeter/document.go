package fitmeter

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Document field names shared with existing user documents.
const (
	FieldPlanUsage          = "tokenUsagePlan"
	FieldImageUsage         = "tokenUsageImage"
	FieldPeriod             = "period"
	FieldPlanTokens         = "planGenerationTokens"
	FieldImageTokens        = "imageAnalysisTokens"
	FieldMealsTrackedToday  = "mealsTrackedToday"
	FieldStreak             = "streak"
	FieldLastTrackingDate   = "lastTrackingDate"
	FieldLastStreakDate     = "lastStreakDate"
	FieldPlan               = "subscriptionType"
	FieldIsPremium          = "isPremium"
	FieldSubscriptionDate   = "subscriptionDate"
	FieldTotalCalories      = "totalCalories"
	FieldTotalProtein       = "totalProtein"
	FieldTotalFat           = "totalFat"
	FieldTotalCarbohydrates = "totalCarbohydrates"
	FieldTotalSugars        = "totalSugars"
	FieldLastUpdated        = "lastUpdated"
)

// EncodeDocument converts a record to the persisted document shape.
// Absent usage and streak state are omitted so a merge write leaves them untouched.
func EncodeDocument(r *UserRecord) map[string]interface{} {
	doc := map[string]interface{}{
		FieldTotalCalories:      r.Totals.Calories,
		FieldTotalProtein:       r.Totals.Protein,
		FieldTotalFat:           r.Totals.Fat,
		FieldTotalCarbohydrates: r.Totals.Carbohydrates,
		FieldTotalSugars:        r.Totals.Sugars,
	}
	if r.Plan != "" {
		doc[FieldPlan] = r.Plan
		doc[FieldIsPremium] = r.Premium
	}
	if r.SubscriptionDate != nil {
		doc[FieldSubscriptionDate] = *r.SubscriptionDate
	}
	if !r.LastUpdated.IsZero() {
		doc[FieldLastUpdated] = r.LastUpdated
	}
	if r.PlanUsage != nil {
		doc[FieldPlanUsage] = map[string]interface{}{
			FieldPeriod:     r.PlanUsage.Period.String(),
			FieldPlanTokens: storedCount(r.PlanUsage.UnitsConsumed),
		}
	}
	if r.ImageUsage != nil {
		doc[FieldImageUsage] = map[string]interface{}{
			FieldPeriod:      r.ImageUsage.Period.String(),
			FieldImageTokens: storedCount(r.ImageUsage.UnitsConsumed),
		}
	}
	if s := r.Streak; s != nil {
		doc[FieldMealsTrackedToday] = storedCount(s.ActivityCountToday)
		doc[FieldStreak] = storedCount(s.StreakLength)
		if s.LastActivityDate != nil {
			doc[FieldLastTrackingDate] = *s.LastActivityDate
		}
		if s.LastStreakCreditDate != nil {
			doc[FieldLastStreakDate] = *s.LastStreakCreditDate
		} else {
			doc[FieldLastStreakDate] = nil
		}
	}
	return doc
}

// DecodeDocument converts a persisted document into a record. Sub-structures that
// are present but malformed decode as nil and are reported as *MalformedStateError.
func DecodeDocument(userID string, doc map[string]interface{}) (*UserRecord, []error) {
	var errs []error
	r := &UserRecord{UserID: userID}

	if plan, ok := doc[FieldPlan].(string); ok {
		r.Plan = plan
	}
	if premium, ok := doc[FieldIsPremium].(bool); ok {
		r.Premium = premium
	}
	if t, ok, err := decodeTime(doc, FieldSubscriptionDate); err != nil {
		errs = append(errs, err)
	} else if ok {
		r.SubscriptionDate = &t
	}
	if t, ok, err := decodeTime(doc, FieldLastUpdated); err == nil && ok {
		r.LastUpdated = t
	}

	var err error
	if r.PlanUsage, err = decodeUsage(doc, FieldPlanUsage, FieldPlanTokens); err != nil {
		errs = append(errs, err)
	}
	if r.ImageUsage, err = decodeUsage(doc, FieldImageUsage, FieldImageTokens); err != nil {
		errs = append(errs, err)
	}
	if r.Streak, err = decodeStreak(doc); err != nil {
		errs = append(errs, err)
	}

	totals := []struct {
		field string
		dst   *int64
	}{
		{FieldTotalCalories, &r.Totals.Calories},
		{FieldTotalProtein, &r.Totals.Protein},
		{FieldTotalFat, &r.Totals.Fat},
		{FieldTotalCarbohydrates, &r.Totals.Carbohydrates},
		{FieldTotalSugars, &r.Totals.Sugars},
	}
	for _, t := range totals {
		raw, ok := doc[t.field]
		if !ok || raw == nil {
			continue
		}
		v, err := toInt64(raw)
		if err != nil {
			errs = append(errs, malformed(t.field, "%v", err))
			continue
		}
		*t.dst = v
	}

	return r, errs
}

func decodeUsage(doc map[string]interface{}, field, unitsField string) (*FeatureUsage, error) {
	raw, ok := doc[field]
	if !ok || raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, malformed(field, "expected a map, got %T", raw)
	}
	ps, ok := m[FieldPeriod].(string)
	if !ok {
		return nil, malformed(field, "missing period")
	}
	period, err := ParsePeriod(ps)
	if err != nil {
		return nil, malformed(field, "%v", err)
	}
	rawUnits, ok := m[unitsField]
	if !ok || rawUnits == nil {
		return nil, malformed(field, "missing %s", unitsField)
	}
	units, err := toInt64(rawUnits)
	if err != nil || units < 0 {
		return nil, malformed(field, "bad %s: %v", unitsField, rawUnits)
	}
	return &FeatureUsage{Period: period, UnitsConsumed: uint64(units)}, nil
}

func decodeStreak(doc map[string]interface{}) (*StreakState, error) {
	last, ok, err := decodeTime(doc, FieldLastTrackingDate)
	if err != nil {
		return nil, err
	}
	if !ok {
		if _, has := doc[FieldMealsTrackedToday]; has {
			return nil, malformed(FieldLastTrackingDate, "missing while %s is set", FieldMealsTrackedToday)
		}
		return nil, nil
	}

	s := &StreakState{LastActivityDate: &last}
	if raw, has := doc[FieldMealsTrackedToday]; has && raw != nil {
		n, err := toInt64(raw)
		if err != nil || n < 0 {
			return nil, malformed(FieldMealsTrackedToday, "bad value %v", raw)
		}
		s.ActivityCountToday = uint64(n)
	}
	if raw, has := doc[FieldStreak]; has && raw != nil {
		n, err := toInt64(raw)
		if err != nil || n < 0 {
			return nil, malformed(FieldStreak, "bad value %v", raw)
		}
		s.StreakLength = uint64(n)
	}
	credit, ok, err := decodeTime(doc, FieldLastStreakDate)
	if err != nil {
		return nil, err
	}
	if ok {
		s.LastStreakCreditDate = &credit
	}
	return s, nil
}

func decodeTime(doc map[string]interface{}, field string) (time.Time, bool, error) {
	raw, ok := doc[field]
	if !ok || raw == nil {
		return time.Time{}, false, nil
	}
	switch v := raw.(type) {
	case time.Time:
		return v, true, nil
	case *time.Time:
		if v == nil {
			return time.Time{}, false, nil
		}
		return *v, true, nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false, malformed(field, "bad timestamp %q", v)
		}
		return t, true, nil
	default:
		return time.Time{}, false, malformed(field, "unexpected type %T", raw)
	}
}

// storedCount clamps a counter to the signed range documents hold
func storedCount(n uint64) int64 {
	return int64(min(n, MaxUnits))
}

func toInt64(raw interface{}) (int64, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", v)
		}
		return int64(v), nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("value %v is not a number", v)
		}
		return int64(v), nil
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, err
		}
		return int64(f), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", raw)
	}
}
