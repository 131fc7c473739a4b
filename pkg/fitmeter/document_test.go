package fitmeter

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDocument_FieldNames(t *testing.T) {
	d := date(2024, time.March, 10)
	rec := &UserRecord{
		UserID:     "u1",
		Plan:       "free",
		PlanUsage:  &FeatureUsage{Period: march, UnitsConsumed: 300},
		ImageUsage: &FeatureUsage{Period: march, UnitsConsumed: 40},
		Streak:     &StreakState{ActivityCountToday: 1, StreakLength: 0, LastActivityDate: &d},
		Totals:     NutritionTotals{Calories: 500},
	}

	doc := EncodeDocument(rec)

	assert.Equal(t, map[string]interface{}{"period": "2024-3", "planGenerationTokens": int64(300)}, doc["tokenUsagePlan"])
	assert.Equal(t, map[string]interface{}{"period": "2024-3", "imageAnalysisTokens": int64(40)}, doc["tokenUsageImage"])
	assert.Equal(t, int64(1), doc["mealsTrackedToday"])
	assert.Equal(t, int64(0), doc["streak"])
	assert.Equal(t, d, doc["lastTrackingDate"])
	v, ok := doc["lastStreakDate"]
	assert.True(t, ok, "lastStreakDate must be written as null")
	assert.Nil(t, v)
	assert.Equal(t, int64(500), doc["totalCalories"])
	assert.Equal(t, "free", doc["subscriptionType"])
	assert.Equal(t, false, doc["isPremium"])
	_, ok = doc["subscriptionDate"]
	assert.False(t, ok)
}

func TestDecodeDocument_Subscription(t *testing.T) {
	since := time.Date(2024, time.February, 3, 14, 30, 0, 0, time.UTC)
	rec := &UserRecord{UserID: "u1", Plan: "premium", Premium: true, SubscriptionDate: &since}

	doc := EncodeDocument(rec)
	assert.Equal(t, "premium", doc["subscriptionType"])
	assert.Equal(t, true, doc["isPremium"])
	assert.Equal(t, since, doc["subscriptionDate"])

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	got, errs := DecodeDocument("u1", decoded)
	require.Empty(t, errs)
	assert.Equal(t, "premium", got.Plan)
	assert.True(t, got.Premium)
	require.NotNil(t, got.SubscriptionDate)
	assert.True(t, got.SubscriptionDate.Equal(since))

	// a bad date is reported without losing the plan
	got, errs = DecodeDocument("u1", map[string]interface{}{"subscriptionType": "premium", "subscriptionDate": 7})
	assert.Len(t, errs, 1)
	assert.Equal(t, "premium", got.Plan)
	assert.Nil(t, got.SubscriptionDate)
}

func TestEncodeDocument_OmitsAbsentState(t *testing.T) {
	doc := EncodeDocument(&UserRecord{UserID: "u1"})

	for _, field := range []string{"tokenUsagePlan", "tokenUsageImage", "streak", "lastTrackingDate", "lastStreakDate", "subscriptionType", "isPremium", "subscriptionDate"} {
		_, ok := doc[field]
		assert.False(t, ok, field)
	}
}

func TestDecodeDocument_RoundTripThroughJSON(t *testing.T) {
	d := date(2024, time.March, 10)
	rec := &UserRecord{
		UserID:    "u1",
		PlanUsage: &FeatureUsage{Period: march, UnitsConsumed: 1 << 40},
		Streak:    &StreakState{ActivityCountToday: 2, StreakLength: 6, LastActivityDate: &d, LastStreakCreditDate: &d},
		Totals:    NutritionTotals{Protein: 80, Sugars: 12},
	}

	raw, err := json.Marshal(EncodeDocument(rec))
	require.NoError(t, err)

	var doc map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&doc))

	got, errs := DecodeDocument("u1", doc)
	require.Empty(t, errs)
	assert.Equal(t, rec.PlanUsage, got.PlanUsage)
	assert.Nil(t, got.ImageUsage)
	assertStreak(t, *rec.Streak, *got.Streak)
	assert.Equal(t, rec.Totals, got.Totals)
}

func TestEncodeDocument_ClampsCountersToSignedRange(t *testing.T) {
	d := date(2024, time.March, 10)
	rec := &UserRecord{
		UserID:     "u1",
		PlanUsage:  &FeatureUsage{Period: march, UnitsConsumed: 1 << 63},
		ImageUsage: &FeatureUsage{Period: march, UnitsConsumed: MaxUnits},
		Streak:     &StreakState{ActivityCountToday: 1 << 63, LastActivityDate: &d},
	}

	doc := EncodeDocument(rec)
	assert.Equal(t, int64(math.MaxInt64), doc["tokenUsagePlan"].(map[string]interface{})["planGenerationTokens"])
	assert.Equal(t, int64(math.MaxInt64), doc["mealsTrackedToday"])

	got, errs := DecodeDocument("u1", doc)
	require.Empty(t, errs)
	require.NotNil(t, got.PlanUsage)
	assert.Equal(t, MaxUnits, got.PlanUsage.UnitsConsumed)
	assert.Equal(t, MaxUnits, got.ImageUsage.UnitsConsumed)
	assert.Equal(t, MaxUnits, got.Streak.ActivityCountToday)
}

func TestDecodeDocument_MalformedTreatedAsAbsent(t *testing.T) {
	tests := []struct {
		name  string
		doc   map[string]interface{}
		field string
		check func(t *testing.T, r *UserRecord)
	}{
		{
			name:  "usage not a map",
			doc:   map[string]interface{}{"tokenUsagePlan": "oops"},
			field: "tokenUsagePlan",
			check: func(t *testing.T, r *UserRecord) { assert.Nil(t, r.PlanUsage) },
		},
		{
			name:  "usage missing period",
			doc:   map[string]interface{}{"tokenUsageImage": map[string]interface{}{"imageAnalysisTokens": int64(5)}},
			field: "tokenUsageImage",
			check: func(t *testing.T, r *UserRecord) { assert.Nil(t, r.ImageUsage) },
		},
		{
			name:  "usage with bad period",
			doc:   map[string]interface{}{"tokenUsagePlan": map[string]interface{}{"period": "2024-13", "planGenerationTokens": int64(5)}},
			field: "tokenUsagePlan",
			check: func(t *testing.T, r *UserRecord) { assert.Nil(t, r.PlanUsage) },
		},
		{
			name:  "usage missing units",
			doc:   map[string]interface{}{"tokenUsagePlan": map[string]interface{}{"period": "2024-3"}},
			field: "tokenUsagePlan",
			check: func(t *testing.T, r *UserRecord) { assert.Nil(t, r.PlanUsage) },
		},
		{
			name:  "meal count without tracking date",
			doc:   map[string]interface{}{"mealsTrackedToday": int64(3), "streak": int64(2)},
			field: "lastTrackingDate",
			check: func(t *testing.T, r *UserRecord) { assert.Nil(t, r.Streak) },
		},
		{
			name:  "tracking date of the wrong type",
			doc:   map[string]interface{}{"lastTrackingDate": true},
			field: "lastTrackingDate",
			check: func(t *testing.T, r *UserRecord) { assert.Nil(t, r.Streak) },
		},
		{
			name:  "negative streak",
			doc:   map[string]interface{}{"lastTrackingDate": "2024-03-10T00:00:00Z", "streak": int64(-1)},
			field: "streak",
			check: func(t *testing.T, r *UserRecord) { assert.Nil(t, r.Streak) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, errs := DecodeDocument("u1", tt.doc)
			require.NotNil(t, rec)
			require.Len(t, errs, 1)

			var mse *MalformedStateError
			require.True(t, errors.As(errs[0], &mse))
			assert.Equal(t, tt.field, mse.Field)
			tt.check(t, rec)
		})
	}
}

func TestDecodeDocument_MalformedUsageDoesNotAffectOtherState(t *testing.T) {
	doc := map[string]interface{}{
		"tokenUsagePlan":  42,
		"tokenUsageImage": map[string]interface{}{"period": "2024-3", "imageAnalysisTokens": float64(12)},
	}

	rec, errs := DecodeDocument("u1", doc)

	assert.Len(t, errs, 1)
	assert.Nil(t, rec.PlanUsage)
	require.NotNil(t, rec.ImageUsage)
	assert.Equal(t, uint64(12), rec.ImageUsage.UnitsConsumed)
}

func TestDecodeDocument_StreakWithoutCredit(t *testing.T) {
	d := date(2024, time.March, 10)
	doc := map[string]interface{}{
		"mealsTrackedToday": int64(1),
		"streak":            int64(0),
		"lastTrackingDate":  d,
		"lastStreakDate":    nil,
	}

	rec, errs := DecodeDocument("u1", doc)

	require.Empty(t, errs)
	require.NotNil(t, rec.Streak)
	assert.Nil(t, rec.Streak.LastStreakCreditDate)
	assert.True(t, rec.Streak.LastActivityDate.Equal(d))
}

func TestDecodeDocument_EmptyDocument(t *testing.T) {
	rec, errs := DecodeDocument("u1", map[string]interface{}{})

	assert.Empty(t, errs)
	assert.Equal(t, &UserRecord{UserID: "u1"}, rec)
}
