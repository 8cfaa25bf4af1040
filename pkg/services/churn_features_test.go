package services

import (
	"math"
	"testing"

	"smartassist-api/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveFeatures(t *testing.T) {
	records := []models.CustomerRecord{
		{CustomerID: "C1", TenureMonths: 9, MonthlySpend: 50, DataUsageGB: 20, CallMinutes: 300, Complaints: 2, LastRechargeDays: 4},
	}
	derived := DeriveFeatures(records)
	require.Len(t, derived, 1)

	d := derived[0].Derived
	assert.InDelta(t, 5.0, d.SpendPerMonth, 1e-12)
	assert.InDelta(t, 2.0, d.DataPerMonth, 1e-12)
	assert.InDelta(t, 0.2, d.ComplaintRate, 1e-12)
	assert.InDelta(t, 1.8, d.RechargeFrequency, 1e-12)
	assert.Equal(t, records[0], derived[0].CustomerRecord)
}

func TestDeriveFeaturesZeroDenominators(t *testing.T) {
	// 契約0ヶ月・当日チャージでも有限値になること
	derived := DeriveFeatures([]models.CustomerRecord{
		{CustomerID: "C0", TenureMonths: 0, MonthlySpend: 30, DataUsageGB: 1.5, Complaints: 3, LastRechargeDays: 0},
	})
	for i, v := range derived[0].Vector() {
		assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "feature %s is not finite", models.FeatureNames[i])
	}
	assert.InDelta(t, 30.0, derived[0].Derived.SpendPerMonth, 1e-12)
	assert.InDelta(t, 3.0, derived[0].Derived.ComplaintRate, 1e-12)
	assert.Zero(t, derived[0].Derived.RechargeFrequency)
}

func TestDeriveFeaturesDoesNotMutateInput(t *testing.T) {
	ts, err := GenerateSyntheticCustomers(50, 0.3, 7)
	require.NoError(t, err)
	before := append([]models.CustomerRecord(nil), ts.Records...)

	first := DeriveFeatures(ts.Records)
	second := DeriveFeatures(ts.Records)

	assert.Equal(t, before, ts.Records)
	assert.Equal(t, first, second)
}

func TestFeatureVectorOrder(t *testing.T) {
	d := DeriveFeatures([]models.CustomerRecord{{TenureMonths: 1, MonthlySpend: 2, DataUsageGB: 3, CallMinutes: 4, Complaints: 5, LastRechargeDays: 6}})[0]
	v := d.Vector()
	require.Len(t, v, len(models.FeatureNames))
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, v[:6])
	assert.InDelta(t, 1.0, v[6], 1e-12)
	assert.InDelta(t, 1.5, v[7], 1e-12)
	assert.InDelta(t, 2.5, v[8], 1e-12)
	assert.InDelta(t, 1.0/7, v[9], 1e-12)
}

func TestRiskLevelFor(t *testing.T) {
	testCases := []struct {
		p        float64
		expected models.RiskLevel
	}{
		{0, models.RiskLow},
		{0.3, models.RiskLow},
		{math.Nextafter(0.3, 1), models.RiskMedium},
		{0.5, models.RiskMedium},
		{0.6, models.RiskMedium},
		{math.Nextafter(0.6, 1), models.RiskHigh},
		{1, models.RiskHigh},
	}
	for _, tc := range testCases {
		if got := RiskLevelFor(tc.p); got != tc.expected {
			t.Errorf("RiskLevelFor(%v) = %s, expected %s", tc.p, got, tc.expected)
		}
	}
}

func TestPredictedClass(t *testing.T) {
	assert.Equal(t, 0, predictedClass(0.5))
	assert.Equal(t, 1, predictedClass(math.Nextafter(0.5, 1)))
	assert.Equal(t, 0, predictedClass(0))
	assert.Equal(t, 1, predictedClass(1))
}
