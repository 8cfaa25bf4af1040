package services

import (
	"smartassist-api/pkg/models"
)

// Risk tier upper bounds. Bins are closed on the upper side, so a probability
// of exactly 0.3 is Low and exactly 0.6 is Medium.
const (
	LowRiskUpperBound    = 0.3
	MediumRiskUpperBound = 0.6
	// ChurnDecisionThreshold: a customer is predicted to churn when the
	// probability is strictly above this value.
	ChurnDecisionThreshold = 0.5
)

// DeriveFeatures appends the four ratio features to each record. The input
// slice is never modified; training and scoring both go through here.
func DeriveFeatures(records []models.CustomerRecord) []models.DerivedRecord {
	out := make([]models.DerivedRecord, len(records))
	for i, r := range records {
		out[i] = models.DerivedRecord{
			CustomerRecord: r,
			Derived:        deriveOne(r),
		}
	}
	return out
}

// deriveOne uses a +1 denominator so tenure 0 or a same-day recharge never
// divides by zero.
func deriveOne(r models.CustomerRecord) models.DerivedFeatures {
	tenure := float64(r.TenureMonths) + 1
	return models.DerivedFeatures{
		SpendPerMonth:     r.MonthlySpend / tenure,
		DataPerMonth:      r.DataUsageGB / tenure,
		ComplaintRate:     float64(r.Complaints) / tenure,
		RechargeFrequency: float64(r.TenureMonths) / (float64(r.LastRechargeDays) + 1),
	}
}

// featureMatrix converts derived records into a row-major 10-column matrix.
func featureMatrix(derived []models.DerivedRecord) [][]float64 {
	x := make([][]float64, len(derived))
	for i, d := range derived {
		x[i] = d.Vector()
	}
	return x
}

// RiskLevelFor bins a churn probability into a risk tier.
func RiskLevelFor(probability float64) models.RiskLevel {
	switch {
	case probability <= LowRiskUpperBound:
		return models.RiskLow
	case probability <= MediumRiskUpperBound:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}

// predictedClass matches the classifier's own argmax decision.
func predictedClass(probability float64) int {
	if probability > ChurnDecisionThreshold {
		return 1
	}
	return 0
}
