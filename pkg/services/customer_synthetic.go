package services

import (
	"fmt"
	"math"
	"math/rand"

	"smartassist-api/pkg/models"
)

// GenerateSyntheticCustomers builds a deterministic demo dataset of n
// customers with exactly round(n*churnRate) churners. Churners skew toward
// short tenure, more complaints and long gaps since the last recharge, so a
// model trained on the output has real signal to find.
func GenerateSyntheticCustomers(n int, churnRate float64, seed int64) (models.TrainingSet, error) {
	if n <= 0 {
		return models.TrainingSet{}, fmt.Errorf("customer count must be positive, got %d", n)
	}
	if churnRate < 0 || churnRate > 1 || math.IsNaN(churnRate) {
		return models.TrainingSet{}, fmt.Errorf("churn rate must be within [0, 1], got %v", churnRate)
	}

	rng := rand.New(rand.NewSource(seed))
	nChurn := int(math.Round(float64(n) * churnRate))

	labels := make([]int, n)
	for i := 0; i < nChurn; i++ {
		labels[i] = 1
	}
	rng.Shuffle(n, func(i, j int) { labels[i], labels[j] = labels[j], labels[i] })

	records := make([]models.CustomerRecord, n)
	for i := range records {
		records[i] = syntheticCustomer(rng, i, labels[i] == 1)
	}
	return models.TrainingSet{Records: records, Labels: labels}, nil
}

func syntheticCustomer(rng *rand.Rand, i int, churned bool) models.CustomerRecord {
	var tenure, complaints, recharge int
	var spend, data, calls float64
	if churned {
		tenure = rng.Intn(18)
		complaints = 1 + rng.Intn(5)
		recharge = 20 + rng.Intn(70)
		spend = 15 + rng.Float64()*45
		data = rng.Float64() * 8
		calls = rng.Float64() * 200
	} else {
		tenure = 6 + rng.Intn(60)
		complaints = rng.Intn(2)
		recharge = rng.Intn(30)
		spend = 30 + rng.Float64()*90
		data = 3 + rng.Float64()*27
		calls = 100 + rng.Float64()*500
	}
	return models.CustomerRecord{
		CustomerID:       fmt.Sprintf("CUST%05d", i+1),
		TenureMonths:     tenure,
		MonthlySpend:     math.Round(spend*100) / 100,
		DataUsageGB:      math.Round(data*100) / 100,
		CallMinutes:      math.Round(calls*10) / 10,
		Complaints:       complaints,
		LastRechargeDays: recharge,
	}
}
